package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"DistMR/internal/logger"
	"DistMR/internal/types"
	raft "github.com/hashicorp/raft"
)

// FSM folds replicated task events into a LedgerState
type FSM struct {
	mu     sync.RWMutex
	state  *types.LedgerState
	logger *logger.Logger
}

func newLedgerState() *types.LedgerState {
	return &types.LedgerState{
		Phase:      types.MapTask,
		Dispatched: make(map[string]int),
		Completed:  make(map[string]int),
		Reclaimed:  make(map[string]int),
	}
}

// NewFSM creates a new FSM with initial state
func NewFSM(lg *logger.Logger) *FSM {
	if lg == nil {
		lg = logger.NewComponent("INFO", "ledger")
	}
	return &FSM{
		state:  newLedgerState(),
		logger: lg,
	}
}

// Apply implements raft.FSM - processes a log entry committed by Raft
func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entry types.LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("Failed to unmarshal log entry: %v", err)
		return fmt.Errorf("failed to unmarshal log entry: %w", err)
	}

	if entry.Type != "task" {
		f.logger.Warn("Unknown log entry type: %s", entry.Type)
		return fmt.Errorf("unknown log entry type: %s", entry.Type)
	}

	return f.applyTaskEvent(&entry.Event)
}

func (f *FSM) applyTaskEvent(ev *types.TaskEvent) interface{} {
	phase := ev.Phase.String()

	switch ev.Kind {
	case types.EventDispatch:
		f.state.Dispatched[phase]++
	case types.EventComplete:
		f.state.Completed[phase]++
		if ev.Phase == types.MapTask {
			f.state.FinishedMap = append(f.state.FinishedMap, ev.TaskNum)
		} else {
			f.state.FinishedReduce = append(f.state.FinishedReduce, ev.TaskNum)
		}
	case types.EventReclaim:
		f.state.Reclaimed[phase]++
	case types.EventPhase:
		f.state.Phase = ev.Phase
		f.logger.Info("Ledger phase transition: phase=%s", phase)
	default:
		f.logger.Warn("Unknown task event: %s", ev.Kind)
		return fmt.Errorf("unknown task event: %s", ev.Kind)
	}

	f.state.Version++
	f.logger.Debug("Applied task event: kind=%s phase=%s task_num=%d", ev.Kind, phase, ev.TaskNum)
	return nil
}

func (f *FSM) copyStateLocked() *types.LedgerState {
	cp := &types.LedgerState{
		Phase:          f.state.Phase,
		Dispatched:     make(map[string]int, len(f.state.Dispatched)),
		Completed:      make(map[string]int, len(f.state.Completed)),
		Reclaimed:      make(map[string]int, len(f.state.Reclaimed)),
		FinishedMap:    append([]int(nil), f.state.FinishedMap...),
		FinishedReduce: append([]int(nil), f.state.FinishedReduce...),
		Leader:         f.state.Leader,
		Version:        f.state.Version,
	}
	for k, v := range f.state.Dispatched {
		cp.Dispatched[k] = v
	}
	for k, v := range f.state.Completed {
		cp.Completed[k] = v
	}
	for k, v := range f.state.Reclaimed {
		cp.Reclaimed[k] = v
	}
	return cp
}

// Snapshot implements raft.FSM - creates a snapshot of the current state
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &snapshot{state: f.copyStateLocked()}, nil
}

// Restore implements raft.FSM - restores state from a snapshot
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	state := newLedgerState()
	if err := json.NewDecoder(rc).Decode(state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	return nil
}

// GetState returns a copy of the current ledger state
func (f *FSM) GetState() *types.LedgerState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.copyStateLocked()
}

// snapshot implements raft.FSMSnapshot
type snapshot struct {
	state *types.LedgerState
}

// Persist writes the snapshot to a sink
func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		sink.Cancel()
		return err
	}

	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}

	return sink.Close()
}

// Release is called when we are done with the snapshot
func (s *snapshot) Release() {}
