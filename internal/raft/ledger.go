package raft

import (
	"sync"

	"DistMR/internal/logger"
	"DistMR/internal/types"
)

const ledgerQueueSize = 1024

// Ledger replicates the coordinator's task events through raft. Record
// never blocks the caller; events are applied by a background goroutine
// and dropped with a warning if the queue overflows.
type Ledger struct {
	cluster *Cluster
	events  chan types.TaskEvent
	logger  *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewLedger starts applying recorded events to cluster.
func NewLedger(cluster *Cluster) *Ledger {
	l := &Ledger{
		cluster: cluster,
		events:  make(chan types.TaskEvent, ledgerQueueSize),
		logger:  cluster.logger,
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Record queues ev for replication.
func (l *Ledger) Record(ev types.TaskEvent) {
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("Ledger queue full, dropping event: kind=%s phase=%s task_num=%d", ev.Kind, ev.Phase, ev.TaskNum)
	}
}

func (l *Ledger) run() {
	defer close(l.done)

	for ev := range l.events {
		if !l.cluster.IsLeader() {
			l.logger.Warn("Not leader, skipping event: kind=%s leader=%s", ev.Kind, l.cluster.GetLeader())
			continue
		}
		if err := l.cluster.ApplyEvent(ev); err != nil {
			l.logger.Error("Failed to replicate event: kind=%s err=%v", ev.Kind, err)
		}
	}
}

// State returns the replicated ledger state.
func (l *Ledger) State() *types.LedgerState {
	return l.cluster.State()
}

// Close drains queued events and shuts the raft node down. Record must not
// be called after Close.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.events)
		<-l.done
		err = l.cluster.Close()
	})
	return err
}
