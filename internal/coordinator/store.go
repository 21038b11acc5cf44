package coordinator

import (
	"sync"
	"time"

	"DistMR/internal/types"
)

// Journal receives every task store transition. Record is called with the
// store lock held and must not block.
type Journal interface {
	Record(ev types.TaskEvent)
}

type mapLease struct {
	taskNum int
	start   time.Time
}

// Store is the coordinator's scheduling state. All fields are guarded by mu;
// wake is signalled whenever a blocked RequestTask might now succeed.
type Store struct {
	mu   sync.Mutex
	wake *sync.Cond

	nReduce int

	pendingMap  []string
	activeMap   map[string]mapLease
	mapCounter  int
	finishedMap []int
	mapDone     bool

	pendingReduce  []int
	activeReduce   map[int]time.Time
	finishedReduce int
	reduceDone     bool

	reclaimed int
	done      chan struct{}

	now     func() time.Time
	journal Journal
}

// NewStore seeds the map phase with one pending task per distinct input
// file; repeated names are dropped.
func NewStore(files []string, nReduce int) *Store {
	s := &Store{
		nReduce:      nReduce,
		pendingMap:   uniqueFiles(files),
		activeMap:    make(map[string]mapLease),
		activeReduce: make(map[int]time.Time),
		done:         make(chan struct{}),
		now:          time.Now,
	}
	s.wake = sync.NewCond(&s.mu)

	s.mu.Lock()
	s.checkPhasesLocked()
	s.mu.Unlock()

	return s
}

func uniqueFiles(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// SetJournal attaches j; pass nil to detach.
func (s *Store) SetJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

// Done returns a channel closed once the reduce phase has finished.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// IsDone reports whether both phases have finished.
func (s *Store) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reduceDone
}

func (s *Store) record(kind types.EventKind, phase types.TaskType, taskNum int, fileName, workerID string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(types.TaskEvent{
		Kind:      kind,
		Phase:     phase,
		TaskNum:   taskNum,
		FileName:  fileName,
		WorkerID:  workerID,
		Timestamp: s.now(),
	})
}

// checkPhasesLocked applies the map_done and reduce_done transitions. Each
// fires once; the map transition seeds the reduce queue in the same step.
func (s *Store) checkPhasesLocked() bool {
	changed := false

	if !s.mapDone && len(s.pendingMap) == 0 && len(s.activeMap) == 0 {
		s.mapDone = true
		s.pendingReduce = make([]int, 0, s.nReduce)
		for i := 0; i < s.nReduce; i++ {
			s.pendingReduce = append(s.pendingReduce, i)
		}
		s.record(types.EventPhase, types.ReduceTask, 0, "", "")
		changed = true
	}

	if s.mapDone && !s.reduceDone && len(s.pendingReduce) == 0 && len(s.activeReduce) == 0 {
		s.reduceDone = true
		close(s.done)
		s.record(types.EventPhase, types.FinishedTask, 0, "", "")
		changed = true
	}

	return changed
}

// dispatchLocked hands out the next task if one is available. ok is false
// when the caller has to wait for a state change.
func (s *Store) dispatchLocked(workerID string) (reply types.RequestTaskReply, ok bool) {
	if !s.mapDone {
		n := len(s.pendingMap)
		if n == 0 {
			return reply, false
		}
		file := s.pendingMap[n-1]
		s.pendingMap = s.pendingMap[:n-1]

		taskNum := s.mapCounter
		s.mapCounter++
		s.activeMap[file] = mapLease{taskNum: taskNum, start: s.now()}
		s.record(types.EventDispatch, types.MapTask, taskNum, file, workerID)

		return types.RequestTaskReply{
			TaskType: types.MapTask,
			FileName: file,
			TaskNum:  taskNum,
			NReduce:  s.nReduce,
		}, true
	}

	if !s.reduceDone {
		n := len(s.pendingReduce)
		if n == 0 {
			return reply, false
		}
		bucket := s.pendingReduce[n-1]
		s.pendingReduce = s.pendingReduce[:n-1]

		s.activeReduce[bucket] = s.now()
		s.record(types.EventDispatch, types.ReduceTask, bucket, "", workerID)

		return types.RequestTaskReply{
			TaskType: types.ReduceTask,
			TaskNum:  bucket,
			FileNums: append([]int(nil), s.finishedMap...),
		}, true
	}

	return types.RequestTaskReply{TaskType: types.FinishedTask}, true
}

// completeLocked applies a completion report. It returns false when the
// task is not active under that identity, in which case nothing changes.
func (s *Store) completeLocked(args *types.TaskDoneArgs) bool {
	switch args.TaskType {
	case types.MapTask:
		lease, ok := s.activeMap[args.FileName]
		if !ok || lease.taskNum != args.TaskNum {
			return false
		}
		delete(s.activeMap, args.FileName)
		s.finishedMap = append(s.finishedMap, args.TaskNum)
	case types.ReduceTask:
		if _, ok := s.activeReduce[args.TaskNum]; !ok {
			return false
		}
		delete(s.activeReduce, args.TaskNum)
		s.finishedReduce++
	default:
		return false
	}

	s.record(types.EventComplete, args.TaskType, args.TaskNum, args.FileName, args.WorkerID)
	s.checkPhasesLocked()
	return true
}

// Reclaim moves every active task older than lease back to its pending
// queue and wakes blocked requesters. It returns the number reclaimed.
func (s *Store) Reclaim(lease time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0

	for file, l := range s.activeMap {
		if now.Sub(l.start) > lease {
			delete(s.activeMap, file)
			s.pendingMap = append(s.pendingMap, file)
			s.record(types.EventReclaim, types.MapTask, l.taskNum, file, "")
			n++
		}
	}

	for bucket, start := range s.activeReduce {
		if now.Sub(start) > lease {
			delete(s.activeReduce, bucket)
			s.pendingReduce = append(s.pendingReduce, bucket)
			s.record(types.EventReclaim, types.ReduceTask, bucket, "", "")
			n++
		}
	}

	if n > 0 {
		s.reclaimed += n
		s.wake.Broadcast()
	}
	return n
}

// Snapshot returns current counts for progress reporting.
func (s *Store) Snapshot() types.StoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.StoreSnapshot{
		NReduce:        s.nReduce,
		PendingMap:     len(s.pendingMap),
		ActiveMap:      len(s.activeMap),
		FinishedMap:    append([]int(nil), s.finishedMap...),
		MapDone:        s.mapDone,
		PendingReduce:  len(s.pendingReduce),
		ActiveReduce:   len(s.activeReduce),
		FinishedReduce: s.finishedReduce,
		ReduceDone:     s.reduceDone,
		MapTasksIssued: s.mapCounter,
		ReclaimedTasks: s.reclaimed,
	}
}
