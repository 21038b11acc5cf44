package coordinator

import (
	"DistMR/internal/logger"
	"DistMR/internal/types"
)

// RPCName is the service name workers address, e.g. "Coordinator.RequestTask".
const RPCName = "Coordinator"

// Scheduler is the RPC service workers talk to. Only RPC handlers are
// exported so it can be registered with net/rpc directly.
type Scheduler struct {
	store  *Store
	logger *logger.Logger
}

// NewScheduler creates a scheduler over store.
func NewScheduler(store *Store, lg *logger.Logger) *Scheduler {
	if lg == nil {
		lg = logger.NewComponent("INFO", "scheduler")
	}
	return &Scheduler{
		store:  store,
		logger: lg,
	}
}

// RequestTask blocks until a task is available or the job is finished.
func (s *Scheduler) RequestTask(args *types.RequestTaskArgs, reply *types.RequestTaskReply) error {
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		r, ok := st.dispatchLocked(args.WorkerID)
		if ok {
			*reply = r
			break
		}
		// Wait releases mu while blocked; the loop rechecks after every wake.
		st.wake.Wait()
	}

	switch reply.TaskType {
	case types.MapTask:
		s.logger.Info("Task dispatched: type=map task_num=%d file=%s worker_id=%s", reply.TaskNum, reply.FileName, args.WorkerID)
	case types.ReduceTask:
		s.logger.Info("Task dispatched: type=reduce bucket=%d map_tasks=%d worker_id=%s", reply.TaskNum, len(reply.FileNums), args.WorkerID)
	default:
		s.logger.Debug("Job finished, releasing worker: worker_id=%s", args.WorkerID)
	}
	return nil
}

// NotifyTaskDone records a completed task. Reports for tasks that are no
// longer active under the given identity are ignored.
func (s *Scheduler) NotifyTaskDone(args *types.TaskDoneArgs, reply *types.TaskDoneReply) error {
	if args.TaskType != types.MapTask && args.TaskType != types.ReduceTask {
		s.logger.Warn("Ignoring completion with invalid task type: type=%s worker_id=%s", args.TaskType, args.WorkerID)
		return nil
	}

	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	reply.Accepted = st.completeLocked(args)
	if !reply.Accepted {
		s.logger.Info("Ignoring stale completion: type=%s task_num=%d file=%s worker_id=%s",
			args.TaskType, args.TaskNum, args.FileName, args.WorkerID)
		return nil
	}

	s.logger.Info("Task completed: type=%s task_num=%d worker_id=%s", args.TaskType, args.TaskNum, args.WorkerID)
	st.wake.Broadcast()
	return nil
}
