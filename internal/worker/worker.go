package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"DistMR/internal/logger"
	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// ErrUnknownTaskType is returned when the coordinator replies with a task
// type the worker cannot execute.
var ErrUnknownTaskType = errors.New("unknown task type")

// Coordinator is the worker's view of the scheduling service.
type Coordinator interface {
	RequestTask(args *types.RequestTaskArgs) (*types.RequestTaskReply, error)
	NotifyTaskDone(args *types.TaskDoneArgs) (*types.TaskDoneReply, error)
}

// Worker repeatedly asks for a task, runs it and reports back until the
// coordinator says the job is finished. It keeps no state between tasks.
type Worker struct {
	id     string
	app    mapreduce.App
	coord  Coordinator
	dir    string
	logger *logger.Logger
}

// NewID returns a fresh worker identity.
func NewID() string {
	return "worker-" + uuid.New().String()[:8]
}

// New creates a worker running app against coord. Intermediate and output
// files live in dir.
func New(id string, app mapreduce.App, coord Coordinator, dir string, lg *logger.Logger) *Worker {
	if id == "" {
		id = NewID()
	}
	if lg == nil {
		lg = logger.NewComponent("INFO", id)
	}
	return &Worker{
		id:     id,
		app:    app,
		coord:  coord,
		dir:    dir,
		logger: lg,
	}
}

func (w *Worker) ID() string {
	return w.id
}

// Run drives the task loop. It returns nil once the job is finished and an
// error if the coordinator cannot be reached or sends an unknown task.
func (w *Worker) Run() error {
	w.logger.Info("Worker started: worker_id=%s dir=%s", w.id, w.dir)

	for {
		task, err := w.coord.RequestTask(&types.RequestTaskArgs{WorkerID: w.id})
		if err != nil {
			return fmt.Errorf("failed to request task: %w", err)
		}

		switch task.TaskType {
		case types.MapTask:
			if err := w.doMap(task); err != nil {
				// Left unacknowledged; the lease monitor hands it to someone else.
				w.logger.Error("Map task failed: task_num=%d file=%s err=%v", task.TaskNum, task.FileName, err)
				continue
			}
			if _, err := w.notifyDone(task); err != nil {
				return err
			}

		case types.ReduceTask:
			if err := w.doReduce(task); err != nil {
				w.logger.Error("Reduce task failed: bucket=%d err=%v", task.TaskNum, err)
				continue
			}
			accepted, err := w.notifyDone(task)
			if err != nil {
				return err
			}
			if accepted {
				w.removeIntermediates(task)
			}

		case types.FinishedTask:
			w.logger.Info("Job finished, worker exiting: worker_id=%s", w.id)
			return nil

		default:
			return fmt.Errorf("%w: %d", ErrUnknownTaskType, int(task.TaskType))
		}
	}
}

func (w *Worker) notifyDone(task *types.RequestTaskReply) (bool, error) {
	reply, err := w.coord.NotifyTaskDone(&types.TaskDoneArgs{
		WorkerID: w.id,
		TaskType: task.TaskType,
		TaskNum:  task.TaskNum,
		FileName: task.FileName,
	})
	if err != nil {
		return false, fmt.Errorf("failed to report %s task %d: %w", task.TaskType, task.TaskNum, err)
	}
	if !reply.Accepted {
		w.logger.Warn("Completion not accepted, task was reassigned: type=%s task_num=%d", task.TaskType, task.TaskNum)
	}
	return reply.Accepted, nil
}

func (w *Worker) doMap(task *types.RequestTaskReply) error {
	contents, err := os.ReadFile(task.FileName)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	kvs := w.app.Map(task.FileName, string(contents))

	buckets, err := mapreduce.Partition(kvs, task.NReduce)
	if err != nil {
		return err
	}

	if err := mapreduce.WriteIntermediate(w.dir, task.TaskNum, buckets); err != nil {
		return err
	}

	w.logger.Debug("Map task done: task_num=%d file=%s pairs=%d", task.TaskNum, task.FileName, len(kvs))
	return nil
}

func (w *Worker) doReduce(task *types.RequestTaskReply) error {
	var kvs []types.KeyValue
	for _, m := range task.FileNums {
		part, err := mapreduce.ReadIntermediate(filepath.Join(w.dir, mapreduce.IntermediateName(m, task.TaskNum)))
		if err != nil {
			return err
		}
		kvs = append(kvs, part...)
	}

	grouped := mapreduce.Group(kvs)
	result := make(map[string]string, len(grouped))
	for key, values := range grouped {
		result[key] = w.app.Reduce(key, values)
	}

	if err := mapreduce.WriteOutput(filepath.Join(w.dir, mapreduce.OutputName(task.TaskNum)), result); err != nil {
		return err
	}

	w.logger.Debug("Reduce task done: bucket=%d map_tasks=%d keys=%d", task.TaskNum, len(task.FileNums), len(result))
	return nil
}

func (w *Worker) removeIntermediates(task *types.RequestTaskReply) {
	for _, m := range task.FileNums {
		path := filepath.Join(w.dir, mapreduce.IntermediateName(m, task.TaskNum))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Failed to delete intermediate file %s: %v", path, err)
		}
	}
}
