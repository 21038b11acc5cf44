package types

import (
	"fmt"
	"time"
)

// TaskType identifies the kind of work handed to a worker
type TaskType int

const (
	MapTask TaskType = iota + 1
	ReduceTask
	FinishedTask
)

func (t TaskType) String() string {
	switch t {
	case MapTask:
		return "map"
	case ReduceTask:
		return "reduce"
	case FinishedTask:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// RequestTaskArgs is sent by a worker asking for work
type RequestTaskArgs struct {
	WorkerID string
}

// RequestTaskReply describes the task handed out.
// Fields that do not apply to TaskType are left zero.
type RequestTaskReply struct {
	TaskType TaskType
	FileName string
	FileNums []int
	TaskNum  int
	NReduce  int
}

// TaskDoneArgs reports a finished task
type TaskDoneArgs struct {
	WorkerID string
	TaskType TaskType
	TaskNum  int
	FileName string
}

// TaskDoneReply acknowledges a report. Accepted is false when the task was
// no longer active under that identity.
type TaskDoneReply struct {
	Accepted bool
}

// EventKind names a task lifecycle transition recorded in the ledger
type EventKind string

const (
	EventDispatch EventKind = "dispatch"
	EventComplete EventKind = "complete"
	EventReclaim  EventKind = "reclaim"
	EventPhase    EventKind = "phase"
)

// TaskEvent is a single transition of the coordinator's task store
type TaskEvent struct {
	Kind      EventKind `json:"kind"`
	Phase     TaskType  `json:"phase"`
	TaskNum   int       `json:"task_num"`
	FileName  string    `json:"file_name,omitempty"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
