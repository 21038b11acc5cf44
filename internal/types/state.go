package types

// KeyValue is the intermediate key-value pair produced by mappers.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StoreSnapshot is a point-in-time view of the coordinator's task store.
type StoreSnapshot struct {
	NReduce          int   `json:"n_reduce"`
	PendingMap       int   `json:"pending_map"`
	ActiveMap        int   `json:"active_map"`
	FinishedMap      []int `json:"finished_map"`
	MapDone          bool  `json:"map_done"`
	PendingReduce    int   `json:"pending_reduce"`
	ActiveReduce     int   `json:"active_reduce"`
	FinishedReduce   int   `json:"finished_reduce"`
	ReduceDone       bool  `json:"reduce_done"`
	MapTasksIssued   int   `json:"map_tasks_issued"`
	ReclaimedTasks   int   `json:"reclaimed_tasks"`
	ConnectedWorkers int   `json:"connected_workers,omitempty"`
}

// LedgerState is the replicated view of a job kept by the raft ledger
type LedgerState struct {
	Phase          TaskType       `json:"phase"`
	Dispatched     map[string]int `json:"dispatched"`
	Completed      map[string]int `json:"completed"`
	Reclaimed      map[string]int `json:"reclaimed"`
	FinishedMap    []int          `json:"finished_map"`
	FinishedReduce []int          `json:"finished_reduce"`
	Leader         string         `json:"leader"`
	Version        int64          `json:"version"`
}

// LogEntry represents an entry in the Raft log
type LogEntry struct {
	Type      string    `json:"type"`      // "task"
	Operation string    `json:"operation"` // event kind
	Event     TaskEvent `json:"event"`
}
