package worker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"DistMR/internal/config"
	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// localCoordinator calls the scheduler in-process.
type localCoordinator struct {
	s *coordinator.Scheduler
}

func (l localCoordinator) RequestTask(args *types.RequestTaskArgs) (*types.RequestTaskReply, error) {
	reply := &types.RequestTaskReply{}
	err := l.s.RequestTask(args, reply)
	return reply, err
}

func (l localCoordinator) NotifyTaskDone(args *types.TaskDoneArgs) (*types.TaskDoneReply, error) {
	reply := &types.TaskDoneReply{}
	err := l.s.NotifyTaskDone(args, reply)
	return reply, err
}

// scriptedCoordinator replays canned replies and records reports.
type scriptedCoordinator struct {
	mu      sync.Mutex
	replies []types.RequestTaskReply
	reports []types.TaskDoneArgs
	accept  bool
}

func (s *scriptedCoordinator) RequestTask(*types.RequestTaskArgs) (*types.RequestTaskReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return nil, errors.New("connection refused")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return &r, nil
}

func (s *scriptedCoordinator) NotifyTaskDone(args *types.TaskDoneArgs) (*types.TaskDoneReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, *args)
	return &types.TaskDoneReply{Accepted: s.accept}, nil
}

func wordCount() mapreduce.App {
	return mapreduce.Funcs{
		MapFunc: func(_ string, contents string) []types.KeyValue {
			var kvs []types.KeyValue
			for _, w := range strings.Fields(contents) {
				kvs = append(kvs, types.KeyValue{Key: w, Value: "1"})
			}
			return kvs
		},
		ReduceFunc: func(_ string, values []string) string {
			return strconv.Itoa(len(values))
		},
	}
}

func quietLogger() *logger.Logger {
	return logger.NewWithOutput("ERROR", "worker", &bytes.Buffer{})
}

func writeInputs(t *testing.T, dir string, contents ...string) []string {
	t.Helper()
	var files []string
	for i, c := range contents {
		name := filepath.Join(dir, "input-"+strconv.Itoa(i)+".txt")
		if err := os.WriteFile(name, []byte(c), 0644); err != nil {
			t.Fatalf("Failed to write input: %v", err)
		}
		files = append(files, name)
	}
	return files
}

// readOutputs returns every output line across mr-out-<bucket> files, sorted.
func readOutputs(t *testing.T, dir string, nReduce int) []string {
	t.Helper()
	var lines []string
	for b := 0; b < nReduce; b++ {
		data, err := os.ReadFile(filepath.Join(dir, mapreduce.OutputName(b)))
		if err != nil {
			t.Fatalf("Missing output for bucket %d: %v", b, err)
		}
		for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if l != "" {
				lines = append(lines, l)
			}
		}
	}
	sort.Strings(lines)
	return lines
}

func runWorkers(t *testing.T, n int, coord Coordinator, app mapreduce.App, dir string) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- New("", app, coord, dir, quietLogger()).Run()
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatalf("Workers did not finish")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Worker failed: %v", err)
		}
	}
}

func TestWordCountScenario(t *testing.T) {
	dir := t.TempDir()
	files := writeInputs(t, dir, "the quick the lazy")

	store := coordinator.NewStore(files, 2)
	sched := coordinator.NewScheduler(store, quietLogger())

	runWorkers(t, 1, localCoordinator{sched}, wordCount(), dir)

	got := readOutputs(t, dir, 2)
	want := []string{"lazy 1", "quick 1", "the 2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Unexpected output: %v, want %v", got, want)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "mr-out-*-*"))
	if len(leftovers) != 0 {
		t.Fatalf("Intermediate files not cleaned up: %v", leftovers)
	}
}

func TestManyWorkersMatchSequential(t *testing.T) {
	dir := t.TempDir()
	files := writeInputs(t, dir,
		"a b c a",
		"b b d",
		"e a",
		"c c c c",
		"f",
	)

	store := coordinator.NewStore(files, 3)
	sched := coordinator.NewScheduler(store, quietLogger())
	runWorkers(t, 4, localCoordinator{sched}, wordCount(), dir)

	result, err := mapreduce.NewEngine(dir, quietLogger()).Execute(files, wordCount())
	if err != nil {
		t.Fatalf("Sequential run failed: %v", err)
	}
	var want []string
	for k, v := range result {
		want = append(want, k+" "+v)
	}
	sort.Strings(want)

	got := readOutputs(t, dir, 3)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Distributed output %v differs from sequential %v", got, want)
	}

	snap := store.Snapshot()
	if len(snap.FinishedMap) != len(files) || snap.FinishedReduce != 3 || !snap.ReduceDone {
		t.Fatalf("Incomplete job: %+v", snap)
	}
}

func TestCrashedWorkerTaskIsReassigned(t *testing.T) {
	dir := t.TempDir()
	files := writeInputs(t, dir, "x y", "y z")

	store := coordinator.NewStore(files, 2)
	sched := coordinator.NewScheduler(store, quietLogger())
	monitor := coordinator.NewLeaseMonitor(store, 20*time.Millisecond, 100*time.Millisecond, quietLogger())
	monitor.Start()
	defer monitor.Stop()

	coord := localCoordinator{sched}

	// Takes a map task and disappears without reporting.
	lost, err := coord.RequestTask(&types.RequestTaskArgs{WorkerID: "crashed"})
	if err != nil || lost.TaskType != types.MapTask {
		t.Fatalf("Expected a map task for the crashing worker, got %+v err=%v", lost, err)
	}

	runWorkers(t, 2, coord, wordCount(), dir)

	snap := store.Snapshot()
	if !snap.ReduceDone || snap.ReclaimedTasks == 0 {
		t.Fatalf("Expected job to finish after reclaiming the lost task: %+v", snap)
	}

	got := readOutputs(t, dir, 2)
	want := []string{"x 1", "y 2", "z 1"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Unexpected output: %v, want %v", got, want)
	}

	late, _ := coord.NotifyTaskDone(&types.TaskDoneArgs{TaskType: types.MapTask, TaskNum: lost.TaskNum, FileName: lost.FileName})
	if late.Accepted {
		t.Fatalf("Late report from crashed worker should be ignored")
	}
}

func TestMapReadFailureLeavesTaskUnacknowledged(t *testing.T) {
	coord := &scriptedCoordinator{
		accept: true,
		replies: []types.RequestTaskReply{
			{TaskType: types.MapTask, FileName: filepath.Join(t.TempDir(), "missing.txt"), TaskNum: 0, NReduce: 2},
			{TaskType: types.FinishedTask},
		},
	}

	if err := New("w", wordCount(), coord, t.TempDir(), quietLogger()).Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(coord.reports) != 0 {
		t.Fatalf("Failed map task must not be reported, got %v", coord.reports)
	}
}

func TestRejectedReduceKeepsIntermediates(t *testing.T) {
	dir := t.TempDir()
	if err := mapreduce.WriteIntermediate(dir, 7, [][]types.KeyValue{{{Key: "k", Value: "1"}}}); err != nil {
		t.Fatalf("WriteIntermediate failed: %v", err)
	}

	coord := &scriptedCoordinator{
		accept: false,
		replies: []types.RequestTaskReply{
			{TaskType: types.ReduceTask, TaskNum: 0, FileNums: []int{7}},
			{TaskType: types.FinishedTask},
		},
	}
	if err := New("w", wordCount(), coord, dir, quietLogger()).Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(coord.reports) != 1 || coord.reports[0].TaskType != types.ReduceTask || coord.reports[0].WorkerID != "w" {
		t.Fatalf("Expected one reduce report, got %v", coord.reports)
	}
	if _, err := os.Stat(filepath.Join(dir, "mr-out-7-0")); err != nil {
		t.Fatalf("Intermediate file should survive a rejected report: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "mr-out-0"))
	if string(data) != "k 1\n" {
		t.Fatalf("Unexpected reduce output: %q", data)
	}
}

func TestUnknownTaskTypeIsFatal(t *testing.T) {
	coord := &scriptedCoordinator{replies: []types.RequestTaskReply{{TaskType: types.TaskType(42)}}}

	err := New("w", wordCount(), coord, t.TempDir(), quietLogger()).Run()
	if !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("Expected ErrUnknownTaskType, got %v", err)
	}
}

func TestUnreachableCoordinatorIsFatal(t *testing.T) {
	err := New("w", wordCount(), &scriptedCoordinator{}, t.TempDir(), quietLogger()).Run()
	if err == nil {
		t.Fatalf("Expected error when the coordinator is unreachable")
	}
}

func TestWorkerOverRPC(t *testing.T) {
	dir := t.TempDir()
	files := writeInputs(t, dir, "the quick the lazy", "lazy dog")

	cfg := config.DefaultCoordinator()
	cfg.Addr = "127.0.0.1:0"
	cfg.NReduce = 2
	cfg.LogLevel = "ERROR"

	c, err := coordinator.New(cfg, files)
	if err != nil {
		t.Fatalf("coordinator.New failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	wcfg := config.DefaultWorker()
	wcfg.CoordinatorAddr = c.Addr()

	sess, err := Connect(wcfg, NewID(), coordinator.RPCName)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	runWorkers(t, 1, sess, wordCount(), dir)

	got := readOutputs(t, dir, 2)
	want := []string{"dog 1", "lazy 2", "quick 1", "the 2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Unexpected output: %v, want %v", got, want)
	}
}

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "worker-") || len(id) != len("worker-")+8 {
		t.Fatalf("Unexpected worker id: %s", id)
	}
	if NewID() == id {
		t.Fatalf("Worker ids should be unique")
	}
}
