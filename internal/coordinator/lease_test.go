package coordinator

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"DistMR/internal/logger"
	"DistMR/internal/types"
)

func TestLeaseMonitorReclaimsAbandonedTask(t *testing.T) {
	s, st, _ := newTestScheduler([]string{"a.txt", "b.txt"}, 1)
	st.now = time.Now

	var buf bytes.Buffer
	m := NewLeaseMonitor(st, 20*time.Millisecond, 50*time.Millisecond, logger.NewWithOutput("WARN", "lease", &buf))
	m.Start()
	defer m.Stop()

	abandoned := request(t, s, "crashed")

	deadline := time.Now().Add(2 * time.Second)
	for st.Snapshot().ReclaimedTasks == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if st.Snapshot().ReclaimedTasks == 0 {
		t.Fatalf("Lease monitor never reclaimed the abandoned task")
	}
	// Stop before reading buf; the monitor goroutine writes to it.
	m.Stop()
	if !bytes.Contains(buf.Bytes(), []byte("Reclaimed expired tasks")) {
		t.Fatalf("Expected a reclaim warning in the log, got: %s", buf.String())
	}

	// A live worker drains the job.
	for {
		r := request(t, s, "healthy")
		if r.TaskType == types.FinishedTask {
			break
		}
		if r.TaskType == types.MapTask && r.FileName == abandoned.FileName && r.TaskNum == abandoned.TaskNum {
			t.Fatalf("Reclaimed task was redispatched with its old number")
		}
		notify(t, s, r)
	}

	if notify(t, s, abandoned) {
		t.Fatalf("Late report from the crashed worker should be ignored")
	}
}

func TestLeaseMonitorTick(t *testing.T) {
	s, st, clock := newTestScheduler([]string{"a.txt"}, 1)
	m := NewLeaseMonitor(st, time.Hour, 10*time.Second, nil)

	request(t, s, "w1")
	if n := m.Tick(); n != 0 {
		t.Fatalf("Fresh lease should not expire, reclaimed %d", n)
	}
	clock.Advance(10*time.Second + time.Millisecond)
	if n := m.Tick(); n != 1 {
		t.Fatalf("Expected expired lease to be reclaimed, got %d", n)
	}

	m.Stop()
	m.Stop()
}

func TestLeaseMonitorStopWithoutStart(t *testing.T) {
	_, st, _ := newTestScheduler([]string{"a.txt"}, 1)
	m := NewLeaseMonitor(st, time.Millisecond, time.Millisecond, nil)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop on an unstarted monitor should not block")
	}

	// Start after Stop must not launch the loop.
	m.Start()
	m.Stop()
	if st.Snapshot().ReclaimedTasks != 0 {
		t.Fatalf("Stopped monitor should not reclaim")
	}
}

func TestLeaseMonitorConcurrentStartStop(t *testing.T) {
	_, st, _ := newTestScheduler([]string{"a.txt"}, 1)
	m := NewLeaseMonitor(st, time.Millisecond, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); m.Start() }()
		go func() { defer wg.Done(); m.Stop() }()
	}
	wg.Wait()
	m.Stop()
}
