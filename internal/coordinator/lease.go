package coordinator

import (
	"sync"
	"time"

	"DistMR/internal/logger"
)

// LeaseMonitor periodically returns tasks whose workers went silent to the
// pending queues. It is the only failure detector: a worker is presumed
// dead once its lease runs out.
type LeaseMonitor struct {
	store    *Store
	interval time.Duration
	lease    time.Duration
	logger   *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewLeaseMonitor checks store every interval for tasks older than lease.
func NewLeaseMonitor(store *Store, interval, lease time.Duration, lg *logger.Logger) *LeaseMonitor {
	if lg == nil {
		lg = logger.NewComponent("INFO", "lease")
	}
	return &LeaseMonitor{
		store:    store,
		interval: interval,
		lease:    lease,
		logger:   lg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the monitor goroutine.
func (m *LeaseMonitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

func (m *LeaseMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-m.stop:
			return
		}
	}
}

// Tick performs one reclaim pass.
func (m *LeaseMonitor) Tick() int {
	n := m.store.Reclaim(m.lease)
	if n > 0 {
		m.logger.Warn("Reclaimed expired tasks: count=%d lease=%s", n, m.lease)
	}
	return n
}

// Stop halts the monitor and waits for it to exit. Safe to call twice and
// from any goroutine.
func (m *LeaseMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	// A monitor that never started has nothing to wait for; this also
	// keeps a later Start from launching it.
	m.startOnce.Do(func() { close(m.done) })
	<-m.done
}
