package coordinator

import (
	"errors"
	"fmt"
	"time"

	"DistMR/internal/config"
	"DistMR/internal/discovery"
	httpserver "DistMR/internal/http"
	"DistMR/internal/logger"
	"DistMR/internal/raft"
	"DistMR/internal/types"
)

// Status is served on the coordinator's status endpoint
type Status struct {
	Tasks  types.StoreSnapshot `json:"tasks"`
	Ledger *types.LedgerState  `json:"ledger,omitempty"`
}

// Coordinator runs one MapReduce job: it owns the task store and the
// services that drive it.
type Coordinator struct {
	cfg       config.Coordinator
	store     *Store
	scheduler *Scheduler
	monitor   *LeaseMonitor
	server    *httpserver.Server
	ledger    *raft.Ledger
	discovery *discovery.NodeDiscovery
	logger    *logger.Logger
}

// New builds a coordinator with one pending map task per file.
func New(cfg config.Coordinator, files []string) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}

	lg := logger.NewComponent(cfg.LogLevel, "coordinator")
	store := NewStore(files, cfg.NReduce)

	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		scheduler: NewScheduler(store, logger.NewComponent(cfg.LogLevel, "scheduler")),
		monitor:   NewLeaseMonitor(store, cfg.LeaseInterval, cfg.LeaseTimeout, logger.NewComponent(cfg.LogLevel, "lease")),
		logger:    lg,
	}

	server, err := httpserver.NewServer(httpserver.ServerOpts{ID: "coordinator", Addr: cfg.Addr}, RPCName, c.scheduler, c.status, logger.NewComponent(cfg.LogLevel, "rpc"))
	if err != nil {
		return nil, err
	}
	c.server = server

	lg.Info("Coordinator initialized: files=%d n_reduce=%d lease=%s", len(files), cfg.NReduce, cfg.LeaseTimeout)
	return c, nil
}

// Store exposes the task store, mainly for tests and status.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Addr returns the RPC address workers should dial.
func (c *Coordinator) Addr() string {
	return c.server.Addr()
}

func (c *Coordinator) status() interface{} {
	st := Status{Tasks: c.snapshot()}
	if c.ledger != nil {
		st.Ledger = c.ledger.State()
	}
	return st
}

func (c *Coordinator) snapshot() types.StoreSnapshot {
	snap := c.store.Snapshot()
	if c.discovery != nil {
		snap.ConnectedWorkers = c.discovery.NumWorkers()
	}
	return snap
}

// Start brings up the ledger, the RPC server, gossip and the lease monitor.
func (c *Coordinator) Start() error {
	if c.cfg.Ledger.Enabled() {
		cluster, err := raft.NewCluster(raft.Config{
			NodeID:   c.cfg.Ledger.NodeID,
			BindAddr: c.cfg.Ledger.BindAddr,
			BindPort: c.cfg.Ledger.BindPort,
			DataDir:  c.cfg.Ledger.DataDir,
			Peers:    c.cfg.Ledger.Peers,
			LogLevel: c.cfg.LogLevel,
		})
		if err != nil {
			return fmt.Errorf("failed to start job ledger: %w", err)
		}
		if err := cluster.WaitForLeader(10 * time.Second); err != nil {
			c.logger.Warn("Job ledger has no leader yet: %v", err)
		}
		c.ledger = raft.NewLedger(cluster)
		c.store.SetJournal(c.ledger)
	}

	if err := c.server.Start(); err != nil {
		c.Close()
		return err
	}

	if c.cfg.Gossip.Enabled() {
		nd, err := discovery.NewNodeDiscovery(discovery.Config{
			NodeID:       c.cfg.Gossip.NodeID,
			LocalAddress: c.cfg.Gossip.BindAddr,
			LocalPort:    c.cfg.Gossip.BindPort,
			JoinAddrs:    c.cfg.Gossip.JoinAddrs,
			Role:         discovery.RoleCoordinator,
			RPCAddr:      c.server.Addr(),
			LogLevel:     c.cfg.LogLevel,
		})
		if err != nil {
			c.Close()
			return fmt.Errorf("failed to start discovery: %w", err)
		}
		c.discovery = nd
	}

	c.monitor.Start()
	c.logger.Info("Coordinator started: rpc_addr=%s ledger=%v gossip=%v", c.server.Addr(), c.ledger != nil, c.discovery != nil)
	return nil
}

// Wait blocks until both phases are done, logging progress on every
// report interval.
func (c *Coordinator) Wait() {
	ticker := time.NewTicker(c.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.store.Done():
			snap := c.store.Snapshot()
			c.logger.Info("Job finished: map_tasks=%d reduce_tasks=%d reclaimed=%d",
				len(snap.FinishedMap), snap.FinishedReduce, snap.ReclaimedTasks)
			return
		case <-ticker.C:
			snap := c.snapshot()
			c.logger.Info("Not done: map pending=%d active=%d, reduce pending=%d active=%d, workers=%d",
				snap.PendingMap, snap.ActiveMap, snap.PendingReduce, snap.ActiveReduce, snap.ConnectedWorkers)
		}
	}
}

// Run starts the coordinator, waits for the job and keeps serving for the
// linger period so blocked workers receive their finished reply.
func (c *Coordinator) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	c.Wait()
	if c.cfg.Linger > 0 {
		time.Sleep(c.cfg.Linger)
	}
	return c.Close()
}

// Close stops every service the coordinator started.
func (c *Coordinator) Close() error {
	var errs []error

	c.monitor.Stop()

	if c.discovery != nil {
		if err := c.discovery.Leave(time.Second); err != nil {
			c.logger.Warn("Failed to leave gossip cluster: %v", err)
		}
		if err := c.discovery.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop discovery: %w", err))
		}
	}

	if err := c.server.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop rpc server: %w", err))
	}

	if c.ledger != nil {
		c.store.SetJournal(nil)
		if err := c.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop job ledger: %w", err))
		}
	}

	return errors.Join(errs...)
}
