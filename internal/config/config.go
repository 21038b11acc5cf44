// Package config holds the tunables of the coordinator, worker and
// sequential modes and binds them to command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Ledger configures the optional raft-replicated job ledger. It is enabled
// when DataDir is set.
type Ledger struct {
	NodeID   string
	BindAddr string
	BindPort int
	DataDir  string
	Peers    []string // nodeID@host:port, including this node
}

func (l Ledger) Enabled() bool {
	return l.DataDir != ""
}

// Gossip configures optional memberlist discovery. It is enabled when
// BindPort is non-zero.
type Gossip struct {
	NodeID    string
	BindAddr  string
	BindPort  int
	JoinAddrs []string
}

func (g Gossip) Enabled() bool {
	return g.BindPort != 0
}

// Coordinator holds the coordinator's settings.
type Coordinator struct {
	Addr           string
	NReduce        int
	LeaseTimeout   time.Duration
	LeaseInterval  time.Duration
	ReportInterval time.Duration
	Linger         time.Duration
	LogLevel       string
	Ledger         Ledger
	Gossip         Gossip
}

// Worker holds a worker's settings.
type Worker struct {
	CoordinatorAddr string
	App             string
	Dir             string
	LogLevel        string
	DiscoverTimeout time.Duration
	Gossip          Gossip
}

// Sequential holds the reference runner's settings.
type Sequential struct {
	App       string
	OutputDir string
	LogLevel  string
}

func DefaultCoordinator() Coordinator {
	return Coordinator{
		Addr:           "127.0.0.1:1234",
		NReduce:        10,
		LeaseTimeout:   10 * time.Second,
		LeaseInterval:  10 * time.Second,
		ReportInterval: 10 * time.Second,
		Linger:         2 * time.Second,
		LogLevel:       "INFO",
		Ledger: Ledger{
			NodeID:   "coordinator",
			BindAddr: "127.0.0.1",
			BindPort: 9101,
		},
		Gossip: Gossip{
			NodeID:   "coordinator",
			BindAddr: "127.0.0.1",
		},
	}
}

func DefaultWorker() Worker {
	return Worker{
		CoordinatorAddr: "127.0.0.1:1234",
		Dir:             ".",
		LogLevel:        "INFO",
		DiscoverTimeout: 10 * time.Second,
		Gossip: Gossip{
			BindAddr: "127.0.0.1",
		},
	}
}

func DefaultSequential() Sequential {
	return Sequential{
		OutputDir: ".",
		LogLevel:  "INFO",
	}
}

// listFlag is a comma-separated list of strings.
type listFlag struct {
	target *[]string
}

func (l listFlag) String() string {
	if l.target == nil {
		return ""
	}
	return strings.Join(*l.target, ",")
}

func (l listFlag) Set(v string) error {
	*l.target = nil
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l.target = append(*l.target, part)
		}
	}
	return nil
}

func (g *Gossip) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&g.NodeID, "gossip-node-id", g.NodeID, "Gossip node name (defaults to a generated id for workers)")
	fs.StringVar(&g.BindAddr, "gossip-addr", g.BindAddr, "Gossip bind address")
	fs.IntVar(&g.BindPort, "gossip-port", g.BindPort, "Gossip bind port, 0 disables discovery")
	fs.Var(listFlag{&g.JoinAddrs}, "gossip-join", "Comma-separated gossip addresses to join (host:port)")
}

// RegisterFlags binds the coordinator settings to fs.
func (c *Coordinator) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "RPC listen address")
	fs.IntVar(&c.NReduce, "nreduce", c.NReduce, "Number of reduce tasks")
	fs.DurationVar(&c.LeaseTimeout, "lease", c.LeaseTimeout, "Time after which an unconfirmed task is reassigned")
	fs.DurationVar(&c.LeaseInterval, "lease-interval", c.LeaseInterval, "How often expired leases are checked")
	fs.DurationVar(&c.ReportInterval, "report-interval", c.ReportInterval, "How often progress is logged")
	fs.DurationVar(&c.Linger, "linger", c.Linger, "How long to keep serving after the job finishes")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")
	fs.StringVar(&c.Ledger.NodeID, "ledger-node-id", c.Ledger.NodeID, "Raft node id of the job ledger")
	fs.StringVar(&c.Ledger.BindAddr, "ledger-addr", c.Ledger.BindAddr, "Raft bind address of the job ledger")
	fs.IntVar(&c.Ledger.BindPort, "ledger-port", c.Ledger.BindPort, "Raft bind port of the job ledger")
	fs.StringVar(&c.Ledger.DataDir, "ledger-dir", c.Ledger.DataDir, "Raft data directory, empty disables the ledger")
	fs.Var(listFlag{&c.Ledger.Peers}, "ledger-peers", "Comma-separated raft peers (nodeID@host:port)")
	c.Gossip.registerFlags(fs)
}

// RegisterFlags binds the worker settings to fs.
func (w *Worker) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&w.CoordinatorAddr, "coordinator", w.CoordinatorAddr, "Coordinator RPC address")
	fs.StringVar(&w.Dir, "dir", w.Dir, "Directory for intermediate and output files")
	fs.StringVar(&w.LogLevel, "log-level", w.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")
	fs.DurationVar(&w.DiscoverTimeout, "discover-timeout", w.DiscoverTimeout, "How long to wait for the coordinator to appear via gossip")
	w.Gossip.registerFlags(fs)
}

// RegisterFlags binds the sequential runner settings to fs.
func (s *Sequential) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.OutputDir, "dir", s.OutputDir, "Directory for the output file")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")
}

func (c Coordinator) Validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.NReduce <= 0 {
		return fmt.Errorf("nreduce must be positive, got %d", c.NReduce)
	}
	if c.LeaseTimeout <= 0 || c.LeaseInterval <= 0 {
		return errors.New("lease and lease-interval must be positive")
	}
	if c.ReportInterval <= 0 {
		return errors.New("report-interval must be positive")
	}
	if c.Ledger.Enabled() && c.Ledger.NodeID == "" {
		return errors.New("ledger-node-id cannot be empty")
	}
	for _, p := range c.Ledger.Peers {
		if !strings.Contains(p, "@") {
			return fmt.Errorf("invalid ledger peer %q, want nodeID@host:port", p)
		}
	}
	if c.Gossip.Enabled() && c.Gossip.NodeID == "" {
		return errors.New("gossip-node-id cannot be empty")
	}
	return nil
}

func (w Worker) Validate() error {
	if w.App == "" {
		return errors.New("application name cannot be empty")
	}
	if w.CoordinatorAddr == "" && !w.Gossip.Enabled() {
		return errors.New("either coordinator or gossip-port must be set")
	}
	if w.Gossip.Enabled() && len(w.Gossip.JoinAddrs) == 0 {
		return errors.New("gossip-join is required when gossip is enabled")
	}
	return nil
}

func (s Sequential) Validate() error {
	if s.App == "" {
		return errors.New("application name cannot be empty")
	}
	return nil
}
