package worker

import (
	"fmt"
	"time"

	"DistMR/internal/config"
	"DistMR/internal/discovery"
	httpserver "DistMR/internal/http"
)

// Session is a worker's connection to the coordinator, found either from
// the configured address or through gossip.
type Session struct {
	*httpserver.Client
	discovery *discovery.NodeDiscovery
}

// Connect dials the coordinator. With gossip enabled the worker joins the
// cluster first and uses the RPC address the coordinator advertises.
func Connect(cfg config.Worker, id, service string) (*Session, error) {
	addr := cfg.CoordinatorAddr
	s := &Session{}

	if cfg.Gossip.Enabled() {
		nodeID := cfg.Gossip.NodeID
		if nodeID == "" {
			nodeID = id
		}
		nd, err := discovery.NewNodeDiscovery(discovery.Config{
			NodeID:       nodeID,
			LocalAddress: cfg.Gossip.BindAddr,
			LocalPort:    cfg.Gossip.BindPort,
			JoinAddrs:    cfg.Gossip.JoinAddrs,
			Role:         discovery.RoleWorker,
			LogLevel:     cfg.LogLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start discovery: %w", err)
		}
		s.discovery = nd

		addr, err = nd.WaitForCoordinator(cfg.DiscoverTimeout)
		if err != nil {
			nd.Shutdown()
			return nil, err
		}
	}

	client, err := httpserver.Dial(addr, service)
	if err != nil {
		if s.discovery != nil {
			s.discovery.Shutdown()
		}
		return nil, err
	}
	s.Client = client
	return s, nil
}

// Close drops the RPC connection and leaves the gossip cluster.
func (s *Session) Close() error {
	err := s.Client.Close()
	if s.discovery != nil {
		s.discovery.Leave(time.Second)
		s.discovery.Shutdown()
	}
	return err
}
