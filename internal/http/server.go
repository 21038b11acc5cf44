// Package http carries coordinator RPCs over net/rpc's HTTP transport and
// exposes a JSON status endpoint next to it.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"net/rpc"
	"sync"
	"time"

	"DistMR/internal/logger"
)

// StatusPath serves the JSON status document.
const StatusPath = "/status"

type ServerOpts struct {
	ID   string
	Addr string // host:port, port 0 picks a free port
}

// StatusFunc returns a JSON-encodable view of the server's owner.
type StatusFunc func() interface{}

type Server struct {
	opts       ServerOpts
	rpcServer  *rpc.Server
	httpServer *nethttp.Server
	status     StatusFunc
	logger     *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer registers rcvr under name. status may be nil.
func NewServer(opts ServerOpts, name string, rcvr interface{}, status StatusFunc, lg *logger.Logger) (*Server, error) {
	if lg == nil {
		lg = logger.NewComponent("INFO", "rpc")
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(name, rcvr); err != nil {
		return nil, fmt.Errorf("failed to register rpc service %s: %w", name, err)
	}

	s := &Server{
		opts:      opts,
		rpcServer: rpcServer,
		status:    status,
		logger:    lg,
	}

	mux := nethttp.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, rpcServer)
	mux.HandleFunc(StatusPath, s.handleStatus)
	s.httpServer = &nethttp.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) handleStatus(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		return
	}
	if s.status == nil {
		nethttp.Error(w, "status not available", nethttp.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Warn("Failed to encode status: %v", err)
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("RPC server listening: id=%s addr=%s", s.opts.ID, l.Addr())

	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			s.logger.Error("RPC server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.httpServer.Close()
}
