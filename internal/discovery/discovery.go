package discovery

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"stathat.com/c/consistent"

	"DistMR/internal/logger"
)

// Node roles advertised in gossip metadata.
const (
	RoleCoordinator = "coordinator"
	RoleWorker      = "worker"
)

// nodeMeta is gossiped with every member.
type nodeMeta struct {
	Role    string `json:"role"`
	RPCAddr string `json:"rpc_addr,omitempty"`
}

// Member is a discovered cluster member.
type Member struct {
	NodeID  string
	Address string
	Role    string
	RPCAddr string
}

// EventDelegate implements memberlist.EventDelegate for handling membership changes
type EventDelegate struct {
	discovery *NodeDiscovery
}

func (ed *EventDelegate) NotifyJoin(node *memberlist.Node) {
	ed.discovery.handleNodeJoin(node)
}

func (ed *EventDelegate) NotifyLeave(node *memberlist.Node) {
	ed.discovery.handleNodeLeave(node)
}

func (ed *EventDelegate) NotifyUpdate(node *memberlist.Node) {
	ed.discovery.handleNodeUpdate(node)
}

// metaDelegate implements memberlist.Delegate; it only publishes node metadata.
type metaDelegate struct {
	meta []byte
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		return nil
	}
	return d.meta
}

func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// NodeDiscovery uses memberlist to let workers find the coordinator and
// the coordinator count live workers
type NodeDiscovery struct {
	memberlist *memberlist.Memberlist
	logger     *logger.Logger
	mu         sync.RWMutex

	onNodeJoin  func(Member)
	onNodeLeave func(string)

	members     map[string]Member // nodeID -> member
	localNodeID string

	// coordinators holds the advertised coordinator RPC addresses; each
	// worker sticks to the one its node ID hashes to.
	coordinators *consistent.Consistent
}

// Config for node discovery
type Config struct {
	NodeID       string   // Unique node identifier
	LocalAddress string   // Address to bind to
	LocalPort    int      // Port to bind to
	JoinAddrs    []string // Addresses to join cluster (format: "host:port")
	Role         string   // RoleCoordinator or RoleWorker
	RPCAddr      string   // Coordinator RPC address advertised to workers
	LogLevel     string
}

// NewNodeDiscovery creates a new node discovery service
func NewNodeDiscovery(cfg Config) (*NodeDiscovery, error) {
	lg := logger.NewComponent(cfg.LogLevel, "discovery")
	lg.Info("Initializing node discovery: node_id=%s role=%s addr=%s:%d", cfg.NodeID, cfg.Role, cfg.LocalAddress, cfg.LocalPort)

	meta, err := json.Marshal(nodeMeta{Role: cfg.Role, RPCAddr: cfg.RPCAddr})
	if err != nil {
		return nil, fmt.Errorf("failed to encode node metadata: %w", err)
	}

	nd := &NodeDiscovery{
		logger:       lg,
		localNodeID:  cfg.NodeID,
		members:      make(map[string]Member),
		coordinators: consistent.New(),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.LocalPort
	mlConfig.BindAddr = cfg.LocalAddress
	mlConfig.AdvertisePort = cfg.LocalPort
	mlConfig.RetransmitMult = 3
	mlConfig.ProbeInterval = 1 * time.Second
	mlConfig.ProbeTimeout = 500 * time.Millisecond
	mlConfig.GossipInterval = 200 * time.Millisecond
	mlConfig.GossipNodes = 3
	mlConfig.Events = &EventDelegate{discovery: nd}
	mlConfig.Delegate = &metaDelegate{meta: meta}
	if logger.ParseLevel(cfg.LogLevel) > logger.DEBUG {
		mlConfig.LogOutput = io.Discard
	}

	nd.members[cfg.NodeID] = Member{
		NodeID:  cfg.NodeID,
		Address: net.JoinHostPort(cfg.LocalAddress, strconv.Itoa(cfg.LocalPort)),
		Role:    cfg.Role,
		RPCAddr: cfg.RPCAddr,
	}
	nd.refreshCoordinatorsLocked()

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		lg.Error("Failed to create memberlist: %v", err)
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	nd.memberlist = ml

	if len(cfg.JoinAddrs) > 0 {
		n, err := ml.Join(cfg.JoinAddrs)
		if err != nil {
			lg.Warn("Failed to join cluster: %v (continuing as single node)", err)
		} else {
			lg.Info("Successfully joined cluster: contacted=%d members=%d", n, ml.NumMembers())
		}
	}

	return nd, nil
}

func memberFromNode(node *memberlist.Node) Member {
	m := Member{
		NodeID:  node.Name,
		Address: net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port))),
	}
	var meta nodeMeta
	if len(node.Meta) > 0 && json.Unmarshal(node.Meta, &meta) == nil {
		m.Role = meta.Role
		m.RPCAddr = meta.RPCAddr
	}
	return m
}

// GetMembers returns all discovered nodes
func (nd *NodeDiscovery) GetMembers() map[string]Member {
	nd.mu.RLock()
	defer nd.mu.RUnlock()

	result := make(map[string]Member, len(nd.members))
	for k, v := range nd.members {
		result[k] = v
	}
	return result
}

// CoordinatorAddr returns the RPC address of the coordinator this node maps
// to when several are advertised.
func (nd *NodeDiscovery) CoordinatorAddr() (string, bool) {
	addr, err := nd.coordinators.Get(nd.localNodeID)
	if err != nil {
		return "", false
	}
	return addr, true
}

func (nd *NodeDiscovery) refreshCoordinatorsLocked() {
	var addrs []string
	for _, m := range nd.members {
		if m.Role == RoleCoordinator && m.RPCAddr != "" {
			addrs = append(addrs, m.RPCAddr)
		}
	}
	nd.coordinators.Set(addrs)
}

// WaitForCoordinator polls membership until a coordinator shows up.
func (nd *NodeDiscovery) WaitForCoordinator(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		if addr, ok := nd.CoordinatorAddr(); ok {
			return addr, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no coordinator discovered within %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// NumWorkers returns the number of live worker members
func (nd *NodeDiscovery) NumWorkers() int {
	nd.mu.RLock()
	defer nd.mu.RUnlock()

	n := 0
	for _, m := range nd.members {
		if m.Role == RoleWorker {
			n++
		}
	}
	return n
}

// RegisterJoinCallback registers a callback for when nodes join
func (nd *NodeDiscovery) RegisterJoinCallback(callback func(Member)) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.onNodeJoin = callback
}

// RegisterLeaveCallback registers a callback for when nodes leave
func (nd *NodeDiscovery) RegisterLeaveCallback(callback func(nodeID string)) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.onNodeLeave = callback
}

func (nd *NodeDiscovery) handleNodeJoin(node *memberlist.Node) {
	m := memberFromNode(node)

	nd.mu.Lock()
	nd.members[m.NodeID] = m
	nd.refreshCoordinatorsLocked()
	callback := nd.onNodeJoin
	nd.mu.Unlock()

	if m.NodeID != nd.localNodeID {
		nd.logger.Info("Node joined: node_id=%s role=%s address=%s", m.NodeID, m.Role, m.Address)
	}

	if callback != nil {
		callback(m)
	}
}

func (nd *NodeDiscovery) handleNodeLeave(node *memberlist.Node) {
	nd.mu.Lock()
	nodeID := node.Name
	delete(nd.members, nodeID)
	nd.refreshCoordinatorsLocked()
	callback := nd.onNodeLeave
	nd.mu.Unlock()

	nd.logger.Info("Node left: node_id=%s", nodeID)

	if callback != nil {
		callback(nodeID)
	}
}

func (nd *NodeDiscovery) handleNodeUpdate(node *memberlist.Node) {
	m := memberFromNode(node)

	nd.mu.Lock()
	nd.members[m.NodeID] = m
	nd.refreshCoordinatorsLocked()
	nd.mu.Unlock()

	nd.logger.Debug("Node updated: node_id=%s address=%s", m.NodeID, m.Address)
}

// Leave gracefully leaves the cluster
func (nd *NodeDiscovery) Leave(timeout time.Duration) error {
	return nd.memberlist.Leave(timeout)
}

// Shutdown shuts down the discovery service
func (nd *NodeDiscovery) Shutdown() error {
	return nd.memberlist.Shutdown()
}
