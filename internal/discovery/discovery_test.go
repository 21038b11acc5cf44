package discovery

import (
	"testing"
	"time"

	"stathat.com/c/consistent"
)

func TestWorkerDiscoversCoordinator(t *testing.T) {
	coord, err := NewNodeDiscovery(Config{
		NodeID:       "coordinator",
		LocalAddress: "127.0.0.1",
		LocalPort:    17946,
		Role:         RoleCoordinator,
		RPCAddr:      "127.0.0.1:1234",
		LogLevel:     "WARN",
	})
	if err != nil {
		t.Fatalf("Failed to start coordinator discovery: %v", err)
	}
	defer coord.Shutdown()

	joined := make(chan Member, 4)
	coord.RegisterJoinCallback(func(m Member) { joined <- m })

	worker, err := NewNodeDiscovery(Config{
		NodeID:       "worker-test",
		LocalAddress: "127.0.0.1",
		LocalPort:    17947,
		JoinAddrs:    []string{"127.0.0.1:17946"},
		Role:         RoleWorker,
		LogLevel:     "WARN",
	})
	if err != nil {
		t.Fatalf("Failed to start worker discovery: %v", err)
	}
	defer worker.Shutdown()

	addr, err := worker.WaitForCoordinator(5 * time.Second)
	if err != nil {
		t.Fatalf("Worker did not discover coordinator: %v", err)
	}
	if addr != "127.0.0.1:1234" {
		t.Fatalf("Unexpected coordinator address: %s", addr)
	}

	deadline := time.Now().Add(5 * time.Second)
	for coord.NumWorkers() != 1 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if coord.NumWorkers() != 1 {
		t.Fatalf("Coordinator should see one worker, members=%v", coord.GetMembers())
	}

	select {
	case m := <-joined:
		if m.Role == "" {
			t.Fatalf("Join callback received member without role: %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Join callback never fired")
	}

	t.Logf("Worker discovered coordinator at %s", addr)
}

func TestCoordinatorAddrAbsent(t *testing.T) {
	nd, err := NewNodeDiscovery(Config{
		NodeID:       "lonely-worker",
		LocalAddress: "127.0.0.1",
		LocalPort:    17948,
		Role:         RoleWorker,
		LogLevel:     "WARN",
	})
	if err != nil {
		t.Fatalf("Failed to start discovery: %v", err)
	}
	defer nd.Shutdown()

	if _, ok := nd.CoordinatorAddr(); ok {
		t.Fatalf("No coordinator should be known")
	}
	if _, err := nd.WaitForCoordinator(200 * time.Millisecond); err == nil {
		t.Fatalf("Expected timeout error")
	}
}

func TestCoordinatorAddrStableAcrossMembers(t *testing.T) {
	newNode := func(id string) *NodeDiscovery {
		nd := &NodeDiscovery{
			localNodeID:  id,
			members:      make(map[string]Member),
			coordinators: consistent.New(),
		}
		nd.members["c1"] = Member{NodeID: "c1", Role: RoleCoordinator, RPCAddr: "10.0.0.1:1234"}
		nd.members["c2"] = Member{NodeID: "c2", Role: RoleCoordinator, RPCAddr: "10.0.0.2:1234"}
		nd.members[id] = Member{NodeID: id, Role: RoleWorker}
		nd.refreshCoordinatorsLocked()
		return nd
	}

	a, ok := newNode("worker-a").CoordinatorAddr()
	if !ok {
		t.Fatalf("Expected a coordinator address")
	}
	b, _ := newNode("worker-a").CoordinatorAddr()
	if a != b {
		t.Fatalf("Same node id mapped to different coordinators: %s vs %s", a, b)
	}

	nd := newNode("worker-a")
	delete(nd.members, "c1")
	delete(nd.members, "c2")
	nd.refreshCoordinatorsLocked()
	if _, ok := nd.CoordinatorAddr(); ok {
		t.Fatalf("Coordinator should be gone after both left")
	}
}
