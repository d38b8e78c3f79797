package cluster

import (
	"sync"
	"sync/atomic"
)

// Membership owns the current View and publishes new ones atomically
// whenever the node set changes, adapted from the teacher's
// Membership (internal/cluster/membership.go), generalized so that
// readers (the dispatcher, the read path, the waiter) borrow an
// immutable *View for the lifetime of one request instead of querying
// live mutable state — see spec §3 invariant 1 and §9's note on view
// lifetime.
type Membership struct {
	selfID NodeID
	ring   *Ring

	mu    sync.Mutex // guards nodes + epoch; View publication is still atomic
	nodes map[NodeID]*Node
	epoch uint32

	current atomic.Pointer[View]
}

// NewMembership creates a Membership owning selfID, seeded with nodes,
// and builds its initial View at epoch 0.
func NewMembership(selfID NodeID, ring *Ring, nodes map[NodeID]*Node) *Membership {
	if ring == nil {
		ring = NewRing(0)
	}
	nodesCopy := make(map[NodeID]*Node, len(nodes))
	for id, n := range nodes {
		cp := *n
		nodesCopy[id] = &cp
	}

	m := &Membership{selfID: selfID, ring: ring, nodes: nodesCopy}
	m.current.Store(ring.BuildView(nodesCopy, 0))
	return m
}

// CurrentView returns the View currently in effect. Callers should hold
// onto the returned pointer for the duration of one request rather than
// calling CurrentView again mid-request, so that a concurrent
// Join/Leave cannot change which nodes a single request is scattered
// across partway through.
func (m *Membership) CurrentView() *View {
	return m.current.Load()
}

// SelfID returns the node ID this gateway instance runs as.
func (m *Membership) SelfID() NodeID {
	return m.selfID
}

// NodeIsLocal reports whether id names this gateway instance.
func (m *Membership) NodeIsLocal(id NodeID) bool {
	return id == m.selfID
}

// VnodeIsLocal reports whether a vnode's host is this gateway instance.
func (m *Membership) VnodeIsLocal(v VNode) bool {
	return m.NodeIsLocal(v.Host)
}

// NeedRetry reports whether the view is still at the epoch a pending
// request was admitted under. When true, an unanswered leg's silence
// cannot yet be attributed to a membership change — the waiter should
// keep waiting (within its retry budget) rather than assume the peer is
// gone. Grounded in original_source/sheep/gateway.c's
// sheep_need_retry: the source re-checks the epoch on every poll
// timeout and only gives up early if the epoch has since moved, meaning
// some other path (a join/leave) has already accounted for the
// silence.
func (m *Membership) NeedRetry(epoch uint32) bool {
	return m.CurrentView().Epoch == epoch
}

// Join adds or marks alive a node and publishes a new View at the next
// epoch.
func (m *Membership) Join(n Node) *View {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.Alive = true
	cp := n
	m.nodes[n.ID] = &cp
	m.epoch++

	view := m.ring.BuildView(m.nodes, m.epoch)
	m.current.Store(view)
	return view
}

// Leave marks a node dead (it stays in the view as a non-candidate
// rather than disappearing outright, so in-flight legs can still be
// attributed to it) and publishes a new View at the next epoch.
func (m *Membership) Leave(id NodeID) *View {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.nodes[id]; ok {
		n.Alive = false
	}
	m.epoch++

	view := m.ring.BuildView(m.nodes, m.epoch)
	m.current.Store(view)
	return view
}

// All returns every node known to the current view, live or dead.
func (m *Membership) All() []Node {
	view := m.CurrentView()
	out := make([]Node, 0, len(view.Nodes))
	for _, n := range view.Nodes {
		out = append(out, *n)
	}
	return out
}
