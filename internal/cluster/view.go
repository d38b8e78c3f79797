// Package cluster resolves object placement over a virtual-node ring and
// tracks the cluster's current view and epoch, adapted from the
// teacher's Ring/Membership (internal/cluster/ring.go, membership.go in
// ppriyankuu-godkv), generalized to spec.md's view/epoch model (§3, §6).
package cluster

// NodeID identifies a host node.
type NodeID string

// Node is a cluster member.
type Node struct {
	ID      NodeID
	Address string // host:port the gateway dials for its data-plane socket
	Alive   bool
}

// VNode is one point on the ring: an identity and a back-reference to its
// host node.
type VNode struct {
	Pos  uint32
	Host NodeID
}

// View is an immutable snapshot of the virtual-node ring: the ordered
// vnodes, the host nodes, and the epoch they were observed under. A
// request holds a borrowed reference to the View it was admitted under
// for its entire lifetime (spec §3, §9 "cyclic references and view
// lifetime") — callers never mutate a View in place; Membership installs
// a new one atomically instead (see membership.go).
type View struct {
	Vnodes []VNode
	Nodes  map[NodeID]*Node
	Epoch  uint32
}

// LiveNodeCount returns how many distinct host nodes in the view are
// currently alive.
func (v *View) LiveNodeCount() int {
	n := 0
	for _, node := range v.Nodes {
		if node.Alive {
			n++
		}
	}
	return n
}
