package cluster

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
)

// defaultVnodes mirrors the teacher's Ring default: enough virtual nodes
// per physical host to spread ownership evenly (ring.go's defaultVnodes).
const defaultVnodes = 150

// Ring is the placement resolver (spec §4.A): a pure function of
// (view, oid, k), adapted from the teacher's Ring type. The teacher's
// Ring owned its own mutable position map and rebuilt a sorted slice on
// every AddNode/RemoveNode; here the sorted vnode list instead lives
// inside an immutable View (built once by Membership when the view
// changes — see membership.go) and Ring only walks it, which is what
// makes Resolve/ResolveVnodes referentially transparent in (view, oid, k)
// as spec §3 invariant 1 and Testable Property 1 require.
type Ring struct {
	vnodesPerNode int
}

// NewRing creates a Ring that places vnodesPerNode virtual nodes per
// physical host when building a View. vnodesPerNode <= 0 uses the
// default.
func NewRing(vnodesPerNode int) *Ring {
	if vnodesPerNode <= 0 {
		vnodesPerNode = defaultVnodes
	}
	return &Ring{vnodesPerNode: vnodesPerNode}
}

// BuildView places every node in nodes onto the ring and returns the
// resulting immutable View at the given epoch.
func (r *Ring) BuildView(nodes map[NodeID]*Node, epoch uint32) *View {
	positions := make(map[uint32]NodeID)
	for id := range nodes {
		for i := 0; i < r.vnodesPerNode; i++ {
			pos := ringHash(fmt.Sprintf("%s#%d", id, i))
			positions[pos] = id
		}
	}

	sorted := make([]uint32, 0, len(positions))
	for pos := range positions {
		sorted = append(sorted, pos)
	}
	slices.Sort(sorted)

	vnodes := make([]VNode, len(sorted))
	for i, pos := range sorted {
		vnodes[i] = VNode{Pos: pos, Host: positions[pos]}
	}

	nodesCopy := make(map[NodeID]*Node, len(nodes))
	for id, n := range nodes {
		cp := *n
		nodesCopy[id] = &cp
	}

	return &View{Vnodes: vnodes, Nodes: nodesCopy, Epoch: epoch}
}

// Resolve returns the up-to-k distinct, live host nodes responsible for
// oid under view, walking the ring from oid's hash position and keeping
// the first k distinct live hosts encountered, ties broken by ring
// order, per spec §4.A.
func (r *Ring) Resolve(view *View, oid uint64, k int) []NodeID {
	vnodes := r.ResolveVnodes(view, oid, k)
	out := make([]NodeID, len(vnodes))
	for i, v := range vnodes {
		out[i] = v.Host
	}
	return out
}

// ResolveVnodes is Resolve but returns the selected vnode identities
// rather than just their host nodes, for callers that need to
// distinguish which virtual node, not just which physical node, claimed
// an OID.
func (r *Ring) ResolveVnodes(view *View, oid uint64, k int) []VNode {
	if len(view.Vnodes) == 0 || k <= 0 {
		return nil
	}

	pos := ringHash(fmt.Sprintf("%d", oid))
	idx := search(view.Vnodes, pos)

	seen := make(map[NodeID]bool, k)
	out := make([]VNode, 0, k)
	for i := 0; i < len(view.Vnodes) && len(out) < k; i++ {
		v := view.Vnodes[(idx+i)%len(view.Vnodes)]
		node, ok := view.Nodes[v.Host]
		if !ok || !node.Alive || seen[v.Host] {
			continue
		}
		seen[v.Host] = true
		out = append(out, v)
	}
	return out
}

// ringHash converts a string into a 32-bit ring position, matching the
// teacher's Ring.hash (sha256, first 4 bytes).
func ringHash(s string) uint32 {
	h := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint32(h[:4])
}

// search finds the index of the first vnode whose position is >= pos,
// wrapping to 0 if pos is past every position — the teacher's
// Ring.search, generalized to operate on a []VNode instead of a
// []uint32.
func search(vnodes []VNode, pos uint32) int {
	idx := sort.Search(len(vnodes), func(i int) bool {
		return vnodes[i].Pos >= pos
	})
	if idx == len(vnodes) {
		idx = 0
	}
	return idx
}
