// Package transport owns the pooled connections the gateway's fan-out
// dispatcher and read path use to reach peers, and the epoch-aware
// send/receive helpers layered over the wire protocol, adapted from the
// teacher's per-peer *http.Client map (internal/cluster/replicator.go's
// peers field). The teacher dialed once per request through a shared
// http.Client with its own connection reuse; here the wire protocol is a
// persistent binary socket, not request/response HTTP, so the pool
// instead hands out and reclaims raw net.Conn values directly, mirroring
// original_source/sheep/gateway.c's sockfd_cache_get/put/del/del_node.
package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/sheepgate/gateway/internal/cluster"
)

// Pool hands out pooled connections to peer gateways by node id. A
// connection acquired with Get must be returned exactly once, via Put
// (healthy) or Del (faulty) — see spec.md §5's "every leg paired with
// exactly one of cache_put or cache_del" discipline and Testable
// Property 2 (leg conservation).
type Pool struct {
	membership *cluster.Membership

	mu    sync.Mutex
	conns map[cluster.NodeID][]net.Conn
}

// NewPool creates a Pool that dials addresses resolved through
// membership.
func NewPool(membership *cluster.Membership) *Pool {
	return &Pool{
		membership: membership,
		conns:      make(map[cluster.NodeID][]net.Conn),
	}
}

// Get returns a pooled connection to nid, dialing a new one if none is
// idle. Dialing may block briefly, matching sockfd_cache_get's "may
// block briefly to open a new connection" (spec §5).
func (p *Pool) Get(nid cluster.NodeID) (net.Conn, error) {
	p.mu.Lock()
	if conns := p.conns[nid]; len(conns) > 0 {
		conn := conns[len(conns)-1]
		p.conns[nid] = conns[:len(conns)-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	view := p.membership.CurrentView()
	node, ok := view.Nodes[nid]
	if !ok || !node.Alive {
		return nil, fmt.Errorf("transport: node %s not in current view", nid)
	}

	conn, err := net.Dial("tcp", node.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s (%s): %w", nid, node.Address, err)
	}
	return conn, nil
}

// Put returns a healthy connection to the pool for reuse.
func (p *Pool) Put(nid cluster.NodeID, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[nid] = append(p.conns[nid], conn)
}

// Del evicts a single faulty connection — it is closed and not returned
// to the pool.
func (p *Pool) Del(_ cluster.NodeID, conn net.Conn) {
	_ = conn.Close()
}

// DelNode evicts every pooled connection for nid, matching
// sockfd_cache_del_node: used when a send fails before a leg is even
// inserted into the forward-context (spec §5).
func (p *Pool) DelNode(nid cluster.NodeID) {
	p.mu.Lock()
	conns := p.conns[nid]
	delete(p.conns, nid)
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
