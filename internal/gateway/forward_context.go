// Package gateway implements the replication engine: placement-driven
// fan-out dispatch, a poll-based completion waiter, the local-preferring
// read path, and the opcode-specific write entry-points, adapted from
// the teacher's Replicator (internal/cluster/replicator.go in
// ppriyankuu-godkv) generalized from quorum (N/W/R, vector-clock
// reconciliation) to the all-replicas-or-fail model spec.md's Non-goals
// require.
package gateway

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sheepgate/gateway/internal/cluster"
)

// leg is one outstanding remote participation in a fan-out: a node id,
// its connection, and the raw file descriptor the waiter polls.
// Matches spec.md §3's "forward leg" and §4.B.
type leg struct {
	node cluster.NodeID
	conn net.Conn
	fd   int
}

// forwardContext is the bounded, per-request collection of outstanding
// legs, adapted from spec.md §4.B. It is never shared across requests —
// Dispatcher.Forward allocates a fresh one per call (spec §5).
type forwardContext struct {
	legs []leg
}

// push appends a leg in POLLIN-armed state.
func (fc *forwardContext) push(node cluster.NodeID, conn net.Conn) {
	fd, ok := fdOf(conn)
	if !ok {
		// Non-fd-backed connections (e.g. net.Pipe) get fd -1. poll(2)
		// ignores negative descriptors, so such a leg never reports
		// readiness and is retired only by the waiter's timeout path.
		fd = -1
	}
	fc.legs = append(fc.legs, leg{node: node, conn: conn, fd: fd})
}

// retireOK returns leg i's socket to the pool and removes it, shifting
// down to keep the slice dense (spec §4.B).
func (fc *forwardContext) retireOK(i int, pool connPool) {
	pool.Put(fc.legs[i].node, fc.legs[i].conn)
	fc.remove(i)
}

// retireErr evicts leg i's socket from the pool and removes it.
func (fc *forwardContext) retireErr(i int, pool connPool) {
	pool.Del(fc.legs[i].node, fc.legs[i].conn)
	fc.remove(i)
}

func (fc *forwardContext) remove(i int) {
	fc.legs = append(fc.legs[:i], fc.legs[i+1:]...)
}

// nrSent is the count of outstanding (not yet retired) legs.
func (fc *forwardContext) nrSent() int {
	return len(fc.legs)
}

// snapshotPollFDs produces the poll array handed to the waiter, one
// entry per outstanding leg, in leg order (spec §4.B).
func (fc *forwardContext) snapshotPollFDs() []unix.PollFd {
	out := make([]unix.PollFd, len(fc.legs))
	for i, l := range fc.legs {
		out[i] = unix.PollFd{Fd: int32(l.fd), Events: unix.POLLIN}
	}
	return out
}

// connPool is the subset of transport.Pool the forward-context needs,
// kept as an interface so tests can substitute a fake pool without a
// real socket pool.
type connPool interface {
	Put(cluster.NodeID, net.Conn)
	Del(cluster.NodeID, net.Conn)
	DelNode(cluster.NodeID)
}

// fdOf extracts the raw file descriptor backing conn, when conn is a
// *net.TCPConn (or similar syscall.Conn). Returns ok=false for
// connections with no underlying fd (e.g. net.Pipe).
func fdOf(conn net.Conn) (int, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd int
	err = raw.Control(func(d uintptr) { fd = int(d) })
	if err != nil {
		return 0, false
	}
	return fd, true
}
