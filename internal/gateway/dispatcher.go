package gateway

import (
	"context"

	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/objects"
	"github.com/sheepgate/gateway/internal/store"
	"github.com/sheepgate/gateway/internal/transport"
	"github.com/sheepgate/gateway/internal/wire"
)

// Dispatcher implements the fan-out dispatch contract of spec.md §4.C:
// translate the opcode, resolve placement, send to every remote target,
// run the local leg inline, then hand outstanding legs to the waiter and
// reduce outcomes. Adapted from the teacher's
// Replicator.ReplicateWrite fan-out-over-goroutines shape
// (internal/cluster/replicator.go), changed from "wait for W acks" to
// "require unanimity of every dispatched leg" per the Non-goals ruling
// out quorum.
type Dispatcher struct {
	ring       *cluster.Ring
	membership *cluster.Membership
	pool       *transport.Pool
	engine     store.Engine
	waiter     *waiter
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(ring *cluster.Ring, membership *cluster.Membership, pool *transport.Pool, engine store.Engine) *Dispatcher {
	return &Dispatcher{
		ring:       ring,
		membership: membership,
		pool:       pool,
		engine:     engine,
		waiter:     newWaiter(membership, pool),
	}
}

// replicaCount is the placement width every fan-out targets. A fixed
// replica factor is enough for this module — spec.md's Non-goals rule
// out per-request quorum tuning.
const replicaCount = 3

// Forward dispatches req to its full placement set and returns the
// unanimous-or-failed outcome, per spec.md §4.C.
func (d *Dispatcher) Forward(ctx context.Context, req wire.Request) wire.Result {
	view := d.membership.CurrentView()

	peerHeader := req.Header
	peerHeader.Opcode = wire.PeerOpcode(req.Header.Opcode)
	peerHeader.ProtoVer = wire.PeerProtoVersion
	peerHeader.Epoch = view.Epoch

	targets := d.ring.Resolve(view, req.Header.OID, replicaCount)
	if len(targets) == 0 {
		return wire.Halt
	}

	fc := &forwardContext{}
	result := wire.Success
	haveLocal := false

	for _, nid := range targets {
		if d.membership.NodeIsLocal(nid) {
			haveLocal = true
			continue
		}
		if result != wire.Success {
			// Step 3: stop dispatching further remotes once a send has
			// already failed; already-dispatched legs are still awaited.
			continue
		}

		conn, err := d.pool.Get(nid)
		if err != nil {
			d.pool.DelNode(nid)
			result = wire.NetworkError
			continue
		}

		needRetry := func(e uint32) bool { return d.membership.NeedRetry(e) }
		if err := transport.SendRequest(conn, peerHeader, req.Payload, view.Epoch, needRetry); err != nil {
			d.pool.Del(nid, conn)
			result = wire.NetworkError
			continue
		}
		fc.push(nid, conn)
	}

	if haveLocal && result == wire.Success {
		localReq := req
		localReq.Header.Local = true
		localResult := d.execLocal(ctx, localReq)
		if localResult != wire.Success {
			result = localResult
		}
	}

	if fc.nrSent() > 0 {
		result = wire.Reduce(result, d.waiter.wait(ctx, fc, view.Epoch))
	}

	return result
}

// execLocal runs a forwarded opcode against the local object engine
// inline on the dispatching worker, matching spec §4.C step 4 and §5's
// "local leg runs inline on the worker thread between dispatch and
// wait."
func (d *Dispatcher) execLocal(ctx context.Context, req wire.Request) wire.Result {
	switch req.Header.Opcode {
	case wire.OpRead:
		buf := make([]byte, req.Header.DataLength)
		if _, err := d.engine.ReadObject(ctx, req.Header.OID, buf, req.Header.Offset); err != nil {
			return resultFor(err)
		}
		return wire.Success

	case wire.OpWrite:
		if err := d.engine.WriteObject(ctx, req.Header.OID, req.Payload, req.Header.Offset, false); err != nil {
			return resultFor(err)
		}
		return wire.Success

	case wire.OpCreateAndWrite:
		if err := d.engine.WriteObject(ctx, req.Header.OID, req.Payload, req.Header.Offset, true); err != nil {
			return resultFor(err)
		}
		return wire.Success

	case wire.OpRemove:
		if err := d.engine.RemoveObject(ctx, req.Header.OID); err != nil {
			return resultFor(err)
		}
		return wire.Success

	case wire.OpDecref:
		gref := objects.DecodeGenerationRef(req.Payload)
		if err := d.engine.DecObjectRefcnt(ctx, req.Header.OID, gref.Generation, gref.Count); err != nil {
			return resultFor(err)
		}
		return wire.Success

	default:
		return wire.NetworkError
	}
}

func resultFor(err error) wire.Result {
	if err == store.ErrNotFound {
		return wire.NotFound
	}
	return wire.IOError
}
