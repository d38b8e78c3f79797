package gateway

import (
	"context"
	"math/rand"

	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/objectcache"
	"github.com/sheepgate/gateway/internal/store"
	"github.com/sheepgate/gateway/internal/transport"
	"github.com/sheepgate/gateway/internal/wire"
)

// ReadPath implements spec.md §4.E: a one-shot read that goes to exactly
// one replica, preferring a local copy and otherwise scanning the
// placement set starting from a random index. Unchanged from spec.md
// relative to the teacher, which has no read-path analogue of its own
// (the teacher's CoordinateRead is a quorum read across R replicas, a
// Non-goal here) — grounded directly in
// original_source/sheep/gateway.c's gateway_read_obj.
type ReadPath struct {
	ring       *cluster.Ring
	membership *cluster.Membership
	pool       *transport.Pool
	engine     store.Engine
	cache      objectcache.ObjectCache
}

// NewReadPath wires a ReadPath from its collaborators.
func NewReadPath(ring *cluster.Ring, membership *cluster.Membership, pool *transport.Pool, engine store.Engine, cache objectcache.ObjectCache) *ReadPath {
	return &ReadPath{ring: ring, membership: membership, pool: pool, engine: engine, cache: cache}
}

// Read executes req's read, returning the response payload/header and
// the outcome.
func (p *ReadPath) Read(ctx context.Context, req wire.Request) (wire.Response, wire.Result) {
	if !req.Header.Local && !p.cache.Bypass(&req) {
		if resp, handled, err := p.cache.HandleRequest(&req); handled {
			if err != nil {
				return wire.Response{}, wire.IOError
			}
			return resp, resp.Header.Result
		}
	}

	view := p.membership.CurrentView()
	targets := p.ring.Resolve(view, req.Header.OID, replicaCount)
	if len(targets) == 0 {
		return wire.Response{}, wire.Halt
	}

	for _, nid := range targets {
		if !p.membership.NodeIsLocal(nid) {
			continue
		}
		buf := make([]byte, req.Header.DataLength)
		n, err := p.engine.ReadObject(ctx, req.Header.OID, buf, req.Header.Offset)
		if err != nil {
			// The source does not fall back to remote on local failure;
			// this module preserves that (spec §4.E step 3, §9's flagged
			// "potentially surprising choice").
			return wire.Response{}, resultFor(err)
		}
		resp := wire.Response{
			Header:  req.Header,
			Payload: buf[:n],
		}
		resp.Header.Result = wire.Success
		resp.Header.DataLength = uint32(n)
		return p.compat(req, resp), wire.Success
	}

	// No local member: scan remotes starting at a random offset.
	peerHeader := req.Header
	peerHeader.Opcode = wire.PeerOpcode(req.Header.Opcode)
	peerHeader.ProtoVer = wire.PeerProtoVersion
	peerHeader.Epoch = view.Epoch
	peerReq := wire.Request{Header: peerHeader, Payload: req.Payload, RequestedLength: req.Header.DataLength}

	start := rand.Intn(len(targets))
	var lastResp wire.Response
	lastResult := wire.NetworkError
	for i := 0; i < len(targets); i++ {
		nid := targets[(start+i)%len(targets)]
		resp, err := transport.ExecSync(p.pool, p.membership, nid, peerReq)
		if err != nil {
			lastResult = wire.NetworkError
			continue
		}
		if resp.Header.Result != wire.Success {
			lastResp = resp
			lastResult = resp.Header.Result
			continue
		}
		return p.compat(req, resp), wire.Success
	}
	return lastResp, lastResult
}

// compat implements spec.md §4.E step 5: clients whose protocol version
// predates trim-zero support receive the payload re-inflated to the
// originally requested length.
func (p *ReadPath) compat(req wire.Request, resp wire.Response) wire.Response {
	if req.Header.ProtoVer >= wire.ProtoVerTrimZeroSectors {
		return resp
	}
	resp.Payload = wire.UntrimZeroBlocks(resp.Payload, uint32(resp.Header.Offset), resp.Header.DataLength, req.RequestedLength)
	resp.Header.DataLength = req.RequestedLength
	resp.Header.Offset = 0
	return resp
}
