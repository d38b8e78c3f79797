package gateway

import (
	"context"
	"encoding/binary"

	"github.com/sheepgate/gateway/internal/objectcache"
	"github.com/sheepgate/gateway/internal/objects"
	"github.com/sheepgate/gateway/internal/wire"
)

// Entrypoints implements spec.md §4.G: the opcode-specific wrappers that
// choose cache vs. direct forward and attach the refcount side-effect to
// data-vid updates. Unchanged from spec.md relative to the teacher,
// which has no per-opcode entry-point split of its own (ReplicateWrite
// handles every write uniformly under quorum); grounded directly in
// original_source/sheep/gateway.c's gateway_write_obj /
// gateway_create_and_write_obj / gateway_remove_obj /
// gateway_decref_object.
type Entrypoints struct {
	dispatcher *Dispatcher
	refcount   *objects.RefcountUpdater
	cache      objectcache.ObjectCache
}

// NewEntrypoints wires Entrypoints from its collaborators.
func NewEntrypoints(dispatcher *Dispatcher, refcount *objects.RefcountUpdater, cache objectcache.ObjectCache) *Entrypoints {
	return &Entrypoints{dispatcher: dispatcher, refcount: refcount, cache: cache}
}

// Write rejects read-only OIDs, otherwise forwards and, for a data-vid
// update, snapshots the old indirection table before the forward and
// applies the refcount side-effect after it succeeds.
func (e *Entrypoints) Write(ctx context.Context, req wire.Request) wire.Result {
	if objects.IsReadonly(req.Header.OID) {
		return wire.Readonly
	}
	if !e.cache.Bypass(&req) {
		// Matches gateway_write_obj's "return object_cache_handle_request(req)"
		// when the cache is not bypassed: the cache gets first crack at
		// the write (e.g. write-through population, or a write-back
		// cache that fully owns it) before any replica is touched.
		resp, handled, err := e.cache.HandleRequest(&req)
		if handled {
			return resultFromCache(resp, err)
		}
		// Not handled: the cache observed/stored what it needed to and
		// the write still has to reach every replica.
	}

	isVidUpdate := objects.IsDataVidUpdate(req.Header.OID, req.Header.Offset, uint64(len(req.Payload)))

	var snap objects.Snapshot
	if isVidUpdate {
		var err error
		snap, err = e.refcount.Prepare(ctx, req.Header.OID, req.Header.Offset, uint64(len(req.Payload)))
		if err != nil {
			return resultFor(err)
		}
	}

	result := e.dispatcher.Forward(ctx, req)
	if result != wire.Success {
		return result
	}

	if isVidUpdate {
		newVid := decodeVids(req.Payload)
		e.refcount.Apply(ctx, snap, newVid)
	}
	return wire.Success
}

// CreateAndWrite is Write without the refcount side-effect: same cache
// bypass/delegate check as gateway_create_and_write_obj, no vid-update
// snapshot/apply.
func (e *Entrypoints) CreateAndWrite(ctx context.Context, req wire.Request) wire.Result {
	if objects.IsReadonly(req.Header.OID) {
		return wire.Readonly
	}
	if !e.cache.Bypass(&req) {
		resp, handled, err := e.cache.HandleRequest(&req)
		if handled {
			return resultFromCache(resp, err)
		}
	}

	req.Header.Opcode = wire.OpCreateAndWrite
	return e.dispatcher.Forward(ctx, req)
}

// Remove is a plain forward: no cache, no refcount side-effect.
func (e *Entrypoints) Remove(ctx context.Context, req wire.Request) wire.Result {
	req.Header.Opcode = wire.OpRemove
	return e.dispatcher.Forward(ctx, req)
}

// Decref is a plain forward: no cache, no refcount side-effect.
func (e *Entrypoints) Decref(ctx context.Context, req wire.Request) wire.Result {
	req.Header.Opcode = wire.OpDecref
	return e.dispatcher.Forward(ctx, req)
}

// resultFromCache maps a cache's own HandleRequest outcome onto the
// Result taxonomy the rest of the gateway already uses, for the case
// where the cache fully owns the request and nothing is forwarded.
func resultFromCache(resp wire.Response, err error) wire.Result {
	if err != nil {
		return wire.IOError
	}
	return resp.Header.Result
}

// decodeVids reads the new data_vdi_id[] values out of a write's
// payload, one uint32 per VidSize bytes, for comparison against the
// pre-forward snapshot in Entrypoints.Write.
func decodeVids(payload []byte) []uint32 {
	n := len(payload) / objects.VidSize
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint32(payload[i*objects.VidSize:])
	}
	return out
}
