package objects

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sheepgate/gateway/internal/store"
)

// RefcountUpdater implements spec.md §4.F: for a write that overwrites a
// vdi's data_vdi_id slice, snapshot the pre-image of the indirection
// table and its refcount witnesses before the write is forwarded, then —
// only if the forward succeeded — decrement the refcount of every
// displaced data object. Grounded in
// original_source/sheep/gateway.c's prepare_obj_refcnt/update_obj_refcnt.
type RefcountUpdater struct {
	engine store.Engine
	log    *logrus.Entry
}

func NewRefcountUpdater(engine store.Engine, log *logrus.Entry) *RefcountUpdater {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RefcountUpdater{engine: engine, log: log}
}

// Snapshot is the pre-forward read: the old vids and their generation
// witnesses, taken before the write is dispatched anywhere (spec §3
// invariant 3, Testable Property 3).
type Snapshot struct {
	oid    uint64
	start  int
	oldVid []uint32
	refs   []GenerationRef
}

// Prepare reads old_vids[start..start+n) and refs[start..start+n) from
// the local replica of the vdi object oid, per prepare_obj_refcnt. It
// must run before the write is forwarded anywhere.
func (u *RefcountUpdater) Prepare(ctx context.Context, oid uint64, offset, length uint64) (Snapshot, error) {
	start, n := VidRange(offset, length)

	vidBuf := make([]byte, n*VidSize)
	if _, err := u.engine.ReadObject(ctx, oid, vidBuf, DataVidOffset(start)); err != nil {
		return Snapshot{}, fmt.Errorf("read old vids: %w", err)
	}
	refBuf := make([]byte, n*RefSize)
	if _, err := u.engine.ReadObject(ctx, oid, refBuf, DataRefOffset(start)); err != nil {
		return Snapshot{}, fmt.Errorf("read old refs: %w", err)
	}

	oldVid := make([]uint32, n)
	refs := make([]GenerationRef, n)
	for i := 0; i < n; i++ {
		oldVid[i] = binary.BigEndian.Uint32(vidBuf[i*VidSize:])
		refs[i].Generation = binary.BigEndian.Uint32(refBuf[i*RefSize:])
		refs[i].Count = binary.BigEndian.Uint32(refBuf[i*RefSize+4:])
	}
	return Snapshot{oid: oid, start: start, oldVid: oldVid, refs: refs}, nil
}

// Apply issues the post-forward decrements: for every index where the
// old vid was allocated and differs from the new one, decref the
// displaced data object and clear that slot's witness, then write the
// cleared witnesses back to the vdi. Must only be called after the
// forward has already succeeded (spec §3 invariant 3, Testable Property
// 4 — no decrement-on-failure). Errors decrementing a single target are
// logged, not returned: the forward already committed the new
// indirection table to every replica, so failing the client request here
// would be reporting success as failure for a request that already
// happened (spec §4.F, §7, and the Open Question on
// update_obj_refcnt's ignored return in the source).
func (u *RefcountUpdater) Apply(ctx context.Context, snap Snapshot, newVid []uint32) {
	n := len(snap.oldVid)
	cleared := make([]byte, n*RefSize)
	for i := 0; i < n; i++ {
		ref := snap.refs[i]
		if snap.oldVid[i] != 0 && snap.oldVid[i] != newVid[i] {
			target := VidToDataOid(snap.oldVid[i], snap.start+i)
			if err := u.engine.DecObjectRefcnt(ctx, target, ref.Generation, ref.Count); err != nil {
				u.log.WithError(err).Warnf("decref %#x (displaced by vdi %#x slot %d) failed", target, snap.oid, snap.start+i)
			}
			ref = GenerationRef{}
		}
		binary.BigEndian.PutUint32(cleared[i*RefSize:], ref.Generation)
		binary.BigEndian.PutUint32(cleared[i*RefSize+4:], ref.Count)
	}

	if err := u.engine.WriteObject(ctx, snap.oid, cleared, DataRefOffset(snap.start), false); err != nil {
		u.log.WithError(err).Warnf("write cleared refs back to vdi %#x failed", snap.oid)
	}
}
