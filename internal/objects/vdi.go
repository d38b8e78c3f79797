// Package objects models the vdi (inode) indirection table and the
// byte-offset arithmetic the refcount side-effect needs, grounded in
// original_source/sheep/gateway.c's is_data_vid_update/prepare_obj_refcnt/
// update_obj_refcnt and spec.md §3/§4.F.
package objects

import "encoding/binary"

// MaxDataObjs bounds the size of a vdi's indirection table. The source
// sizes this to address a multi-terabyte VM disk in 4MB chunks; this
// module keeps the same role with a value sized for tests and for the
// in-memory engine in internal/store, not for any real capacity target.
const MaxDataObjs = 1024

// VidSize and RefSize are the wire/byte sizes of one data_vdi_id entry
// and one data_ref entry, matching sizeof(vid) / sizeof(struct
// generation_reference) in the source.
const (
	VidSize = 4 // uint32 vid
	RefSize = 8 // {generation uint32, count uint32}
)

// dataVdiIDBase and dataRefBase are the byte offsets, within a vdi
// object's raw bytes, where the data_vdi_id[] and data_ref[] arrays
// begin. A real vdi inode also carries a header before these arrays;
// this module starts both arrays after a small fixed header so the
// offsets are non-zero and bugs in the offset arithmetic are not masked
// by both arrays starting at byte 0.
const (
	headerSize    = 64
	dataVdiIDBase = headerSize
	dataRefBase   = dataVdiIDBase + MaxDataObjs*VidSize
)

// DataVidOffset returns the byte offset of data_vdi_id[i] within a vdi
// object, matching offsetof(struct sd_inode, data_vdi_id[i]) in the
// source.
func DataVidOffset(i int) uint64 {
	return uint64(dataVdiIDBase + i*VidSize)
}

// DataRefOffset returns the byte offset of data_ref[i] within a vdi
// object.
func DataRefOffset(i int) uint64 {
	return uint64(dataRefBase + i*RefSize)
}

// GenerationRef is the {generation, count} witness attached to each
// data_vdi_id slot, used to authorize the corresponding decref.
type GenerationRef struct {
	Generation uint32
	Count      uint32
}

// DecodeGenerationRef reads a {generation, count} witness from the
// leading 8 bytes of a decref request's payload, matching the layout
// RefcountUpdater reads and writes in internal/objects/refcount.go.
// Short or empty payloads decode as the zero witness.
func DecodeGenerationRef(payload []byte) GenerationRef {
	if len(payload) < RefSize {
		return GenerationRef{}
	}
	return GenerationRef{
		Generation: binary.BigEndian.Uint32(payload[0:4]),
		Count:      binary.BigEndian.Uint32(payload[4:8]),
	}
}

// IsVdiObj reports whether oid denotes a vdi (inode) object rather than a
// plain data object. The source distinguishes these via a bit in the OID;
// this module keeps the same bit-based scheme so VidToDataOid below can
// derive a data OID deterministically from a vdi OID.
func IsVdiObj(oid uint64) bool {
	return oid&vdiBit != 0
}

const vdiBit uint64 = 1 << 63

// VidToDataOid derives the OID of the data object referenced by vid at
// logical index idx within some vdi's indirection table, matching
// vid_to_data_oid(vid, idx) in the source: the vid identifies the VM disk
// "generation", idx identifies which 4MB chunk of it.
func VidToDataOid(vid uint32, idx int) uint64 {
	return (uint64(vid) << 24) | uint64(uint32(idx))
}

// IsReadonly reports whether oid is marked read-only and must reject
// mutating opcodes (spec §3 invariant 4). This module reserves the
// second-highest bit for that flag.
func IsReadonly(oid uint64) bool {
	return oid&readonlyBit != 0
}

const readonlyBit uint64 = 1 << 62

// IsDataVidUpdate reports whether a write targeting oid at [offset,
// offset+length) lies wholly within the vdi's data_vdi_id array, per
// spec §4.F / source's is_data_vid_update. A write that only partly
// overlaps the array is not reported.
//
// Assumption carried forward from the source: callers must not rely on
// the inode header and the indirection table being updated in the same
// request — replicated here, not re-derived, because nothing in this
// module can safely detect a violation of it.
func IsDataVidUpdate(oid uint64, offset, length uint64) bool {
	if !IsVdiObj(oid) {
		return false
	}
	return DataVidOffset(0) <= offset && offset+length <= DataVidOffset(MaxDataObjs)
}

// VidRange returns the [start, start+n) slice of indirection-table
// indices touched by a write at [offset, offset+length), per spec §4.F:
// start = (offset - offsetof(data_vdi_id)) / sizeof(vid), n =
// length / sizeof(vid).
func VidRange(offset, length uint64) (start, n int) {
	start = int((offset - DataVidOffset(0)) / VidSize)
	n = int(length / VidSize)
	return start, n
}
