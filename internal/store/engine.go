// Package store is the local on-disk object engine: the "peer_read_obj /
// sheep_do_op_work" collaborator spec.md calls out of scope but
// referenced by interface. Engine is given one concrete, durable
// implementation (adapted from the teacher's WAL + snapshot Store) so the
// gateway's local leg (spec §4.C step 4, §5) has something real to call.
package store

import "context"

// Engine is the local object store the gateway's local leg talks to.
// Objects are flat byte blobs addressed by OID; vdi objects are ordinary
// objects whose bytes happen to encode an indirection table at the
// offsets internal/objects describes.
type Engine interface {
	// ReadObject reads len(buf) bytes of oid starting at offset into buf.
	// Returns the number of bytes read, which is less than len(buf) when
	// the object ends before offset+len(buf); a short read is not an
	// error.
	ReadObject(ctx context.Context, oid uint64, buf []byte, offset uint64) (int, error)

	// WriteObject writes data to oid at offset. If create is true, the
	// object is created if it does not already exist (create_and_write);
	// otherwise writing to a nonexistent object returns ErrNotFound.
	WriteObject(ctx context.Context, oid uint64, data []byte, offset uint64, create bool) error

	// RemoveObject deletes oid entirely.
	RemoveObject(ctx context.Context, oid uint64) error

	// DecObjectRefcnt decrements the reference count of oid, authorized
	// by the (generation, count) witness, matching dec_object_refcnt in
	// the source. Implementations are free to make this a no-op once the
	// count reaches zero and the object is reclaimed.
	DecObjectRefcnt(ctx context.Context, oid uint64, generation, count uint32) error
}
