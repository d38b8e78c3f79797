package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/objectcache"
	"github.com/sheepgate/gateway/internal/objects"
	"github.com/sheepgate/gateway/internal/store"
	"github.com/sheepgate/gateway/internal/transport"
	"github.com/sheepgate/gateway/internal/wire"
)

func newTestGateway(t *testing.T, nodes map[cluster.NodeID]*cluster.Node) *Gateway {
	t.Helper()
	ring := cluster.NewRing(50)
	membership := cluster.NewMembership("self", ring, nodes)
	pool := transport.NewPool(membership)
	engine, err := store.NewObjectEngine(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	cache, err := objectcache.NewLRUObjectCache(0, false)
	require.NoError(t, err)
	return New(membership, ring, pool, engine, cache, nil)
}

// S1: read, local hit — the local replica answers and no remote socket
// is needed.
func TestReadLocalHit(t *testing.T) {
	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self": {ID: "self", Address: "unused", Alive: true},
	})
	require.NoError(t, gw.Engine.WriteObject(context.Background(), 1, []byte("payload"), 0, true))

	resp := gw.Handle(context.Background(), wire.Request{
		Header:          wire.Header{Opcode: wire.OpRead, OID: 1, DataLength: uint32(len("payload"))},
		RequestedLength: uint32(len("payload")), // as Server.readRequest fills it in
	})

	assert.Equal(t, wire.Success, resp.Header.Result)
	assert.Equal(t, "payload", string(resp.Payload))
}

// S2: read, remote fan-out — self is excluded from every placement (its
// node entry is marked dead), forcing the remote scan; one peer fails,
// the other answers successfully.
func TestReadRemoteFanOutSkipsFailedPeer(t *testing.T) {
	failing := startFakePeer(t, wire.NetworkError)
	healthy := startFakePeer(t, wire.Success)

	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self":  {ID: "self", Address: "unused", Alive: false},
		"peer1": {ID: "peer1", Address: failing.addr(), Alive: true},
		"peer2": {ID: "peer2", Address: healthy.addr(), Alive: true},
	})

	payload := []byte("remote-data")
	resp := gw.Handle(context.Background(), wire.Request{
		Header: wire.Header{Opcode: wire.OpRead, OID: 99, DataLength: uint32(len(payload))},
		Payload: payload,
	})

	// Either peer may be scanned first depending on the random start
	// index; the only requirement is that a successful remote is
	// eventually found.
	assert.Equal(t, wire.Success, resp.Header.Result)
}

// S4: write, all replicas healthy — two remotes and the local leg all
// succeed.
func TestWriteAllReplicasHealthy(t *testing.T) {
	peer1 := startFakePeer(t, wire.Success)
	peer2 := startFakePeer(t, wire.Success)

	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self":  {ID: "self", Address: "unused", Alive: true},
		"peer1": {ID: "peer1", Address: peer1.addr(), Alive: true},
		"peer2": {ID: "peer2", Address: peer2.addr(), Alive: true},
	})

	resp := gw.Handle(context.Background(), wire.Request{
		Header:  wire.Header{Opcode: wire.OpCreateAndWrite, OID: 7, DataLength: 4},
		Payload: []byte("data"),
	})

	assert.Equal(t, wire.Success, resp.Header.Result)
}

// S4 (decref path): a data-vid write only decrements refcounts for
// indices whose old vid is allocated and differs from the new one.
func TestWriteDataVidUpdateAppliesRefcountSideEffect(t *testing.T) {
	peer1 := startFakePeer(t, wire.Success)
	peer2 := startFakePeer(t, wire.Success)

	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self":  {ID: "self", Address: "unused", Alive: true},
		"peer1": {ID: "peer1", Address: peer1.addr(), Alive: true},
		"peer2": {ID: "peer2", Address: peer2.addr(), Alive: true},
	})

	vdiOID := uint64(1) << 63 // vdi bit set
	ctx := context.Background()

	// Seed the local replica with an old vid + a nonzero refcount witness
	// at slot 0, the pre-image the refcount step must read before the
	// write is forwarded.
	oldVidBuf := make([]byte, objects.VidSize)
	oldVidBuf[3] = 5
	require.NoError(t, gw.Engine.WriteObject(ctx, vdiOID, oldVidBuf, objects.DataVidOffset(0), true))
	refBuf := make([]byte, objects.RefSize)
	refBuf[3] = 1 // generation = 1
	refBuf[7] = 1 // count = 1
	require.NoError(t, gw.Engine.WriteObject(ctx, vdiOID, refBuf, objects.DataRefOffset(0), false))

	newVidBuf := make([]byte, objects.VidSize)
	newVidBuf[3] = 9 // new vid differs from old (5 != 9 and old != 0)

	resp := gw.Handle(ctx, wire.Request{
		Header:  wire.Header{Opcode: wire.OpWrite, OID: vdiOID, Offset: objects.DataVidOffset(0), DataLength: uint32(objects.VidSize)},
		Payload: newVidBuf,
	})

	assert.Equal(t, wire.Success, resp.Header.Result)

	// Slot 0 was displaced (5 -> 9), so its witness is cleared on the
	// local replica after the decrement.
	gotRef := make([]byte, objects.RefSize)
	_, err := gw.Engine.ReadObject(ctx, vdiOID, gotRef, objects.DataRefOffset(0))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, objects.RefSize), gotRef)
}

// S6: write, read-only OID — rejected immediately, no forward.
func TestWriteReadOnlyOIDRejectedWithoutForward(t *testing.T) {
	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self": {ID: "self", Address: "unused", Alive: true},
	})

	readonlyOID := uint64(1) << 62
	resp := gw.Handle(context.Background(), wire.Request{
		Header: wire.Header{Opcode: wire.OpWrite, OID: readonlyOID, DataLength: 1},
		Payload: []byte{1},
	})

	assert.Equal(t, wire.Readonly, resp.Header.Result)

	// The local engine was never touched.
	_, err := gw.Engine.ReadObject(context.Background(), readonlyOID, make([]byte, 1), 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Fewer live hosts than the replica width: not a HALT, the live hosts
// are used.
func TestForwardWithFewerLiveHostsThanReplicaWidthUsesLiveHosts(t *testing.T) {
	gw := newTestGateway(t, map[cluster.NodeID]*cluster.Node{
		"self": {ID: "self", Address: "unused", Alive: true},
	})
	require.NoError(t, gw.Engine.WriteObject(context.Background(), 5, []byte("x"), 0, true))

	result := gw.dispatcher.Forward(context.Background(), wire.Request{
		Header: wire.Header{Opcode: wire.OpRemove, OID: 5},
	})
	// Only one live host exists but replicaCount is 3, so resolve still
	// returns the single live host rather than halting (fewer than k is
	// only a HALT when the live set is completely empty, per spec.md's
	// "empty" condition for step 2). This exercises the single-leg local
	// path instead.
	assert.Equal(t, wire.Success, result)
}
