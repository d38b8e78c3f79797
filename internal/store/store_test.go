package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *ObjectEngine {
	t.Helper()
	e, err := NewObjectEngine(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.WriteObject(ctx, 1, []byte("hello"), 0, true))

	buf := make([]byte, 5)
	n, err := e.ReadObject(ctx, 1, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestWriteWithoutCreateFailsOnMissingObject(t *testing.T) {
	e := newTestEngine(t)
	err := e.WriteObject(context.Background(), 99, []byte("x"), 0, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadMissingObjectFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ReadObject(context.Background(), 99, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveObject(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.WriteObject(ctx, 1, []byte("x"), 0, true))
	require.NoError(t, e.RemoveObject(ctx, 1))

	_, err := e.ReadObject(ctx, 1, make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecObjectRefcntDeletesAtZero(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.WriteObject(ctx, 1, []byte("x"), 0, true))

	obj := e.objects[1]
	obj.Refcount = 1
	gen := obj.Generation

	require.NoError(t, e.DecObjectRefcnt(ctx, 1, gen, 1))

	_, err := e.ReadObject(ctx, 1, make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecObjectRefcntIgnoresGenerationMismatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.WriteObject(ctx, 1, []byte("x"), 0, true))

	obj := e.objects[1]
	obj.Refcount = 1

	require.NoError(t, e.DecObjectRefcnt(ctx, 1, obj.Generation+1, 1))
	assert.Equal(t, uint32(1), e.objects[1].Refcount)
}

func TestSnapshotAndReloadPreservesState(t *testing.T) {
	dir := t.TempDir()
	e, err := NewObjectEngine(dir, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.WriteObject(ctx, 1, []byte("persisted"), 0, true))
	require.NoError(t, e.Snapshot())
	require.NoError(t, e.Close())

	reopened, err := NewObjectEngine(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, len("persisted"))
	n, err := reopened.ReadObject(ctx, 1, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(buf[:n]))
}

func TestWALReplayRecoversUnsnapshottedWrites(t *testing.T) {
	dir := t.TempDir()
	e, err := NewObjectEngine(dir, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.WriteObject(ctx, 1, []byte("from-wal"), 0, true))
	require.NoError(t, e.Close()) // no Snapshot — recovery must come from the WAL

	reopened, err := NewObjectEngine(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, len("from-wal"))
	n, err := reopened.ReadObject(ctx, 1, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "from-wal", string(buf[:n]))
}
