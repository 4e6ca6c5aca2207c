package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(term, index int64, size int) ReplicateRef {
	return NewReplicateRef(OpId{Term: term, Index: index}, make([]byte, size))
}

func TestAppendRequiresContiguousIndex(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 10))))
	require.NoError(t, b.Append(ptr(ref(1, 1, 10))))

	err := b.Append(ptr(ref(1, 3, 10)))
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestAppendRejectsNilMessage(t *testing.T) {
	b := NewBufferData()
	assert.ErrorIs(t, b.Append(nil), ErrInvalidArgument)
}

func TestAppendSetsPrecedingOpIdOnFirstMessage(t *testing.T) {
	b := NewBufferData()
	first := ref(2, 0, 10)
	require.NoError(t, b.Append(&first))
	assert.Equal(t, first.Id(), b.PrecedingOpId())
}

func TestAppendTracksBytesAndLastBuffered(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 10))))
	require.NoError(t, b.Append(ptr(ref(1, 1, 20))))
	assert.Equal(t, int64(1), b.LastBuffered())
	assert.Equal(t, int64(30), b.BytesBuffered())
	assert.Len(t, b.Messages(), 2)
}

func TestResetReanchorsBuffer(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 10))))
	b.Reset(true, 9)
	assert.True(t, b.Empty())
	assert.Equal(t, int64(9), b.LastBuffered())
	assert.True(t, b.BufferedForProxying())

	require.NoError(t, b.Append(ptr(ref(2, 10, 5))))
}

type fakeCache struct {
	result CacheReadResult
	err    error
}

func (f fakeCache) ReadOps(startingAt int64, maxBytes int64, ctx ReadContext) (CacheReadResult, error) {
	return f.result, f.err
}

func TestReadFromCacheFillsAndAdoptsPrecedingOpId(t *testing.T) {
	b := NewBufferData()
	cache := fakeCache{result: CacheReadResult{
		Msgs:        []ReplicateRef{ref(1, 0, 4), ref(1, 1, 4)},
		PrecedingOp: OpId{Term: 0, Index: -1},
	}}

	err := b.ReadFromCache(cache, ReadContext{}, 1024, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.LastBuffered())
	assert.Equal(t, OpId{Term: 0, Index: -1}, b.PrecedingOpId())
	assert.Equal(t, int64(8), b.BytesBuffered())
}

func TestReadFromCacheStoppedEarlyReturnsContinueWithoutReset(t *testing.T) {
	b := NewBufferData()
	cache := fakeCache{result: CacheReadResult{
		Msgs:         []ReplicateRef{ref(1, 0, 4)},
		StoppedEarly: true,
	}}

	err := b.ReadFromCache(cache, ReadContext{}, 1024, 1024)
	assert.ErrorIs(t, err, ErrContinue)
	assert.False(t, b.Empty())
}

func TestReadFromCacheIncompleteLeavesBufferUntouched(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 4))))
	cache := fakeCache{err: ErrIncomplete}

	err := b.ReadFromCache(cache, ReadContext{}, 1024, 1024)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.False(t, b.Empty())
	assert.Equal(t, int64(0), b.LastBuffered())
}

func TestReadFromCacheOtherErrorResetsBuffer(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 4))))
	boom := assertErr("boom")
	cache := fakeCache{err: boom}

	err := b.ReadFromCache(cache, ReadContext{RouteViaProxy: true}, 1024, 1024)
	assert.Equal(t, boom, err)
	assert.True(t, b.Empty())
	assert.True(t, b.BufferedForProxying())
}

func TestReadFromCacheRespectsMaxBatch(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 90))))
	cache := fakeCache{result: CacheReadResult{Msgs: []ReplicateRef{ref(1, 1, 50)}}}

	var captured int64 = -1
	wrapped := captureCache{inner: cache, captured: &captured}
	require.NoError(t, b.ReadFromCache(wrapped, ReadContext{}, 1000, 100))
	assert.Equal(t, int64(10), captured)
}

type captureCache struct {
	inner    LogCache
	captured *int64
}

func (c captureCache) ReadOps(startingAt int64, maxBytes int64, ctx ReadContext) (CacheReadResult, error) {
	*c.captured = maxBytes
	return c.inner.ReadOps(startingAt, maxBytes, ctx)
}

func TestMoveAndResetPreservesContiguityAnchor(t *testing.T) {
	b := NewBufferData()
	require.NoError(t, b.Append(ptr(ref(1, 0, 4))))
	require.NoError(t, b.Append(ptr(ref(1, 1, 4))))

	out := b.MoveAndReset()
	assert.Len(t, out.Msgs, 2)
	assert.True(t, b.Empty())
	assert.Equal(t, int64(1), b.LastBuffered())
	assert.Equal(t, int64(0), b.BytesBuffered())

	require.NoError(t, b.Append(ptr(ref(1, 2, 4))))
}

func ptr(r ReplicateRef) *ReplicateRef { return &r }

type assertErr string

func (e assertErr) Error() string { return string(e) }
