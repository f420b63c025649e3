package alloc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_AllocTranslate(t *testing.T) {
	a := NewAllocator(NewHeapBacked(64), 24)

	ref, data, err := a.Alloc(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), ref)
	assert.GreaterOrEqual(t, len(data), 10)

	copy(data, []byte("0123456789"))

	got, err := a.Translate(ref, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got)
}

func TestAllocator_AlignsAllocations(t *testing.T) {
	a := NewAllocator(NewHeapBacked(256), 24)

	ref1, _, err := a.Alloc(1)
	require.NoError(t, err)
	ref2, _, err := a.Alloc(1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), ref1%Alignment)
	assert.Equal(t, uint64(0), ref2%Alignment)
	assert.Equal(t, Alignment, int(ref2-ref1))
}

func TestAllocator_GrowsRegionOnDemand(t *testing.T) {
	a := NewAllocator(NewHeapBacked(32), 24)

	_, _, err := a.Alloc(64)
	require.NoError(t, err)

	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.RegionSize, uint64(88))
	assert.Equal(t, uint64(1), stats.Extensions)
}

func TestAllocator_FreeAndReclaimBestFit(t *testing.T) {
	a := NewAllocator(NewHeapBacked(256), 24)

	ref, _, err := a.Alloc(32)
	require.NoError(t, err)

	a.Free(ref, 32, 1)
	assert.Equal(t, 0, a.Stats().FreeListCount, "not reclaimable until Reclaim runs")

	a.Reclaim(2) // no reader below version 2 can still see version 1
	assert.Equal(t, 1, a.Stats().FreeListCount)

	// A same-size allocation should reuse the freed slot rather than grow.
	before := a.NextOffset()
	ref2, _, err := a.Alloc(32)
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)
	assert.Equal(t, before, a.NextOffset())
}

func TestAllocator_ReclaimRespectsLiveReaders(t *testing.T) {
	a := NewAllocator(NewHeapBacked(256), 24)

	ref, _, err := a.Alloc(16)
	require.NoError(t, err)
	a.Free(ref, 16, 5)

	a.Reclaim(5) // version 5 still live (minLiveVersion is exclusive upper bound)
	assert.Equal(t, 0, a.Stats().FreeListCount)

	a.Reclaim(6)
	assert.Equal(t, 1, a.Stats().FreeListCount)
}

func TestAllocator_IsReadOnlyWatermark(t *testing.T) {
	a := NewAllocator(NewHeapBacked(256), 24)

	ref, _, err := a.Alloc(16)
	require.NoError(t, err)
	assert.False(t, a.IsReadOnly(ref), "freshly allocated and not yet published: writer-owned")

	a.SetWatermark(ref + 16)
	assert.False(t, a.IsReadOnly(ref+16), "new allocations past the watermark are writer-owned")
}

func TestAllocator_FreeListSnapshotRoundTrip(t *testing.T) {
	a := NewAllocator(NewHeapBacked(256), 24)

	ref, _, err := a.Alloc(16)
	require.NoError(t, err)
	a.Free(ref, 16, 1)
	a.Reclaim(2)

	positions, sizes, versions := a.FreeListSnapshot()
	require.Len(t, positions, 1)

	b := NewAllocator(NewHeapBacked(256), 24)
	b.LoadFreeList(positions, sizes, versions, a.NextOffset())

	ref2, _, err := b.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)
}

func TestAllocator_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.db")
	backing, err := NewFileBacked(path, 24)
	require.NoError(t, err)

	a := NewAllocator(backing, 24)
	ref, data, err := a.Alloc(8)
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, a.Sync())

	got, err := a.Translate(ref, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestAllocator_AllocRejectsNonPositiveSize(t *testing.T) {
	a := NewAllocator(NewHeapBacked(64), 24)
	_, _, err := a.Alloc(0)
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestAllocator_StringReportsUsage(t *testing.T) {
	a := NewAllocator(NewHeapBacked(64), 24)
	_, _, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Contains(t, a.String(), "Allocator{")
}
