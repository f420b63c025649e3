package txnset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_AcquireReleaseSingleReader(t *testing.T) {
	tr := New(1)
	tr.Acquire(3)
	assert.Equal(t, 1, tr.Count())
	assert.Equal(t, uint64(3), tr.MinLive(10))

	tr.Release(3)
	assert.Equal(t, 0, tr.Count())
	assert.Equal(t, uint64(10), tr.MinLive(10))
}

func TestTracker_MinLiveTracksOldestHeldVersion(t *testing.T) {
	tr := New(1)
	tr.Acquire(5)
	tr.Acquire(2)
	tr.Acquire(8)

	assert.Equal(t, uint64(2), tr.MinLive(20))

	tr.Release(2)
	assert.Equal(t, uint64(5), tr.MinLive(20))

	tr.Release(5)
	assert.Equal(t, uint64(8), tr.MinLive(20))

	tr.Release(8)
	assert.Equal(t, uint64(20), tr.MinLive(20))
}

func TestTracker_RefcountKeepsVersionPinnedUntilLastRelease(t *testing.T) {
	tr := New(1)
	tr.Acquire(4)
	tr.Acquire(4)
	assert.Equal(t, 1, tr.Count())

	tr.Release(4)
	assert.Equal(t, uint64(4), tr.MinLive(9))

	tr.Release(4)
	assert.Equal(t, uint64(9), tr.MinLive(9))
}

func TestTracker_ReleaseWithoutAcquireIsSafe(t *testing.T) {
	tr := New(1)
	assert.NotPanics(t, func() { tr.Release(7) })
	assert.Equal(t, 0, tr.Count())
}

func TestTracker_MultipleReadersSameVersion(t *testing.T) {
	tr := New(1)
	tr.Acquire(6)
	tr.Acquire(6)
	tr.Acquire(6)
	assert.Equal(t, 1, tr.Count())

	tr.Release(6)
	tr.Release(6)
	assert.Equal(t, uint64(6), tr.MinLive(50))
	tr.Release(6)
	assert.Equal(t, uint64(50), tr.MinLive(50))
}
