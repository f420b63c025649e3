package array

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packdb/packdb/internal/alloc"
	"github.com/packdb/packdb/internal/kernel"
)

func newTestAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	return alloc.NewAllocator(alloc.NewHeapBacked(64), 24)
}

func TestArray_InsertGetRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	values := []int64{10, 20, 30, 40, 25}
	for i, v := range values {
		_, err := ar.Insert(i, v)
		require.NoError(t, err)
	}

	require.Equal(t, len(values), ar.Size())
	for i, v := range values {
		assert.Equal(t, v, ar.Get(i))
	}
}

func TestArray_SetIsNoopOnValue(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	_, err = ar.Insert(0, 42)
	require.NoError(t, err)

	_, err = ar.Set(0, ar.Get(0))
	require.NoError(t, err)
	assert.Equal(t, int64(42), ar.Get(0))
}

func TestArray_InsertThenEraseRestoresSequence(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	for _, v := range []int64{1, 2, 3, 4} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	_, err = ar.Insert(2, 99)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 99, 3, 4}, readAll(ar))

	_, err = ar.Erase(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, readAll(ar))
}

func TestArray_WideningCascade(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		_, err := ar.Insert(i, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, ar.Width())

	steps := []int64{1, 2, 128, 70000}
	for _, v := range steps {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	assert.Equal(t, 32, ar.Width())

	for i := 0; i < 1000; i++ {
		assert.Equal(t, int64(0), ar.Get(i))
	}
	for i, v := range steps {
		assert.Equal(t, v, ar.Get(1000+i))
	}
}

func TestArray_WidensNeverNarrowsOnErase(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	_, err = ar.Insert(0, 70000)
	require.NoError(t, err)
	assert.Equal(t, 32, ar.Width())

	_, err = ar.Erase(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 32, ar.Width())
}

func TestArray_LowerUpperBound(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	for _, v := range []int64{1, 3, 3, 3, 7, 9} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, ar.LowerBound(3))
	assert.Equal(t, 4, ar.UpperBound(3))
	assert.Equal(t, 0, ar.LowerBound(0))
	assert.Equal(t, ar.Size(), ar.UpperBound(100))
}

func TestArray_Adjust(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	for _, v := range []int64{1, 2, 3} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	_, err = ar.Adjust(0, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 13}, readAll(ar))
}

func TestArray_AdjustGE(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	for _, v := range []int64{1, 5, 9} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	_, err = ar.AdjustGE(5, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 105, 109}, readAll(ar))
}

func TestArray_Move(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	for _, v := range []int64{0, 1, 2, 3, 4} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	_, err = ar.Move(0, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 0, 1}, readAll(ar))
}

func TestArray_AggregateCorrectness(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	for _, v := range []int64{3, -5, 7, -5, 11} {
		_, err := ar.Insert(ar.Size(), v)
		require.NoError(t, err)
	}

	minState := kernel.NewQueryState(kernel.Min)
	ar.Find(kernel.GreaterEqual, minVal(), 0, ar.Size(), 0, minState)
	assert.Equal(t, int64(-5), minState.Min)
	assert.Equal(t, int64(1), minState.MinIndex)

	maxState := kernel.NewQueryState(kernel.Max)
	ar.Find(kernel.GreaterEqual, minVal(), 0, ar.Size(), 0, maxState)
	assert.Equal(t, int64(11), maxState.Max)

	sumState := kernel.NewQueryState(kernel.Sum)
	ar.Find(kernel.GreaterEqual, minVal(), 0, ar.Size(), 0, sumState)
	assert.Equal(t, int64(11), sumState.Sum)

	countState := kernel.NewQueryState(kernel.Count)
	ar.Find(kernel.Equal, -5, 0, ar.Size(), 0, countState)
	assert.Equal(t, int64(2), countState.MatchCount)

	firstState := kernel.NewQueryState(kernel.ReturnFirst)
	ar.Find(kernel.Greater, 6, 0, ar.Size(), 0, firstState)
	assert.Equal(t, int64(2), firstState.FirstIndex)
}

func minVal() int64 { return -1 << 62 }

func TestArray_Nullable(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, true)
	require.NoError(t, err)

	_, err = ar.Insert(0, 5)
	require.NoError(t, err)
	_, err = ar.Insert(1, ar.Sentinel())
	require.NoError(t, err)

	assert.Equal(t, 2, ar.Size())
	assert.False(t, ar.IsNull(0))
	assert.True(t, ar.IsNull(1))
}

func TestArray_CopyOnWriteWhenReadOnly(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	_, err = ar.Insert(0, 1)
	require.NoError(t, err)

	before := ar.Ref()
	a.SetWatermark(before + 1) // publish: ref now read-only

	// -1 fits the current width (array holds a single value of 1, which
	// widens the node to width 2, range [-2,1]), so this exercises the
	// pure copy-on-write path rather than a widen.
	newRef, err := ar.Set(0, -1)
	require.NoError(t, err)
	assert.NotEqual(t, before, newRef)
	assert.Equal(t, int64(-1), ar.Get(0))
}

func TestArray_GetPanicsOutOfRange(t *testing.T) {
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)
	assert.Panics(t, func() { ar.Get(0) })
}

func TestArray_RoundTripUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := newTestAllocator(t)
	ar, err := New(a, 1, false, false, false)
	require.NoError(t, err)

	var model []int64
	for step := 0; step < 500; step++ {
		switch rng.Intn(3) {
		case 0:
			v := rng.Int63n(1 << 40)
			i := rng.Intn(len(model) + 1)
			_, err := ar.Insert(i, v)
			require.NoError(t, err)
			model = append(model[:i], append([]int64{v}, model[i:]...)...)
		case 1:
			if len(model) > 0 {
				i := rng.Intn(len(model))
				_, err := ar.Erase(i, i+1)
				require.NoError(t, err)
				model = append(model[:i], model[i+1:]...)
			}
		case 2:
			if len(model) > 0 {
				i := rng.Intn(len(model))
				v := rng.Int63n(1 << 40)
				_, err := ar.Set(i, v)
				require.NoError(t, err)
				model[i] = v
			}
		}
	}

	assert.Equal(t, model, readAll(ar))
}

func readAll(ar *Array) []int64 {
	out := make([]int64, ar.Size())
	for i := range out {
		out[i] = ar.Get(i)
	}
	return out
}
