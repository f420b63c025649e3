package matchset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSet_AddAndAll(t *testing.T) {
	m := New()
	m.Add(5)
	m.Add(1)
	m.Add(5)
	m.Add(3)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int64{1, 3, 5}, m.All())
}

func TestMatchSet_Contains(t *testing.T) {
	m := New()
	m.Add(42)
	assert.True(t, m.Contains(42))
	assert.False(t, m.Contains(43))
	assert.False(t, m.Contains(-1))
}

func TestMatchSet_AddOutOfRangePanics(t *testing.T) {
	m := New()
	assert.Panics(t, func() { m.Add(-1) })
	assert.Panics(t, func() { m.Add(1 << 40) })
}

func TestMatchSet_SetOperations(t *testing.T) {
	a := New()
	a.Add(1)
	a.Add(2)
	a.Add(3)

	b := New()
	b.Add(2)
	b.Add(3)
	b.Add(4)

	and := New()
	and.Add(1)
	and.Add(2)
	and.Add(3)
	and.And(b)
	assert.Equal(t, []int64{2, 3}, and.All())

	or := New()
	or.Add(1)
	or.Add(2)
	or.Add(3)
	or.Or(b)
	assert.Equal(t, []int64{1, 2, 3, 4}, or.All())

	andNot := New()
	andNot.Add(1)
	andNot.Add(2)
	andNot.Add(3)
	andNot.AndNot(b)
	assert.Equal(t, []int64{1}, andNot.All())
}

func TestMatchSet_Iter(t *testing.T) {
	m := New()
	m.Add(10)
	m.Add(20)
	m.Add(30)

	var got []int64
	for v := range m.Iter() {
		got = append(got, v)
		if v == 20 {
			break
		}
	}
	assert.Equal(t, []int64{10, 20}, got)
}

func TestMatchSet_UsableAsKernelCollector(t *testing.T) {
	m := New()
	var collector interface{ Add(int64) } = m
	collector.Add(7)
	assert.True(t, m.Contains(7))
}
