package matchset

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// MatchSet accumulates FindAll match indices into a Roaring bitmap. It
// implements kernel.Collector.
type MatchSet struct {
	rb *roaring.Bitmap
}

// New returns an empty MatchSet.
func New() *MatchSet {
	return &MatchSet{rb: roaring.New()}
}

// Add records index as a match. index must fit in a uint32, matching a
// single column's row-count ceiling for this collector; a table with more
// rows than that needs a wider match representation than FindAll offers.
func (m *MatchSet) Add(index int64) {
	if index < 0 || index > 0xFFFFFFFF {
		panic(fmt.Sprintf("matchset: index %d out of uint32 range", index))
	}
	m.rb.Add(uint32(index))
}

// Len returns the number of distinct matches recorded.
func (m *MatchSet) Len() int {
	return int(m.rb.GetCardinality())
}

// Contains reports whether index was recorded as a match.
func (m *MatchSet) Contains(index int64) bool {
	if index < 0 || index > 0xFFFFFFFF {
		return false
	}
	return m.rb.Contains(uint32(index))
}

// All returns the matches in ascending order.
func (m *MatchSet) All() []int64 {
	out := make([]int64, 0, m.Len())
	it := m.rb.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Iter returns a range-over-func iterator of the matches in ascending order.
func (m *MatchSet) Iter() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		it := m.rb.Iterator()
		for it.HasNext() {
			if !yield(int64(it.Next())) {
				return
			}
		}
	}
}

// And intersects m with other in place, keeping only indices present in both,
// so two predicates' match sets can be combined without rescanning either
// column. Column.CompareColumn does not use it: it evaluates both columns
// row by row into a single match set.
func (m *MatchSet) And(other *MatchSet) {
	m.rb.And(other.rb)
}

// Or unions other into m in place.
func (m *MatchSet) Or(other *MatchSet) {
	m.rb.Or(other.rb)
}

// AndNot removes other's members from m in place.
func (m *MatchSet) AndNot(other *MatchSet) {
	m.rb.AndNot(other.rb)
}
