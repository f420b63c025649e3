package packdb

import (
	"fmt"
	"time"

	"github.com/packdb/packdb/internal/kernel"
	"github.com/packdb/packdb/internal/matchset"
)

// Cond is a scan comparison operator.
type Cond = kernel.Cond

// Scan comparison operators, re-exported from the internal query kernel so
// callers never need to import internal packages.
const (
	Equal        = kernel.Equal
	NotEqual     = kernel.NotEqual
	Less         = kernel.Less
	Greater      = kernel.Greater
	LessEqual    = kernel.LessEqual
	GreaterEqual = kernel.GreaterEqual
)

func (c *Column) recordQuery(desc string, start time.Time, rowsScanned, matches int64) {
	c.g.metrics.RecordQuery(QueryStats{
		Description: desc,
		Duration:    time.Since(start),
		RowsScanned: rowsScanned,
		Matches:     matches,
	})
}

// Find returns the index of the first row matching cond against value, or
// -1 if none match.
func (c *Column) Find(cond Cond, value int64) (int64, error) {
	start := time.Now()
	state := kernel.NewQueryState(kernel.ReturnFirst)
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "FindFirst"), start, int64(c.col.Size()), boolToInt64(state.Found))
	if !state.Found {
		return -1, nil
	}
	return state.FirstIndex, nil
}

// FindAll returns every row index matching cond against value, in ascending
// order. Matches accumulate in a Roaring bitmap during the scan so the
// result stays compact even when most rows match.
func (c *Column) FindAll(cond Cond, value int64) ([]int64, error) {
	start := time.Now()
	ms := matchset.New()
	state := kernel.NewQueryState(kernel.FindAll)
	state.Collector = ms
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "FindAll"), start, int64(c.col.Size()), int64(ms.Len()))
	return ms.All(), nil
}

// Count returns the number of rows matching cond against value.
func (c *Column) Count(cond Cond, value int64) (int64, error) {
	start := time.Now()
	state := kernel.NewQueryState(kernel.Count)
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "Count"), start, int64(c.col.Size()), state.MatchCount)
	return state.MatchCount, nil
}

// Sum returns the sum of every row matching cond against value.
func (c *Column) Sum(cond Cond, value int64) (int64, error) {
	start := time.Now()
	state := kernel.NewQueryState(kernel.Sum)
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "Sum"), start, int64(c.col.Size()), state.MatchCount)
	return state.Sum, nil
}

// Min returns the smallest value among rows matching cond against value,
// and its row index. The third return is false if nothing matched.
func (c *Column) Min(cond Cond, value int64) (int64, int64, bool, error) {
	start := time.Now()
	state := kernel.NewQueryState(kernel.Min)
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "Min"), start, int64(c.col.Size()), state.MatchCount)
	return state.Min, state.MinIndex, state.HasMin, nil
}

// Max returns the largest value among rows matching cond against value, and
// its row index. The third return is false if nothing matched.
func (c *Column) Max(cond Cond, value int64) (int64, int64, bool, error) {
	start := time.Now()
	state := kernel.NewQueryState(kernel.Max)
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "Max"), start, int64(c.col.Size()), state.MatchCount)
	return state.Max, state.MaxIndex, state.HasMax, nil
}

// Average returns the arithmetic mean of every row matching cond against
// value. Computed here rather than in the scan kernel itself: a running
// mean would need per-step floating point division, where accumulating an
// integer sum and dividing once at the end is both cheaper and exact until
// this final step (SPEC_FULL.md §13).
func (c *Column) Average(cond Cond, value int64) (float64, bool, error) {
	sum, err := c.Sum(cond, value)
	if err != nil {
		return 0, false, err
	}
	count, err := c.Count(cond, value)
	if err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(count), true, nil
}

// ForEach invokes fn with the index of every row matching cond against
// value, in ascending order, stopping early if fn returns false.
func (c *Column) ForEach(cond Cond, value int64, fn func(index int64) bool) error {
	start := time.Now()
	state := kernel.NewQueryState(kernel.CallbackPerMatch)
	state.Callback = fn
	c.col.Find(cond, value, 0, c.col.Size(), state)
	c.recordQuery(c.queryDesc(cond, value, "ForEach"), start, int64(c.col.Size()), state.MatchCount)
	return nil
}

// CompareColumn returns every row index where c's value satisfies cond
// against other's value at the same row — column-to-column comparison,
// as opposed to Find's column-to-constant comparison. Both columns must
// hold the same number of rows and agree on nullability; a row where
// either side is null never matches.
func (c *Column) CompareColumn(cond Cond, other *Column) ([]int64, error) {
	if c.col.Size() != other.col.Size() {
		return nil, fmt.Errorf("%w: %q has %d rows, %q has %d", ErrQueryMismatch, c.name, c.col.Size(), other.name, other.col.Size())
	}
	if c.col.Nullable() != other.col.Nullable() {
		return nil, &QueryMismatchError{
			Left:  ColumnShape{WidthBits: c.col.Width(), Nullable: c.col.Nullable()},
			Right: ColumnShape{WidthBits: other.col.Width(), Nullable: other.col.Nullable()},
			cause: ErrQueryMismatch,
		}
	}

	start := time.Now()
	ms := matchset.New()
	state := kernel.NewQueryState(kernel.FindAll)
	state.Collector = ms
	kernel.CompareLeafs(c.col.Get, other.col.Get, c.col.IsNull, other.col.IsNull, cond, 0, c.col.Size(), 0, state)
	c.recordQuery(fmt.Sprintf("%s %s %s act=CompareColumn", c.name, cond, other.name), start, int64(c.col.Size()), int64(ms.Len()))
	return ms.All(), nil
}

func (c *Column) queryDesc(cond Cond, value int64, action string) string {
	return fmt.Sprintf("%s %s(%d) act=%s", c.name, cond, value, action)
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
