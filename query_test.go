package packdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedColumn(t *testing.T, g *Group, values []int64) {
	t.Helper()
	require.NoError(t, g.Write(context.Background(), func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		col, err := tbl.AddColumn("v")
		if err != nil {
			return err
		}
		for i, v := range values {
			if err := col.Insert(i, v); err != nil {
				return err
			}
		}
		return nil
	}))
}

func withColumn(t *testing.T, g *Group, fn func(col *Column) error) {
	t.Helper()
	require.NoError(t, g.Read(context.Background(), func(rt *ReadTxn) error {
		tbl, err := rt.Table("t")
		if err != nil {
			return err
		}
		col, err := tbl.Column("v")
		if err != nil {
			return err
		}
		return fn(col)
	}))
}

func TestQuery_FindReturnsFirstMatchOrMinusOne(t *testing.T) {
	g := mustOpen(t)
	populatedColumn(t, g, []int64{5, 3, 3, 9, 3})

	withColumn(t, g, func(col *Column) error {
		idx, err := col.Find(Equal, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(1), idx)

		idx, err = col.Find(Equal, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), idx)
		return nil
	})
}

func TestQuery_FindAllReturnsEveryMatchInOrder(t *testing.T) {
	g := mustOpen(t)
	populatedColumn(t, g, []int64{5, 3, 3, 9, 3})

	withColumn(t, g, func(col *Column) error {
		got, err := col.FindAll(Equal, 3)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 4}, got)
		return nil
	})
}

func TestQuery_CountSumMinMax(t *testing.T) {
	g := mustOpen(t)
	populatedColumn(t, g, []int64{1, 2, 3, 4, 5})

	withColumn(t, g, func(col *Column) error {
		count, err := col.Count(GreaterEqual, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		sum, err := col.Sum(GreaterEqual, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(12), sum)

		min, minIdx, hasMin, err := col.Min(GreaterEqual, 3)
		require.NoError(t, err)
		assert.True(t, hasMin)
		assert.Equal(t, int64(3), min)
		assert.Equal(t, int64(2), minIdx)

		max, maxIdx, hasMax, err := col.Max(GreaterEqual, 3)
		require.NoError(t, err)
		assert.True(t, hasMax)
		assert.Equal(t, int64(5), max)
		assert.Equal(t, int64(4), maxIdx)
		return nil
	})
}

func TestQuery_AverageOfNoMatchesIsFalse(t *testing.T) {
	g := mustOpen(t)
	populatedColumn(t, g, []int64{1, 2, 3})

	withColumn(t, g, func(col *Column) error {
		avg, ok, err := col.Average(Greater, 100)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, float64(0), avg)

		avg, ok, err = col.Average(GreaterEqual, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 2.0, avg, 1e-9)
		return nil
	})
}

func TestQuery_CompareColumnMatchesRowsElementwise(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		a, err := tbl.AddColumn("a")
		if err != nil {
			return err
		}
		b, err := tbl.AddColumn("b")
		if err != nil {
			return err
		}
		as := []int64{1, 5, 3, 9}
		bs := []int64{1, 2, 3, 4}
		for i := range as {
			if err := a.Insert(i, as[i]); err != nil {
				return err
			}
			if err := b.Insert(i, bs[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, g.Read(ctx, func(rt *ReadTxn) error {
		tbl, err := rt.Table("t")
		require.NoError(t, err)
		a, err := tbl.Column("a")
		require.NoError(t, err)
		b, err := tbl.Column("b")
		require.NoError(t, err)

		eq, err := a.CompareColumn(Equal, b)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 2}, eq)

		gt, err := a.CompareColumn(Greater, b)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, gt)
		return nil
	}))
}

func TestQuery_CompareColumnRejectsLengthMismatch(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	err := g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		a, err := tbl.AddColumn("a")
		if err != nil {
			return err
		}
		b, err := tbl.AddColumn("b")
		if err != nil {
			return err
		}
		if err := a.Insert(0, 1); err != nil {
			return err
		}
		_, err = a.CompareColumn(Equal, b)
		return err
	})
	assert.ErrorIs(t, err, ErrQueryMismatch)
}

func TestQuery_CompareColumnRejectsNullabilityMismatch(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	err := g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		a, err := tbl.AddColumn("a")
		if err != nil {
			return err
		}
		n, err := tbl.AddNullableColumn("n")
		if err != nil {
			return err
		}
		_, err = a.CompareColumn(Equal, n)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryMismatch)
	var qe *QueryMismatchError
	assert.True(t, errors.As(err, &qe))
}

func TestQuery_ForEachStopsEarly(t *testing.T) {
	g := mustOpen(t)
	populatedColumn(t, g, []int64{10, 10, 10, 10})

	withColumn(t, g, func(col *Column) error {
		var visited []int64
		err := col.ForEach(Equal, 10, func(index int64) bool {
			visited = append(visited, index)
			return len(visited) < 2
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1}, visited)
		return nil
	})
}
