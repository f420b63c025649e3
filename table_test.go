package packdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AddColumnBackfillsExistingRows(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		first, err := tbl.AddColumn("a")
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err := tbl.AddRow(); err != nil {
				return err
			}
			if err := first.Set(i, int64(i)); err != nil {
				return err
			}
		}
		second, err := tbl.AddColumn("b")
		if err != nil {
			return err
		}
		assert.Equal(t, 3, second.Size())
		for i := 0; i < 3; i++ {
			assert.Equal(t, int64(0), second.Get(i))
		}
		return nil
	}))
}

func TestTable_AddNullableColumnBackfillsNull(t *testing.T) {
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
		if _, err := tbl.AddRow(); err != nil {
			return err
		}
		if err := a.Set(0, 7); err != nil {
			return err
		}
		nullable, err := tbl.AddNullableColumn("n")
		if err != nil {
			return err
		}
		assert.True(t, nullable.IsNull(0))
		require.NoError(t, nullable.Set(0, 5))
		assert.False(t, nullable.IsNull(0))
		assert.Equal(t, int64(5), nullable.Get(0))
		return nil
	}))
}

func TestTable_DuplicateColumnNameRejected(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()
	err := g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		if _, err := tbl.AddColumn("a"); err != nil {
			return err
		}
		_, err = tbl.AddColumn("a")
		return err
	})
	assert.ErrorIs(t, err, ErrColumnExists)
}

func TestTable_ReadOnlyMutationsRejected(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()
	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		col, err := tbl.AddColumn("a")
		if err != nil {
			return err
		}
		return col.Insert(0, 1)
	}))

	err := g.Read(ctx, func(rt *ReadTxn) error {
		tbl, err := rt.Table("t")
		require.NoError(t, err)
		_, err = tbl.AddColumn("b")
		assert.ErrorIs(t, err, ErrReadOnlyViolation)
		_, err = tbl.AddRow()
		assert.ErrorIs(t, err, ErrReadOnlyViolation)
		col, err := tbl.Column("a")
		require.NoError(t, err)
		assert.ErrorIs(t, col.Set(0, 2), ErrReadOnlyViolation)
		assert.ErrorIs(t, col.Insert(0, 2), ErrReadOnlyViolation)
		return nil
	})
	require.NoError(t, err)
}

func TestColumn_WidthWidensAcrossCommits(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		col, err := tbl.AddColumn("v")
		if err != nil {
			return err
		}
		return col.Insert(0, 1)
	}))

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.Table("t")
		if err != nil {
			return err
		}
		col, err := tbl.Column("v")
		if err != nil {
			return err
		}
		return col.Set(0, 1<<40)
	}))

	require.NoError(t, g.Read(ctx, func(rt *ReadTxn) error {
		tbl, err := rt.Table("t")
		require.NoError(t, err)
		col, err := tbl.Column("v")
		require.NoError(t, err)
		assert.Equal(t, int64(1<<40), col.Get(0))
		return nil
	}))
}

func TestColumn_ManyInsertsAcrossCommitsForcesTreeSplit(t *testing.T) {
	g := mustOpen(t, WithMaxLeafSize(8))
	ctx := context.Background()

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		_, err = tbl.AddColumn("v")
		return err
	}))

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
			tbl, err := wt.Table("t")
			if err != nil {
				return err
			}
			col, err := tbl.Column("v")
			if err != nil {
				return err
			}
			return col.Insert(col.Size(), int64(i))
		}))
	}

	require.NoError(t, g.Read(ctx, func(rt *ReadTxn) error {
		tbl, err := rt.Table("t")
		require.NoError(t, err)
		col, err := tbl.Column("v")
		require.NoError(t, err)
		require.Equal(t, n, col.Size())
		for i := 0; i < n; i++ {
			assert.Equal(t, int64(i), col.Get(i))
		}
		return nil
	}))
}

func TestAllocator_FileSizeStabilizesAcrossRepeatedInsertEraseCycles(t *testing.T) {
	g := mustOpen(t)
	ctx := context.Background()

	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("t")
		if err != nil {
			return err
		}
		_, err = tbl.AddColumn("v")
		return err
	}))

	sizeAfter := func(n int) uint64 {
		for i := 0; i < n; i++ {
			require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
				tbl, err := wt.Table("t")
				if err != nil {
					return err
				}
				col, err := tbl.Column("v")
				if err != nil {
					return err
				}
				if err := col.Insert(0, int64(i)); err != nil {
					return err
				}
				return col.Erase(0, 1)
			}))
		}
		return uint64(g.alloc.Backing().Size())
	}

	_ = sizeAfter(20) // warm up: let growth/doubling settle
	settled := sizeAfter(200)
	final := sizeAfter(200)
	assert.Equal(t, settled, final, "backing region must stop growing once the free list absorbs steady-state churn")
}
