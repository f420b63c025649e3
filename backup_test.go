package packdb

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packdb/packdb/internal/pagecodec"
)

func seedRows(t *testing.T, g *Group, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, g.Write(ctx, func(wt *WriteTxn) error {
		tbl, err := wt.CreateTable("events")
		if err != nil {
			return err
		}
		col, err := tbl.AddColumn("value")
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			row, err := tbl.AddRow()
			if err != nil {
				return err
			}
			if err := col.Set(int(row), int64(i)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestBackup_RoundTripPreservesData(t *testing.T) {
	for _, algo := range []pagecodec.Algorithm{pagecodec.None, pagecodec.LZ4, pagecodec.ZSTD} {
		g := mustOpen(t, WithPageCodec(algo))
		seedRows(t, g, 500)

		var buf bytes.Buffer
		require.NoError(t, g.WriteBackupTo(context.Background(), &buf))
		require.NotZero(t, buf.Len())

		dst := filepath.Join(t.TempDir(), "restored.packdb")
		require.NoError(t, RestoreBackupFile(dst, &buf))

		restored, err := Open(context.Background(), dst)
		require.NoError(t, err)
		defer restored.Close()

		err = restored.Read(context.Background(), func(rt *ReadTxn) error {
			tbl, err := rt.Table("events")
			if err != nil {
				return err
			}
			col, err := tbl.Column("value")
			if err != nil {
				return err
			}
			assert.Equal(t, int64(500), tbl.RowCount())
			for i := 0; i < 500; i++ {
				assert.Equal(t, int64(i), col.Get(i))
			}
			return nil
		})
		require.NoError(t, err)
	}
}

func TestBackup_EmptyGroupProducesRestorableFile(t *testing.T) {
	g := mustOpen(t)

	var buf bytes.Buffer
	require.NoError(t, g.WriteBackupTo(context.Background(), &buf))

	dst := filepath.Join(t.TempDir(), "empty.packdb")
	require.NoError(t, RestoreBackupFile(dst, &buf))

	restored, err := Open(context.Background(), dst)
	require.NoError(t, err)
	defer restored.Close()

	err = restored.Read(context.Background(), func(rt *ReadTxn) error {
		assert.Empty(t, rt.TableNames())
		return nil
	})
	require.NoError(t, err)
}
