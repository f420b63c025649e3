package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmap_OpenReadWrite_WriteAndSync(t *testing.T) {
	f, err := os.CreateTemp("", "mmap_rw_test")
	require.NoError(t, err)
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	m, err := OpenReadWrite(path, 4096)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.Writable())
	assert.Equal(t, 4096, m.Size())

	n, err := m.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, m.Sync())

	buf := make([]byte, 5)
	_, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestMmap_OpenReadWrite_ReadOnlyRejectsWrite(t *testing.T) {
	f, err := os.CreateTemp("", "mmap_ro_test")
	require.NoError(t, err)
	path := f.Name()
	_, err = f.Write(make([]byte, 16))
	require.NoError(t, err)
	f.Close()
	defer os.Remove(path)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = m.Grow(64)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMmap_Grow(t *testing.T) {
	f, err := os.CreateTemp("", "mmap_grow_test")
	require.NoError(t, err)
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	m, err := OpenReadWrite(path, 4096)
	require.NoError(t, err)

	_, err = m.WriteAt([]byte("persist-me"), 0)
	require.NoError(t, err)

	grown, err := m.Grow(8192)
	require.NoError(t, err)
	defer grown.Close()

	assert.Equal(t, 8192, grown.Size())

	buf := make([]byte, 10)
	_, err = grown.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "persist-me", string(buf))
}
