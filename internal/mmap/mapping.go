package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	path     string
	data     []byte
	size     int
	writable bool
	closed   atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return newMapping(f, path, false)
}

// OpenReadWrite opens path for read-write mapping. If size is greater than
// the file's current length, the file is extended to size before mapping
// (the caller chooses the growth increment).
func OpenReadWrite(path string, size int64) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if size > fi.Size() {
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
	}

	return newMapping(f, path, true)
}

func newMapping(f *os.File, path string, writable bool) (*Mapping, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{path: path, writable: writable}, nil
	}
	if size < 0 {
		return nil, ErrInvalidSize
	}

	data, unmapFunc, err := osMap(f, int(size), writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		path:     path,
		data:     data,
		size:     int(size),
		writable: writable,
		unmap:    unmapFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was opened for read-write access.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Sync flushes dirty pages to the backing file. It is a no-op for read-only
// mappings.
func (m *Mapping) Sync() error {
	if m.closed.Load() || !m.writable {
		return nil
	}
	return osSync(m.data)
}

// Grow remaps the file at a larger size, extending the backing file first if
// necessary. The Mapping must have been opened with OpenReadWrite. Byte
// slices obtained from Bytes()/Region() before Grow become invalid; callers
// must re-derive them from the returned Mapping.
func (m *Mapping) Grow(newSize int64) (*Mapping, error) {
	if !m.writable {
		return nil, ErrReadOnly
	}
	if err := m.Sync(); err != nil {
		return nil, err
	}
	if err := m.Close(); err != nil {
		return nil, err
	}
	return OpenReadWrite(m.path, newSize)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. It returns ErrReadOnly if the mapping was
// not opened with OpenReadWrite.
func (m *Mapping) WriteAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if !m.writable {
		return 0, ErrReadOnly
	}
	if off < 0 || off > int64(len(m.data)) {
		return 0, ErrInvalidOffset
	}
	n = copy(m.data[off:], p)
	if n < len(p) {
		return n, ErrOutOfBounds
	}
	return n, nil
}
