// Package mmap provides memory-mapped file access for the single-file
// storage engine.
//
// # Overview
//
// The entire database — header, allocator free-lists, and every array and
// B+-tree node — lives inside one memory-mapped file. Readers map it
// read-only; the single writer maps it read-write and extends it in place
// as the allocator needs more space.
//
// # Usage
//
//	m, err := mmap.OpenReadWrite("data.db", initialSize)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to file contents
//	data := m.Bytes()
//
//	// Grow the file and remap when the allocator runs out of room
//	m, err = m.Grow(newSize)
//
//	// Flush dirty pages before flipping the active version slot
//	err = m.Sync()
//
// # Platform support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile/FlushViewOfFile (madvise is a no-op)
//
// # Thread safety
//
// Mapping and Region are safe for concurrent read access. Close is
// idempotent and protected by atomic operations. Callers must ensure no
// goroutine accesses Bytes() after Close or Grow returns, since both
// invalidate the previous slice.
package mmap
