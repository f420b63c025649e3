package alloc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/packdb/packdb/internal/mmap"
	"github.com/packdb/packdb/internal/resource"
)

const (
	// Alignment is the mandatory alignment of every allocated ref.
	Alignment = 8

	// MaxRegionSize caps how large the backing region may grow to in one
	// process lifetime, matching the platform ceiling spec.md's file
	// extension policy asks for.
	MaxRegionSize = 1 << 40 // 1 TiB
)

var (
	// ErrOutOfMemory is returned when the backing region cannot be extended
	// far enough to satisfy an allocation.
	ErrOutOfMemory = errors.New("alloc: out of memory")
	// ErrInvalidRef is returned when Translate is called with a ref that
	// does not lie within the mapped region or is not aligned, and when
	// Alloc is called with a non-positive size.
	ErrInvalidRef = errors.New("alloc: invalid ref")
	// ErrReadOnly is returned when Alloc is attempted on a read-only
	// backing.
	ErrReadOnly = errors.New("alloc: backing is read-only")
)

// Backing is the growable byte region an Allocator hands out refs into.
// mmapBacking implements it over a file; heapBacking implements it over a
// plain Go slice for DurabilityMemOnly groups and tests.
type Backing interface {
	Bytes() []byte
	Size() int
	Writable() bool
	Sync() error
	Grow(newSize int64) (Backing, error)
	Close() error
}

type mmapBacking struct {
	m *mmap.Mapping
}

// NewFileBacked opens path as a read-write memory-mapped Backing, creating
// it and sizing it to initialSize if it does not already exist or is
// smaller.
func NewFileBacked(path string, initialSize int64) (Backing, error) {
	m, err := mmap.OpenReadWrite(path, initialSize)
	if err != nil {
		return nil, err
	}
	return &mmapBacking{m: m}, nil
}

// OpenFileBacked maps an existing file read-write without altering its size.
func OpenFileBacked(path string) (Backing, error) {
	m, err := mmap.OpenReadWrite(path, 0)
	if err != nil {
		return nil, err
	}
	return &mmapBacking{m: m}, nil
}

func (b *mmapBacking) Bytes() []byte    { return b.m.Bytes() }
func (b *mmapBacking) Size() int        { return b.m.Size() }
func (b *mmapBacking) Writable() bool   { return b.m.Writable() }
func (b *mmapBacking) Sync() error      { return b.m.Sync() }
func (b *mmapBacking) Close() error     { return b.m.Close() }
func (b *mmapBacking) Grow(newSize int64) (Backing, error) {
	grown, err := b.m.Grow(newSize)
	if err != nil {
		return nil, err
	}
	return &mmapBacking{m: grown}, nil
}

// heapBacking is an in-memory Backing for DurabilityMemOnly groups: no file,
// no fsync, Sync is a no-op.
type heapBacking struct {
	data []byte
}

// NewHeapBacked returns a Backing over a plain heap slice of initialSize
// bytes.
func NewHeapBacked(initialSize int) Backing {
	return &heapBacking{data: make([]byte, initialSize)}
}

func (b *heapBacking) Bytes() []byte  { return b.data }
func (b *heapBacking) Size() int      { return len(b.data) }
func (b *heapBacking) Writable() bool { return true }
func (b *heapBacking) Sync() error    { return nil }
func (b *heapBacking) Close() error   { return nil }
func (b *heapBacking) Grow(newSize int64) (Backing, error) {
	grown := make([]byte, newSize)
	copy(grown, b.data)
	return &heapBacking{data: grown}, nil
}

// freeEntry is one persistent free-list slot: a byte range released by a
// write transaction whose base (last committed) version is `version`.
type freeEntry struct {
	position uint64
	size     uint64
	version  uint64
}

// Stats summarizes allocator usage for logging and diagnostics.
type Stats struct {
	RegionSize    uint64
	Used          uint64
	FreeListBytes uint64
	FreeListCount int
	PendingBytes  uint64
	PendingCount  int
	TotalAllocs   uint64
	TotalFrees    uint64
	Extensions    uint64
}

// Allocator translates refs to addresses and manages allocation, growth,
// and the free-list over a single Backing region.
type Allocator struct {
	mu         sync.Mutex
	backing    atomic.Pointer[Backing]
	headerSize uint64
	next       atomic.Uint64 // end of the used (allocated-or-free-listed) region
	watermark  atomic.Uint64 // refs below this are part of a durable, shared version

	free    []freeEntry            // sorted by position; persistent, best-fit searched
	pending map[uint64][]freeEntry // version -> entries freed by that write

	totalAllocs atomic.Uint64
	totalFrees  atomic.Uint64
	extensions  atomic.Uint64

	ioCtl *resource.Controller // nil disables extend-path throttling
}

// SetIOController installs ctl as the admission-control gate consulted
// before every backing-region extension, throttling how fast the file can
// grow per spec.md §4.1's file extension policy. Pass nil to disable
// (the default). Not safe to call concurrently with Alloc.
func (a *Allocator) SetIOController(ctl *resource.Controller) {
	a.ioCtl = ctl
}

// NewAllocator wraps backing, treating its first headerSize bytes as
// reserved (the file header in spec.md §6, or a zero-length reservation for
// a heap-backed region with no file header).
func NewAllocator(backing Backing, headerSize uint64) *Allocator {
	a := &Allocator{
		headerSize: headerSize,
		pending:    make(map[uint64][]freeEntry),
	}
	a.backing.Store(&backing)
	a.next.Store(headerSize)
	a.watermark.Store(headerSize)
	return a
}

func (a *Allocator) load() Backing { return *a.backing.Load() }

// Backing returns the current backing region. The returned value may become
// stale after a Grow triggered by Alloc; callers needing a live view should
// call Backing() again rather than caching the result.
func (a *Allocator) Backing() Backing { return a.load() }

// Translate returns the byte slice for ref, sized to at least length bytes.
// It is lock-free and safe for concurrent readers against a stable version.
func (a *Allocator) Translate(ref uint64, length int) ([]byte, error) {
	if ref%Alignment != 0 {
		return nil, ErrInvalidRef
	}
	data := a.load().Bytes()
	end := ref + uint64(length)
	if end > uint64(len(data)) || end < ref {
		return nil, ErrInvalidRef
	}
	return data[ref:end], nil
}

// IsReadOnly reports whether ref lies below the allocator's committed
// watermark, meaning write paths must copy-on-write rather than mutate it
// in place.
func (a *Allocator) IsReadOnly(ref uint64) bool {
	return ref < a.watermark.Load()
}

// SetWatermark advances the read-only boundary to size, called once a
// commit's new regions have been durably published.
func (a *Allocator) SetWatermark(size uint64) {
	for {
		cur := a.watermark.Load()
		if size <= cur {
			return
		}
		if a.watermark.CompareAndSwap(cur, size) {
			return
		}
	}
}

func align(size int) uint64 {
	s := uint64(size)
	return (s + Alignment - 1) &^ (Alignment - 1)
}

// Alloc returns an 8-byte-aligned region of at least size bytes, first
// consulting the best-fit free list before extending the backing region.
func (a *Allocator) Alloc(size int) (uint64, []byte, error) {
	if size <= 0 {
		return 0, nil, fmt.Errorf("%w: size must be positive", ErrInvalidRef)
	}
	need := align(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.load().Writable() {
		return 0, nil, ErrReadOnly
	}

	if ref, ok := a.takeBestFitLocked(need); ok {
		a.totalAllocs.Add(1)
		data, err := a.Translate(ref, int(need))
		if err != nil {
			return 0, nil, err
		}
		return ref, data[:size:size], nil
	}

	ref := a.next.Load()
	required := ref + need
	if required < ref || required > MaxRegionSize {
		return 0, nil, ErrOutOfMemory
	}

	if err := a.ensureCapacityLocked(required); err != nil {
		return 0, nil, err
	}

	a.next.Store(required)
	a.totalAllocs.Add(1)

	data, err := a.Translate(ref, int(need))
	if err != nil {
		return 0, nil, err
	}
	return ref, data[:size:size], nil
}

// takeBestFitLocked removes and returns the smallest free entry able to
// hold need bytes, splitting off any surplus back into the free list.
func (a *Allocator) takeBestFitLocked(need uint64) (uint64, bool) {
	bestIdx := -1
	var bestSurplus uint64
	for i, e := range a.free {
		if e.size < need {
			continue
		}
		surplus := e.size - need
		if bestIdx == -1 || surplus < bestSurplus {
			bestIdx = i
			bestSurplus = surplus
		}
	}
	if bestIdx == -1 {
		return 0, false
	}

	e := a.free[bestIdx]
	a.free = append(a.free[:bestIdx], a.free[bestIdx+1:]...)

	if bestSurplus > 0 {
		a.insertFreeLocked(freeEntry{position: e.position + need, size: bestSurplus, version: e.version})
	}
	return e.position, true
}

func (a *Allocator) insertFreeLocked(e freeEntry) {
	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].position >= e.position })
	a.free = append(a.free, freeEntry{})
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = e
}

// ensureCapacityLocked doubles the backing region's mapped size until it is
// at least required bytes, per spec.md §4.1's file extension policy.
func (a *Allocator) ensureCapacityLocked(required uint64) error {
	cur := a.load()
	size := uint64(cur.Size())
	if size >= required {
		return nil
	}
	newSize := size
	if newSize == 0 {
		newSize = Alignment
	}
	for newSize < required {
		newSize *= 2
	}
	if newSize > MaxRegionSize {
		return ErrOutOfMemory
	}

	// Best-effort throttle: a misconfigured limit smaller than one growth
	// step just lets that step through unthrottled rather than failing the
	// allocation outright.
	if a.ioCtl != nil {
		_ = a.ioCtl.AcquireIO(context.Background(), int(newSize-size))
	}

	grown, err := cur.Grow(int64(newSize))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	a.backing.Store(&grown)
	a.extensions.Add(1)
	return nil
}

// Free appends [ref, ref+size) to the pending-free list keyed by version.
// It becomes reclaimable once Reclaim is called with a minLiveVersion
// greater than version.
func (a *Allocator) Free(ref uint64, size int, version uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[version] = append(a.pending[version], freeEntry{
		position: ref,
		size:     align(size),
		version:  version,
	})
	a.totalFrees.Add(1)
}

// Reclaim moves every pending-free entry whose version is strictly less
// than minLiveVersion (i.e. no live reader can still observe it) into the
// persistent best-fit free list, merging adjacent ranges.
func (a *Allocator) Reclaim(minLiveVersion uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for version, entries := range a.pending {
		if version >= minLiveVersion {
			continue
		}
		for _, e := range entries {
			a.insertFreeLocked(e)
		}
		delete(a.pending, version)
	}
	a.coalesceLocked()
}

// coalesceLocked merges adjacent free entries to reduce fragmentation.
func (a *Allocator) coalesceLocked() {
	if len(a.free) < 2 {
		return
	}
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].position < a.free[j].position })
	merged := a.free[:1]
	for _, e := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.position+last.size == e.position {
			last.size += e.size
		} else {
			merged = append(merged, e)
		}
	}
	a.free = merged
}

// FreeListSnapshot returns the persistent (already reclaimed) free list as
// three parallel slices (position, size, version), the shape the group top
// node persists them in. Still-pending entries are not included, and every
// version reported is 0.
func (a *Allocator) FreeListSnapshot() (positions, sizes, versions []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions = make([]uint64, len(a.free))
	sizes = make([]uint64, len(a.free))
	versions = make([]uint64, len(a.free))
	for i, e := range a.free {
		positions[i], sizes[i], versions[i] = e.position, e.size, 0
	}
	return positions, sizes, versions
}

// LoadFreeList restores the persistent free list on Open, along with the
// high-water mark of allocated space.
func (a *Allocator) LoadFreeList(positions, sizes, versions []uint64, next uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = a.free[:0]
	for i := range positions {
		a.free = append(a.free, freeEntry{position: positions[i], size: sizes[i], version: versions[i]})
	}
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].position < a.free[j].position })
	if next > a.next.Load() {
		a.next.Store(next)
	}
	a.watermark.Store(a.next.Load())
}

// NextOffset returns the current end of the allocated region.
func (a *Allocator) NextOffset() uint64 { return a.next.Load() }

// Sync flushes the backing region.
func (a *Allocator) Sync() error { return a.load().Sync() }

// Stats reports current allocator usage.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var freeBytes, pendingBytes uint64
	for _, e := range a.free {
		freeBytes += e.size
	}
	pendingCount := 0
	for _, entries := range a.pending {
		pendingCount += len(entries)
		for _, e := range entries {
			pendingBytes += e.size
		}
	}

	return Stats{
		RegionSize:    uint64(a.load().Size()),
		Used:          a.next.Load(),
		FreeListBytes: freeBytes,
		FreeListCount: len(a.free),
		PendingBytes:  pendingBytes,
		PendingCount:  pendingCount,
		TotalAllocs:   a.totalAllocs.Load(),
		TotalFrees:    a.totalFrees.Load(),
		Extensions:    a.extensions.Load(),
	}
}

// String renders Stats in the arena allocator's human-readable format.
func (a *Allocator) String() string {
	s := a.Stats()
	return fmt.Sprintf(
		"Allocator{region: %s, used: %s, free: %s (%d entries), pending: %s (%d entries), allocs: %d, frees: %d, extensions: %d}",
		humanize.Bytes(s.RegionSize),
		humanize.Bytes(s.Used),
		humanize.Bytes(s.FreeListBytes),
		s.FreeListCount,
		humanize.Bytes(s.PendingBytes),
		s.PendingCount,
		s.TotalAllocs,
		s.TotalFrees,
		s.Extensions,
	)
}
