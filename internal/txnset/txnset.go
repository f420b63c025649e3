package txnset

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Tracker records, per commit version, how many open read transactions are
// pinned to it. A version's bit is set for as long as its refcount is
// nonzero; MinLive scans the bitset rather than the refcount map so it stays
// cheap even with many historical versions referenced by long-lived readers.
type Tracker struct {
	mu   sync.Mutex
	base uint64
	held *bitset.BitSet
	refs map[uint64]uint32
}

// New returns a Tracker for a group whose first committed version is base.
func New(base uint64) *Tracker {
	return &Tracker{base: base, held: bitset.New(64), refs: make(map[uint64]uint32)}
}

func (t *Tracker) index(version uint64) uint {
	if version < t.base {
		return 0
	}
	return uint(version - t.base)
}

// Acquire pins version, incrementing its refcount. Called when a read
// transaction begins.
func (t *Tracker) Acquire(version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[version]++
	t.held.Set(t.index(version))
}

// Release unpins version. Called when a read transaction ends. Once no
// reader holds a version its bit is cleared, making it eligible for
// reclamation.
func (t *Tracker) Release(version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.refs[version]
	if n <= 1 {
		delete(t.refs, version)
		t.held.Clear(t.index(version))
		return
	}
	t.refs[version] = n - 1
}

// MinLive returns the smallest version any reader still holds, or upTo if
// none do. A writer commits its pending frees up to whatever MinLive
// reports: everything freed at an earlier version is unreachable from any
// live reader.
func (t *Tracker) MinLive(upTo uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.held.NextSet(0); ok {
		return t.base + uint64(idx)
	}
	return upTo
}

// Count returns the number of distinct versions currently pinned.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.refs)
}
