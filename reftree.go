package packdb

import (
	"github.com/packdb/packdb/array"
	"github.com/packdb/packdb/internal/alloc"
)

// tagInt encodes a small non-negative integer as a tagged value: the low bit
// set distinguishes it from a ref in a has-refs array's payload (spec.md §3).
func tagInt(v int64) int64 { return v<<1 | 1 }

// untagInt reverses tagInt.
func untagInt(v int64) int64 { return v >> 1 }

// newRefArray allocates a has-refs array holding refs in order.
func newRefArray(a *alloc.Allocator, version uint64, refs []uint64) (uint64, error) {
	ar, err := array.New(a, version, true, false, false)
	if err != nil {
		return 0, err
	}
	for i, ref := range refs {
		if _, err := ar.Insert(i, int64(ref)); err != nil {
			return 0, err
		}
	}
	return ar.Ref(), nil
}

// readRefArray materializes a has-refs array's payload as a []uint64.
func readRefArray(a *alloc.Allocator, ref uint64) ([]uint64, error) {
	ar, err := array.Open(a, ref, 0, false)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, ar.Size())
	for i := range out {
		out[i] = uint64(ar.Get(i))
	}
	return out, nil
}

// newValueArray allocates a plain (non-refs) array holding vs in order, used
// for free-list snapshots and other flat integer payloads.
func newValueArray(a *alloc.Allocator, version uint64, vs []uint64) (uint64, error) {
	ar, err := array.New(a, version, false, false, false)
	if err != nil {
		return 0, err
	}
	for i, v := range vs {
		if _, err := ar.Insert(i, int64(v)); err != nil {
			return 0, err
		}
	}
	return ar.Ref(), nil
}

// readValueArray materializes a plain array's payload as a []uint64.
func readValueArray(a *alloc.Allocator, ref uint64) ([]uint64, error) {
	ar, err := array.Open(a, ref, 0, false)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, ar.Size())
	for i := range out {
		out[i] = uint64(ar.Get(i))
	}
	return out, nil
}

// newNameArray stores name as a plain array of byte values. String
// interning is explicitly out of scope (spec.md §1); this is the minimal
// substrate that lets table/column names round-trip through the same
// bit-packed integer array primitive used everywhere else, at the cost of
// widening to 16 bits per character to accommodate the full unsigned byte
// range.
func newNameArray(a *alloc.Allocator, version uint64, name string) (uint64, error) {
	ar, err := array.New(a, version, false, false, false)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(name); i++ {
		if _, err := ar.Insert(i, int64(name[i])); err != nil {
			return 0, err
		}
	}
	return ar.Ref(), nil
}

// readNameArray reverses newNameArray.
func readNameArray(a *alloc.Allocator, ref uint64) (string, error) {
	ar, err := array.Open(a, ref, 0, false)
	if err != nil {
		return "", err
	}
	buf := make([]byte, ar.Size())
	for i := range buf {
		buf[i] = byte(ar.Get(i))
	}
	return string(buf), nil
}
