// Package array implements the bit-packed integer array node: the shared
// storage substrate for every scalar column leaf and every B+-tree inner
// node's child-ref/offset pair.
//
// # Layout
//
// Every node begins with an 8-byte header (see HeaderSize) followed by a
// payload of fixed-width signed integers, width drawn from
// {0,1,2,4,8,16,32,64} bits and chosen adaptively per node. Element i
// occupies bits i*width..i*width+width of the payload, least-significant
// bit first.
//
// # Widening
//
// A mutation that writes a value outside the current width's signed range
// widens the node: a new, wider payload is allocated, existing elements are
// copied with sign extension, and the old node is scheduled for
// reclamation. Widening never narrows on erase.
//
// # Copy-on-write
//
// Set mutates in place only when the node is not read-only (per
// [alloc.Allocator.IsReadOnly]) and the write fits the current width;
// otherwise it allocates a fresh copy, mutates the copy, and the caller is
// responsible for writing the returned ref into the parent slot — Array
// does not itself own a parent pointer (see the accessor design note this
// mirrors).
package array
