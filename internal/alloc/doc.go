// Package alloc implements the file-backed slab allocator underneath every
// array and B+-tree node in the storage engine.
//
// # Model
//
// The allocator owns one growable region — a memory-mapped file for a
// durable Group, or a plain heap slice for an in-memory-only Group. It hands
// out byte ranges by reference (a file offset, always 8-byte aligned) and
// translates references back to addresses. Translation is lock-free and
// safe for concurrent readers against a stable version; allocation is
// serialized behind the single writer.
//
// Freed regions are not reclaimed immediately. Free appends to a
// pending-free list keyed by the write version that freed it; only Reclaim,
// called at the end of a commit once no live reader can still observe that
// version, moves entries into the persistent best-fit free list consulted
// by future Alloc calls.
//
// # Growth
//
// When the region cannot satisfy a request, Allocator doubles its mapped
// size (capped at MaxRegionSize) and retries, following the arena
// allocator's bump-then-grow shape from the surrounding package family —
// generalized here from anonymous chunks to a single file-backed mapping
// that must be resizable in place without invalidating outstanding refs.
package alloc
