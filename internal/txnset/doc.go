// Package txnset tracks which commit versions are currently pinned by an
// open read transaction, so a committing writer knows the oldest version it
// must still leave intact before sweeping pending-free allocator entries
// into the reclaimable free list.
package txnset
