// Package column implements the B+-tree layer that turns a single
// [array.Array] leaf into a logically contiguous sequence of up to 2^63
// elements.
//
// # Shape
//
// A Column is either a leaf (a bare [array.Array] with HasRefs=false) or an
// inner node: an [array.Array] with ContextFlag=true and HasRefs=true whose
// two payload refs point at a child-ref array of length k and a cumulative
// per-child offset array of length k, the last entry of which equals the
// column's total element count. The child owning global index i is the
// smallest c with offset[c] > i.
//
// # Splitting and merging
//
// Insertion into a full leaf splits it in two and returns a [TreeInsert]
// record for the parent to absorb; a full inner node splits the same way one
// level up, and the root may grow a new level. Deletion only shrinks a leaf
// in place — empty leaves are retained until Truncate or Clear collapses
// them, matching the lazy-merge policy spec'd for this layer.
package column
