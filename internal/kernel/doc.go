// Package kernel implements the single parameterised scan/aggregate routine
// shared by every array and B+-tree column find/count/sum/min/max call.
//
// # Shape
//
// [Cond] and [Action] are the two axes the routine is parameterised over.
// [QueryState] is the tagged-variant accumulator described in the original
// query-state design: one struct with a field per action rather than a
// union, matching the guidance that a systems-language port should not
// overload a single integer accumulator across unrelated actions.
//
// [CanMatch] and [WillMatch] are whole-array pre-tests run against a node's
// signed value bounds (implied by its bit width) before the per-element
// loop: CanMatch false means the node provably contains no match and the
// scan is skipped outright; WillMatch true means every element in the node
// matches and the count fast path applies without touching the payload.
//
// [Find] is expressed over an index -> value accessor rather than raw
// bit-packed bytes, so one implementation serves every width; the array
// package supplies the accessor already adjusted for width and the
// nullable-array sentinel offset. Width-8 arrays are the exception: the
// array package routes them through [FindBytePacked], which walks the
// payload bytes directly and tests a whole 64-bit word per step for Equal.
// See DESIGN.md for why there is no per-width unrolled SIMD assembly.
package kernel
