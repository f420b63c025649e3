package column

import (
	"fmt"

	"github.com/packdb/packdb/array"
	"github.com/packdb/packdb/internal/alloc"
	"github.com/packdb/packdb/internal/kernel"
)

// DefaultMaxLeafSize is the leaf element-count ceiling used when a Column is
// created without an explicit override.
const DefaultMaxLeafSize = 1000

// TreeInsert reports how a full node split during insertion, so the caller
// can splice the new sibling into its own child-ref/offset arrays at
// childIndex+1.
type TreeInsert struct {
	RightRef  uint64
	LeftSize  int
	RightSize int
}

// Column is a logically contiguous sequence of up to 2^63 elements,
// implemented as a B+-tree whose leaves are [array.Array] nodes. It is not
// itself safe for concurrent use.
type Column struct {
	alloc    *alloc.Allocator
	version  uint64
	maxLeaf  int
	nullable bool
	root     uint64
}

// New creates a Column with a single empty leaf as its root.
func New(a *alloc.Allocator, version uint64, maxLeaf int, nullable bool) (*Column, error) {
	if maxLeaf <= 0 {
		maxLeaf = DefaultMaxLeafSize
	}
	leaf, err := array.New(a, version, false, false, nullable)
	if err != nil {
		return nil, err
	}
	return &Column{alloc: a, version: version, maxLeaf: maxLeaf, nullable: nullable, root: leaf.Ref()}, nil
}

// Open binds a Column to an existing root ref (leaf or inner node).
func Open(a *alloc.Allocator, root uint64, version uint64, maxLeaf int, nullable bool) *Column {
	if maxLeaf <= 0 {
		maxLeaf = DefaultMaxLeafSize
	}
	return &Column{alloc: a, version: version, maxLeaf: maxLeaf, nullable: nullable, root: root}
}

// Nullable reports whether the column was created to hold nulls.
func (c *Column) Nullable() bool { return c.nullable }

// Width reports the root leaf's current bit width, or 0 if the root is an
// inner node — a multi-leaf column has no single width, since each leaf
// widens independently.
func (c *Column) Width() int {
	_, isInner, err := array.Peek(c.alloc, c.root)
	if err != nil || isInner {
		return 0
	}
	leaf, err := array.Open(c.alloc, c.root, c.version, c.nullable)
	if err != nil {
		return 0
	}
	return leaf.Width()
}

// Root returns the column's current root ref. It changes across any
// mutating call; a caller holding a parent slot (a table's column-ref array)
// must re-store it after every mutating call.
func (c *Column) Root() uint64 { return c.root }

// Size returns the total element count.
func (c *Column) Size() int {
	n, err := c.sizeOfRef(c.root)
	if err != nil {
		panic(fmt.Sprintf("column: corrupt tree: %v", err))
	}
	return n
}

func (c *Column) sizeOfRef(ref uint64) (int, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return 0, err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return 0, err
		}
		return leaf.Size(), nil
	}
	_, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return 0, err
	}
	if len(offsets) == 0 {
		return 0, nil
	}
	return int(offsets[len(offsets)-1]), nil
}

// Get returns the element at logical index i. Panics if i is out of range.
func (c *Column) Get(i int) int64 {
	if i < 0 || i >= c.Size() {
		panic(fmt.Sprintf("column: index %d out of range [0,%d)", i, c.Size()))
	}
	v, err := c.getFrom(c.root, i)
	if err != nil {
		panic(fmt.Sprintf("column: corrupt tree: %v", err))
	}
	return v
}

func (c *Column) getFrom(ref uint64, i int) (int64, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return 0, err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return 0, err
		}
		return leaf.Get(i), nil
	}
	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return 0, err
	}
	idx := upperBoundSlice(offsets, int64(i))
	local := i
	if idx > 0 {
		local = i - int(offsets[idx-1])
	}
	return c.getFrom(children[idx], local)
}

// IsNull reports whether the element at logical index i holds the
// nullable-array sentinel.
func (c *Column) IsNull(i int) bool {
	null, err := c.isNullFrom(c.root, i)
	if err != nil {
		panic(fmt.Sprintf("column: corrupt tree: %v", err))
	}
	return null
}

func (c *Column) isNullFrom(ref uint64, i int) (bool, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return false, err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return false, err
		}
		return leaf.IsNull(i), nil
	}
	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return false, err
	}
	idx := upperBoundSlice(offsets, int64(i))
	local := i
	if idx > 0 {
		local = i - int(offsets[idx-1])
	}
	return c.isNullFrom(children[idx], local)
}

// Set writes v at logical index i. Panics if i is out of range.
func (c *Column) Set(i int, v int64) error {
	if i < 0 || i >= c.Size() {
		panic(fmt.Sprintf("column: index %d out of range [0,%d)", i, c.Size()))
	}
	newRoot, err := c.setInto(c.root, i, v)
	if err != nil {
		return err
	}
	c.root = newRoot
	return nil
}

func (c *Column) setInto(ref uint64, i int, v int64) (uint64, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return 0, err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return 0, err
		}
		return leaf.Set(i, v)
	}
	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return 0, err
	}
	idx := upperBoundSlice(offsets, int64(i))
	local := i
	if idx > 0 {
		local = i - int(offsets[idx-1])
	}
	newChildRef, err := c.setInto(children[idx], local, v)
	if err != nil {
		return 0, err
	}
	if newChildRef == children[idx] {
		return ref, nil
	}
	children[idx] = newChildRef
	return c.buildInnerReplacing(ref, children, offsets)
}

// Insert shifts [i,Size()) right by one and writes v at i. i may equal
// Size() to append. Panics if i is out of range.
func (c *Column) Insert(i int, v int64) error {
	if i < 0 || i > c.Size() {
		panic(fmt.Sprintf("column: insert index %d out of range [0,%d]", i, c.Size()))
	}
	newRootRef, split, err := c.insertInto(c.root, i, v)
	if err != nil {
		return err
	}
	if split == nil {
		c.root = newRootRef
		return nil
	}
	newRoot, err := c.buildInner(
		[]uint64{newRootRef, split.RightRef},
		[]int64{int64(split.LeftSize), int64(split.LeftSize + split.RightSize)},
	)
	if err != nil {
		return err
	}
	c.root = newRoot
	return nil
}

func (c *Column) insertInto(ref uint64, i int, v int64) (uint64, *TreeInsert, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return 0, nil, err
	}
	if !isInner {
		return c.insertLeaf(ref, i, v)
	}
	return c.insertInner(ref, i, v)
}

func (c *Column) insertLeaf(ref uint64, i int, v int64) (uint64, *TreeInsert, error) {
	leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
	if err != nil {
		return 0, nil, err
	}
	if leaf.Size() < c.maxLeaf {
		newRef, err := leaf.Insert(i, v)
		return newRef, nil, err
	}

	full := spliceInsert(leafValues(leaf), i, v)
	mid := len(full) / 2
	leftVals, rightVals := full[:mid], full[mid:]

	leftLeaf, err := c.buildLeaf(leftVals)
	if err != nil {
		return 0, nil, err
	}
	rightLeaf, err := c.buildLeaf(rightVals)
	if err != nil {
		return 0, nil, err
	}
	leaf.Destroy(nil)

	return leftLeaf, &TreeInsert{RightRef: rightLeaf, LeftSize: len(leftVals), RightSize: len(rightVals)}, nil
}

func (c *Column) buildLeaf(values []int64) (uint64, error) {
	leaf, err := array.New(c.alloc, c.version, false, false, c.nullable)
	if err != nil {
		return 0, err
	}
	for idx, v := range values {
		if _, err := leaf.Insert(idx, v); err != nil {
			return 0, err
		}
	}
	return leaf.Ref(), nil
}

func (c *Column) insertInner(ref uint64, i int, v int64) (uint64, *TreeInsert, error) {
	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return 0, nil, err
	}
	k := len(children)
	idx := upperBoundSlice(offsets, int64(i))
	if idx >= k {
		idx = k - 1
	}
	local := i
	if idx > 0 {
		local = i - int(offsets[idx-1])
	}

	newChildRef, split, err := c.insertInto(children[idx], local, v)
	if err != nil {
		return 0, nil, err
	}

	if split == nil {
		children[idx] = newChildRef
		for j := idx; j < k; j++ {
			offsets[j]++
		}
		newRef, err := c.buildInnerReplacing(ref, children, offsets)
		return newRef, nil, err
	}

	prevCum := int64(0)
	if idx > 0 {
		prevCum = offsets[idx-1]
	}
	leftCum := prevCum + int64(split.LeftSize)
	rightCum := leftCum + int64(split.RightSize)

	newChildren := make([]uint64, 0, k+1)
	newChildren = append(newChildren, children[:idx]...)
	newChildren = append(newChildren, newChildRef, split.RightRef)
	newChildren = append(newChildren, children[idx+1:]...)

	newOffsets := make([]int64, 0, k+1)
	newOffsets = append(newOffsets, offsets[:idx]...)
	newOffsets = append(newOffsets, leftCum, rightCum)
	for j := idx + 1; j < k; j++ {
		newOffsets = append(newOffsets, offsets[j]+1)
	}

	if len(newChildren) <= c.maxLeaf {
		newRef, err := c.buildInnerReplacing(ref, newChildren, newOffsets)
		return newRef, nil, err
	}

	mid := len(newChildren) / 2
	leftChildren, rightChildren := newChildren[:mid], newChildren[mid:]
	leftOffsets := newOffsets[:mid]
	base := leftOffsets[mid-1]
	rightOffsets := make([]int64, len(newOffsets)-mid)
	for idx2, off := range newOffsets[mid:] {
		rightOffsets[idx2] = off - base
	}

	leftRef, err := c.buildInnerReplacing(ref, leftChildren, leftOffsets)
	if err != nil {
		return 0, nil, err
	}
	rightRef, err := c.buildInner(rightChildren, rightOffsets)
	if err != nil {
		return 0, nil, err
	}
	return leftRef, &TreeInsert{
		RightRef:  rightRef,
		LeftSize:  int(leftOffsets[len(leftOffsets)-1]),
		RightSize: int(rightOffsets[len(rightOffsets)-1]),
	}, nil
}

// Erase removes the half-open logical range [b,e). Empty leaves left behind
// are retained in place; only Clear (or Truncate to zero) collapses the
// tree.
func (c *Column) Erase(b, e int) error {
	size := c.Size()
	if b < 0 || e > size || b > e {
		panic(fmt.Sprintf("column: erase range [%d,%d) out of bounds for size %d", b, e, size))
	}
	for k := b; k < e; k++ {
		newRoot, err := c.eraseInto(c.root, b)
		if err != nil {
			return err
		}
		c.root = newRoot
	}
	return nil
}

func (c *Column) eraseInto(ref uint64, i int) (uint64, error) {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return 0, err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return 0, err
		}
		return leaf.Erase(i, i+1)
	}
	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return 0, err
	}
	idx := upperBoundSlice(offsets, int64(i))
	local := i
	if idx > 0 {
		local = i - int(offsets[idx-1])
	}
	newChildRef, err := c.eraseInto(children[idx], local)
	if err != nil {
		return 0, err
	}
	children[idx] = newChildRef
	for j := idx; j < len(offsets); j++ {
		offsets[j]--
	}
	return c.buildInnerReplacing(ref, children, offsets)
}

// Truncate erases [n, Size()). Truncating to zero collapses the whole tree
// to a single empty leaf; a partial truncate keeps the existing tree shape.
func (c *Column) Truncate(n int) error {
	if n == 0 {
		return c.Clear()
	}
	return c.Erase(n, c.Size())
}

// Clear discards every element and every tree node, resetting the column to
// a single empty leaf.
func (c *Column) Clear() error {
	if err := c.destroyRef(c.root); err != nil {
		return err
	}
	leaf, err := array.New(c.alloc, c.version, false, false, c.nullable)
	if err != nil {
		return err
	}
	c.root = leaf.Ref()
	return nil
}

func (c *Column) destroyRef(ref uint64) error {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return err
		}
		leaf.Destroy(nil)
		return nil
	}
	children, _, err := c.readInnerSlices(ref)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.destroyRef(child); err != nil {
			return err
		}
	}
	return c.freeSpine(ref)
}

// Find scans the logical range [start,end), applying cond/value against the
// scan kernel per leaf with a running base index so global indices come out
// directly in state.
func (c *Column) Find(cond kernel.Cond, value int64, start, end int, state *kernel.QueryState) {
	if start < 0 {
		start = 0
	}
	if size := c.Size(); end > size {
		end = size
	}
	if start >= end {
		return
	}
	if err := c.findIn(c.root, 0, start, end, cond, value, state); err != nil {
		panic(fmt.Sprintf("column: corrupt tree: %v", err))
	}
}

func (c *Column) findIn(ref uint64, base, start, end int, cond kernel.Cond, value int64, state *kernel.QueryState) error {
	_, isInner, err := array.Peek(c.alloc, ref)
	if err != nil {
		return err
	}
	if !isInner {
		leaf, err := array.Open(c.alloc, ref, c.version, c.nullable)
		if err != nil {
			return err
		}
		n := leaf.Size()
		lo, hi := start-base, end-base
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		if lo < hi {
			leaf.Find(cond, value, lo, hi, int64(base), state)
		}
		return nil
	}

	children, offsets, err := c.readInnerSlices(ref)
	if err != nil {
		return err
	}
	childBase := base
	for idx, child := range children {
		childSize := int(offsets[idx])
		if idx > 0 {
			childSize -= int(offsets[idx-1])
		}
		childEnd := childBase + childSize
		if childEnd > start && childBase < end {
			if err := c.findIn(child, childBase, start, end, cond, value, state); err != nil {
				return err
			}
			if isDone(state) {
				return nil
			}
		}
		childBase = childEnd
	}
	return nil
}

func isDone(state *kernel.QueryState) bool {
	if state.Action == kernel.ReturnFirst {
		return state.Found
	}
	if state.Limit >= 0 {
		return state.MatchCount >= state.Limit
	}
	return false
}

// readInnerSlices materializes an inner node's child-ref and cumulative
// offset arrays as plain Go slices.
func (c *Column) readInnerSlices(ref uint64) ([]uint64, []int64, error) {
	wrapper, err := array.Open(c.alloc, ref, c.version, false)
	if err != nil {
		return nil, nil, err
	}
	if wrapper.Size() != 2 {
		return nil, nil, fmt.Errorf("column: corrupt inner node %d: size %d, want 2", ref, wrapper.Size())
	}
	childRefsRef := uint64(wrapper.Get(0))
	offsetsRef := uint64(wrapper.Get(1))

	childRefsArr, err := array.Open(c.alloc, childRefsRef, c.version, false)
	if err != nil {
		return nil, nil, err
	}
	offsetsArr, err := array.Open(c.alloc, offsetsRef, c.version, false)
	if err != nil {
		return nil, nil, err
	}

	children := make([]uint64, childRefsArr.Size())
	for i := range children {
		children[i] = uint64(childRefsArr.Get(i))
	}
	offsets := make([]int64, offsetsArr.Size())
	for i := range offsets {
		offsets[i] = offsetsArr.Get(i)
	}
	return children, offsets, nil
}

// buildInner allocates a fresh inner node (child-ref array + offset array +
// their 2-element wrapper) from scratch.
func (c *Column) buildInner(children []uint64, offsets []int64) (uint64, error) {
	childRefsArr, err := array.New(c.alloc, c.version, true, false, false)
	if err != nil {
		return 0, err
	}
	for idx, child := range children {
		if _, err := childRefsArr.Insert(idx, int64(child)); err != nil {
			return 0, err
		}
	}

	offsetsArr, err := array.New(c.alloc, c.version, false, false, false)
	if err != nil {
		return 0, err
	}
	for idx, off := range offsets {
		if _, err := offsetsArr.Insert(idx, off); err != nil {
			return 0, err
		}
	}

	wrapper, err := array.New(c.alloc, c.version, true, true, false)
	if err != nil {
		return 0, err
	}
	if _, err := wrapper.Insert(0, int64(childRefsArr.Ref())); err != nil {
		return 0, err
	}
	wrapperRef, err := wrapper.Insert(1, int64(offsetsArr.Ref()))
	if err != nil {
		return 0, err
	}
	return wrapperRef, nil
}

// buildInnerReplacing builds a fresh inner node and frees the spine (not the
// children) of oldRef.
func (c *Column) buildInnerReplacing(oldRef uint64, children []uint64, offsets []int64) (uint64, error) {
	newRef, err := c.buildInner(children, offsets)
	if err != nil {
		return 0, err
	}
	if oldRef != 0 {
		if err := c.freeSpine(oldRef); err != nil {
			return 0, err
		}
	}
	return newRef, nil
}

// freeSpine frees an inner node's wrapper, child-ref array, and offset
// array, without touching the children the child-ref array points at.
func (c *Column) freeSpine(ref uint64) error {
	wrapper, err := array.Open(c.alloc, ref, c.version, false)
	if err != nil {
		return err
	}
	childRefsRef := uint64(wrapper.Get(0))
	offsetsRef := uint64(wrapper.Get(1))

	childRefsArr, err := array.Open(c.alloc, childRefsRef, c.version, false)
	if err != nil {
		return err
	}
	childRefsArr.Destroy(nil)

	offsetsArr, err := array.Open(c.alloc, offsetsRef, c.version, false)
	if err != nil {
		return err
	}
	offsetsArr.Destroy(nil)

	wrapper.Destroy(nil)
	return nil
}

func leafValues(leaf *array.Array) []int64 {
	n := leaf.Size()
	vs := make([]int64, n)
	for i := range vs {
		vs[i] = leaf.Get(i)
	}
	return vs
}

func spliceInsert(vs []int64, i int, v int64) []int64 {
	out := make([]int64, 0, len(vs)+1)
	out = append(out, vs[:i]...)
	out = append(out, v)
	out = append(out, vs[i:]...)
	return out
}

// upperBoundSlice returns the smallest index idx such that offsets[idx] > v,
// or len(offsets) if none (offsets is non-decreasing).
func upperBoundSlice(offsets []int64, v int64) int {
	lo, hi := 0, len(offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		if offsets[mid] <= v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
