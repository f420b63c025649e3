package array

import (
	"fmt"

	"github.com/packdb/packdb/internal/alloc"
	"github.com/packdb/packdb/internal/kernel"
)

// Array is a stateful accessor over one bit-packed node. It is not itself
// safe for concurrent use; callers serialize access the way they serialize
// access to any single write-transaction-scoped object.
type Array struct {
	alloc   *alloc.Allocator
	ref     uint64
	version uint64

	hasRefs     bool
	contextFlag bool
	nullable    bool
}

// New allocates a fresh, empty array node.
func New(a *alloc.Allocator, version uint64, hasRefs, contextFlag, nullable bool) (*Array, error) {
	ar := &Array{alloc: a, version: version, hasRefs: hasRefs, contextFlag: contextFlag, nullable: nullable}

	ref, node, err := a.Alloc(HeaderSize)
	if err != nil {
		return nil, err
	}
	encodeHeader(node, header{
		widthType:   WidthTypeBits,
		hasRefs:     hasRefs,
		contextFlag: contextFlag,
		widthCode:   0,
		size:        0,
		capacity:    HeaderSize,
	})
	ar.ref = ref

	if nullable {
		// Reserve the sentinel slot (physical index 0) with a fixed null
		// marker value of 0; logical size starts at 0.
		newRef, err := ar.rebuild(0, []int64{0})
		if err != nil {
			return nil, err
		}
		ar.ref = newRef
	}
	return ar, nil
}

// Open binds an accessor to an existing node ref.
func Open(a *alloc.Allocator, ref uint64, version uint64, nullable bool) (*Array, error) {
	h, err := readHeader(a, ref)
	if err != nil {
		return nil, err
	}
	return &Array{
		alloc:       a,
		ref:         ref,
		version:     version,
		hasRefs:     h.hasRefs,
		contextFlag: h.contextFlag,
		nullable:    nullable,
	}, nil
}

// Peek reads a node's header flags without binding a full accessor to it,
// letting a caller such as column decide whether ref is a leaf or a B+-tree
// inner node before choosing how to open it.
func Peek(a *alloc.Allocator, ref uint64) (hasRefs, contextFlag bool, err error) {
	h, err := readHeader(a, ref)
	if err != nil {
		return false, false, err
	}
	return h.hasRefs, h.contextFlag, nil
}

func readHeader(a *alloc.Allocator, ref uint64) (header, error) {
	raw, err := a.Translate(ref, HeaderSize)
	if err != nil {
		return header{}, err
	}
	return decodeHeader(raw), nil
}

func (ar *Array) header() header {
	h, err := readHeader(ar.alloc, ar.ref)
	if err != nil {
		panic(fmt.Sprintf("array: corrupt ref %d: %v", ar.ref, err))
	}
	return h
}

func (ar *Array) node(h header) []byte {
	data, err := ar.alloc.Translate(ar.ref, h.capacity)
	if err != nil {
		panic(fmt.Sprintf("array: corrupt ref %d: %v", ar.ref, err))
	}
	return data
}

// Ref returns the accessor's current node ref. It changes across any
// mutating call that widens, resizes, or copy-on-writes the node; callers
// holding a parent slot must re-store it after every mutating call.
func (ar *Array) Ref() uint64 { return ar.ref }

// Width returns the current bit width per element.
func (ar *Array) Width() int { return ar.header().width() }

// HasRefs reports whether payload entries are refs.
func (ar *Array) HasRefs() bool { return ar.hasRefs }

// ContextFlag reports the node's type-specific context bit (set on B+-tree
// inner nodes).
func (ar *Array) ContextFlag() bool { return ar.contextFlag }

// PhysicalSize returns the raw element count stored in the header,
// including the nullable-array sentinel slot if present.
func (ar *Array) PhysicalSize() int { return ar.header().size }

// Size returns the logical element count (excluding the nullable sentinel).
func (ar *Array) Size() int {
	p := ar.header().size
	if !ar.nullable {
		return p
	}
	if p == 0 {
		return 0
	}
	return p - 1
}

func (ar *Array) physicalIndex(i int) int {
	if ar.nullable {
		return i + 1
	}
	return i
}

func (ar *Array) getPhysical(h header, node []byte, physIdx int) int64 {
	raw := getField(node[HeaderSize:], physIdx, h.width())
	return signExtend(raw, h.width())
}

// Sentinel returns the null-marker value for a nullable array (physical
// index 0). It panics if the array is not nullable.
func (ar *Array) Sentinel() int64 {
	if !ar.nullable {
		panic("array: Sentinel called on non-nullable array")
	}
	h := ar.header()
	return ar.getPhysical(h, ar.node(h), 0)
}

// IsNull reports whether logical index i currently holds the nullable
// sentinel value.
func (ar *Array) IsNull(i int) bool {
	if !ar.nullable {
		return false
	}
	h := ar.header()
	node := ar.node(h)
	return ar.getPhysical(h, node, i+1) == ar.getPhysical(h, node, 0)
}

// Get returns the element at logical index i. It panics if i is out of
// range, matching Go slice-indexing convention.
func (ar *Array) Get(i int) int64 {
	h := ar.header()
	if i < 0 || i >= ar.logicalSizeFromHeader(h) {
		panic(fmt.Sprintf("array: index %d out of range [0,%d)", i, ar.logicalSizeFromHeader(h)))
	}
	return ar.getPhysical(h, ar.node(h), ar.physicalIndex(i))
}

func (ar *Array) logicalSizeFromHeader(h header) int {
	if !ar.nullable {
		return h.size
	}
	if h.size == 0 {
		return 0
	}
	return h.size - 1
}

// readAllPhysical materializes every physical element as signed values,
// sentinel included when nullable.
func (ar *Array) readAllPhysical() (header, []int64) {
	h := ar.header()
	node := ar.node(h)
	vs := make([]int64, h.size)
	for i := range vs {
		vs[i] = ar.getPhysical(h, node, i)
	}
	return h, vs
}

// rebuild allocates a fresh node of the given width holding values
// (physical layout, sentinel included if nullable), copy-on-writing away
// from ar.ref. The old ref is scheduled for reclamation.
func (ar *Array) rebuild(width int, values []int64) (uint64, error) {
	nodeCap := HeaderSize + payloadBytes(width, len(values))
	newRef, node, err := ar.alloc.Alloc(nodeCap)
	if err != nil {
		return 0, err
	}
	encodeHeader(node, header{
		widthType:   WidthTypeBits,
		hasRefs:     ar.hasRefs,
		contextFlag: ar.contextFlag,
		widthCode:   widthCodeFor(width),
		size:        len(values),
		capacity:    nodeCap,
	})
	payload := node[HeaderSize:]
	for i, v := range values {
		setField(payload, i, width, truncateToWidth(v, width))
	}

	if ar.ref != 0 {
		old := ar.header()
		ar.alloc.Free(ar.ref, old.capacity, ar.version)
	}
	ar.ref = newRef
	return newRef, nil
}

// Set writes v at logical index i, mutating in place when the node is
// writable and v fits the current width, and copy-on-writing or widening
// otherwise. It panics if i is out of range.
func (ar *Array) Set(i int, v int64) (uint64, error) {
	h := ar.header()
	if i < 0 || i >= ar.logicalSizeFromHeader(h) {
		panic(fmt.Sprintf("array: index %d out of range [0,%d)", i, ar.logicalSizeFromHeader(h)))
	}

	width := h.width()
	lo, hi := bounds(width)
	if v < lo || v > hi {
		_, vs := ar.readAllPhysical()
		vs[ar.physicalIndex(i)] = v
		newWidth := widthForValues(vs, nextWidth(width, v))
		return ar.rebuild(newWidth, vs)
	}

	if ar.alloc.IsReadOnly(ar.ref) {
		_, vs := ar.readAllPhysical()
		vs[ar.physicalIndex(i)] = v
		return ar.rebuild(width, vs)
	}

	node := ar.node(h)
	setField(node[HeaderSize:], ar.physicalIndex(i), width, truncateToWidth(v, width))
	return ar.ref, nil
}

// EnsureMinimumWidth widens the array, if necessary, so that v can be
// stored without a subsequent widen. It is a no-op if v already fits.
func (ar *Array) EnsureMinimumWidth(v int64) (uint64, error) {
	h := ar.header()
	width := h.width()
	lo, hi := bounds(width)
	if v >= lo && v <= hi {
		return ar.ref, nil
	}
	_, vs := ar.readAllPhysical()
	newWidth := widthForValues(vs, nextWidth(width, v))
	return ar.rebuild(newWidth, vs)
}

// Insert shifts [i,size) right by one and writes v at i. i may equal Size()
// to append.
func (ar *Array) Insert(i int, v int64) (uint64, error) {
	h, vs := ar.readAllPhysical()
	logical := ar.logicalSizeFromHeader(h)
	if i < 0 || i > logical {
		panic(fmt.Sprintf("array: insert index %d out of range [0,%d]", i, logical))
	}
	p := ar.physicalIndex(i)

	next := make([]int64, 0, len(vs)+1)
	next = append(next, vs[:p]...)
	next = append(next, v)
	next = append(next, vs[p:]...)

	width := widthForValues(next, h.width())
	return ar.rebuild(width, next)
}

// Erase removes the half-open logical range [b,e).
func (ar *Array) Erase(b, e int) (uint64, error) {
	h, vs := ar.readAllPhysical()
	logical := ar.logicalSizeFromHeader(h)
	if b < 0 || e > logical || b > e {
		panic(fmt.Sprintf("array: erase range [%d,%d) out of bounds for size %d", b, e, logical))
	}
	pb, pe := ar.physicalIndex(b), ar.physicalIndex(e)

	next := make([]int64, 0, len(vs)-(pe-pb))
	next = append(next, vs[:pb]...)
	next = append(next, vs[pe:]...)

	return ar.rebuild(h.width(), next) // never narrow
}

// Truncate erases [n, Size()).
func (ar *Array) Truncate(n int) (uint64, error) {
	return ar.Erase(n, ar.Size())
}

// Move block-copies the logical range [b,e) to start at dest, without
// changing size. dest must not lie strictly within (b,e).
func (ar *Array) Move(b, e, dest int) (uint64, error) {
	if dest > b && dest < e {
		panic("array: move destination overlaps source range")
	}
	h, vs := ar.readAllPhysical()
	logical := ar.logicalSizeFromHeader(h)
	if b < 0 || e > logical || b > e || dest < 0 || dest+(e-b) > logical {
		panic("array: move range out of bounds")
	}
	pb, pe, pd := ar.physicalIndex(b), ar.physicalIndex(e), ar.physicalIndex(dest)

	segment := append([]int64(nil), vs[pb:pe]...)
	copy(vs[pd:pd+(pe-pb)], segment)

	return ar.rebuild(h.width(), vs)
}

// Adjust adds d to every element in the logical range [b,e), widening if
// any result overflows the current width.
func (ar *Array) Adjust(b, e int, d int64) (uint64, error) {
	h, vs := ar.readAllPhysical()
	logical := ar.logicalSizeFromHeader(h)
	if b < 0 || e > logical || b > e {
		panic("array: adjust range out of bounds")
	}
	pb, pe := ar.physicalIndex(b), ar.physicalIndex(e)
	for i := pb; i < pe; i++ {
		vs[i] += d
	}
	width := widthForValues(vs, h.width())
	return ar.rebuild(width, vs)
}

// AdjustGE adds d to every element (logical) whose current value is >=
// limit.
func (ar *Array) AdjustGE(limit, d int64) (uint64, error) {
	h, vs := ar.readAllPhysical()
	start := 0
	if ar.nullable {
		start = 1
	}
	for i := start; i < len(vs); i++ {
		if vs[i] >= limit {
			vs[i] += d
		}
	}
	width := widthForValues(vs, h.width())
	return ar.rebuild(width, vs)
}

// LowerBound returns the smallest logical index i such that Get(i) >= v,
// assuming the array is sorted ascending. Returns Size() if none.
func (ar *Array) LowerBound(v int64) int {
	lo, hi := 0, ar.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if ar.Get(mid) < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpperBound returns the smallest logical index i such that Get(i) > v,
// assuming the array is sorted ascending. Returns Size() if none.
func (ar *Array) UpperBound(v int64) int {
	lo, hi := 0, ar.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if ar.Get(mid) <= v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Find runs the scan kernel over the logical range [start,end), reporting
// global indices offset by baseIndex into state.
func (ar *Array) Find(cond kernel.Cond, value int64, start, end int, baseIndex int64, state *kernel.QueryState) {
	h := ar.header()
	node := ar.node(h)
	width := h.width()
	lo, hi := bounds(width)

	var isNull func(int) bool
	if ar.nullable {
		sentinel := ar.getPhysical(h, node, 0)
		isNull = func(i int) bool { return ar.getPhysical(h, node, ar.physicalIndex(i)) == sentinel }
	}

	if width == 8 {
		physBase := ar.physicalIndex(0)
		kernel.FindBytePacked(node[HeaderSize:], physBase, isNull, lo, hi, cond, value, start, end, ar.logicalSizeFromHeader(h), baseIndex, state)
		return
	}

	get := func(i int) int64 { return ar.getPhysical(h, node, ar.physicalIndex(i)) }
	kernel.Find(ar.logicalSizeFromHeader(h), get, isNull, lo, hi, cond, value, start, end, baseIndex, state)
}

// Destroy frees the node itself, and if HasRefs is set, every non-zero,
// non-tagged payload entry as a child ref first.
func (ar *Array) Destroy(freeChild func(ref uint64)) {
	h := ar.header()
	if ar.hasRefs && freeChild != nil {
		node := ar.node(h)
		for i := 0; i < h.size; i++ {
			raw := getField(node[HeaderSize:], i, h.width())
			if raw == 0 || raw&1 == 1 { // null or tagged integer
				continue
			}
			freeChild(raw)
		}
	}
	ar.alloc.Free(ar.ref, h.capacity, ar.version)
}
