package kernel

import "github.com/packdb/packdb/internal/simd"

// Cond is a scan comparison operator.
type Cond int

const (
	Equal Cond = iota
	NotEqual
	Less
	Greater
	LessEqual
	GreaterEqual
)

func (c Cond) String() string {
	switch c {
	case Equal:
		return "Equal"
	case NotEqual:
		return "NotEqual"
	case Less:
		return "Less"
	case Greater:
		return "Greater"
	case LessEqual:
		return "LessEqual"
	case GreaterEqual:
		return "GreaterEqual"
	default:
		return "Cond(unknown)"
	}
}

// Action selects what the kernel does with each match.
type Action int

const (
	ReturnFirst Action = iota
	FindAll
	Count
	Sum
	Min
	Max
	CallbackPerMatch
)

// Collector receives match indices for the FindAll action. internal/matchset
// implements it over a roaring.Bitmap so match sets stay proportional to the
// number of matches rather than the number of rows scanned.
type Collector interface {
	Add(index int64)
}

// QueryState is the tagged accumulator threaded through a scan. Exactly one
// group of fields is meaningful per Action.
type QueryState struct {
	Action Action

	// Limit bounds the number of matches recorded before the scan stops
	// early. A negative Limit means unlimited.
	Limit int64

	MatchCount int64

	Collector Collector // FindAll

	Sum int64 // Sum

	HasMin   bool
	Min      int64
	MinIndex int64 // Min

	HasMax   bool
	Max      int64
	MaxIndex int64 // Max

	Found      bool
	FirstIndex int64 // ReturnFirst

	// Callback is invoked for CallbackPerMatch with the global match index;
	// returning false stops the scan early.
	Callback func(index int64) bool

	// FindNull, when set, additionally matches the nullable-array sentinel
	// regardless of Cond.
	FindNull bool
}

// NewQueryState returns a QueryState ready to accumulate for action, with an
// unlimited match budget.
func NewQueryState(action Action) *QueryState {
	return &QueryState{Action: action, Limit: -1, FirstIndex: -1, MinIndex: -1, MaxIndex: -1}
}

// record applies one match to the accumulator. It returns false when the
// scan should stop (limit reached, ReturnFirst satisfied, or the callback
// asked to stop).
func (s *QueryState) record(index, value int64) bool {
	switch s.Action {
	case Count:
		s.MatchCount++
	case Sum:
		s.Sum += value
		s.MatchCount++
	case Min:
		if !s.HasMin || value < s.Min {
			s.HasMin, s.Min, s.MinIndex = true, value, index
		}
		s.MatchCount++
	case Max:
		if !s.HasMax || value > s.Max {
			s.HasMax, s.Max, s.MaxIndex = true, value, index
		}
		s.MatchCount++
	case ReturnFirst:
		s.Found, s.FirstIndex = true, index
		return false
	case FindAll:
		if s.Collector != nil {
			s.Collector.Add(index)
		}
		s.MatchCount++
	case CallbackPerMatch:
		s.MatchCount++
		if s.Callback != nil && !s.Callback(index) {
			return false
		}
	}
	if s.Limit >= 0 && s.MatchCount >= s.Limit {
		return false
	}
	return true
}

func matches(cond Cond, v, value int64) bool {
	switch cond {
	case Equal:
		return v == value
	case NotEqual:
		return v != value
	case Less:
		return v < value
	case Greater:
		return v > value
	case LessEqual:
		return v <= value
	case GreaterEqual:
		return v >= value
	default:
		return false
	}
}

// CanMatch reports whether it is possible for any value in [lbound, ubound]
// to satisfy cond against value. A false result means the whole node
// provably has no match and its scan may be skipped entirely.
func CanMatch(cond Cond, value, lbound, ubound int64) bool {
	switch cond {
	case Equal:
		return value >= lbound && value <= ubound
	case NotEqual:
		return !(lbound == ubound && lbound == value)
	case Less:
		return lbound < value
	case Greater:
		return ubound > value
	case LessEqual:
		return lbound <= value
	case GreaterEqual:
		return ubound >= value
	default:
		return true
	}
}

// WillMatch reports whether every value in [lbound, ubound] is guaranteed to
// satisfy cond against value, letting the caller apply a fast path (e.g. for
// Count) without visiting each element.
func WillMatch(cond Cond, value, lbound, ubound int64) bool {
	switch cond {
	case Equal:
		return lbound == ubound && lbound == value
	case NotEqual:
		return value < lbound || value > ubound
	case Less:
		return value > ubound
	case Greater:
		return value < lbound
	case LessEqual:
		return value >= ubound
	case GreaterEqual:
		return value <= lbound
	default:
		return false
	}
}

// CompareLeafs scans two accessors in lockstep over [start, end), recording
// each index where get(i) cond otherGet(i) to state. A row where either side
// is null never matches, regardless of cond. Unlike Find, there is no shared
// value range to run CanMatch/WillMatch against — the two sides can differ
// per row — so every row in range is visited; this mirrors Realm's
// query_engine.hpp compare_leafs, the column-to-column counterpart of its
// single-column compare loop.
func CompareLeafs(get, otherGet func(i int) int64, isNull, otherIsNull func(i int) bool, cond Cond, start, end int, baseIndex int64, state *QueryState) {
	for i := start; i < end; i++ {
		if (isNull != nil && isNull(i)) || (otherIsNull != nil && otherIsNull(i)) {
			continue
		}
		v := get(i)
		if !matches(cond, v, otherGet(i)) {
			continue
		}
		if !state.record(baseIndex+int64(i), v) {
			return
		}
	}
}

// loByteMask and hiByteMask are the classic Bit Twiddling Hacks "has byte n"
// constants: one bit in the LSB / MSB position of every 8-bit lane.
const (
	loByteMask = 0x0101010101010101
	hiByteMask = 0x8080808080808080
)

// eqByteMask sets the high bit of every byte lane in word equal to b, zero
// elsewhere.
func eqByteMask(word uint64, b byte) uint64 {
	bc := uint64(b) * loByteMask
	x := word ^ bc
	y := (x &^ hiByteMask) + ^uint64(hiByteMask)
	return ^(y | x | ^uint64(hiByteMask))
}

// wideBlockWords returns how many 64-bit words FindBytePacked's Equal fast
// path processes per iteration: two (a 128-bit block) when the platform
// reports SSE4.2 per spec.md §4.2, one otherwise.
func wideBlockWords() int {
	if simd.HasSSE42() {
		return 2
	}
	return 1
}

// scanEqualBytes records every index in [start,end) where payload[physBase+i]
// == target, walking the payload in wideBlockWords()-sized groups of 64-bit
// words and using eqByteMask to test a whole word for candidate bytes before
// examining any of them individually. isNull, when non-nil, is only consulted
// for bytes the mask actually flags, so it costs nothing on a non-matching
// block.
func scanEqualBytes(payload []byte, physBase int, isNull func(int) bool, target byte, start, end int, baseIndex int64, state *QueryState) {
	words := wideBlockWords()
	blockBytes := words * 8
	i := start
	for i+blockBytes <= end {
		for w := 0; w < words; w++ {
			off := physBase + i + w*8
			var word uint64
			for k := 0; k < 8; k++ {
				word |= uint64(payload[off+k]) << (8 * k)
			}
			mask := eqByteMask(word, target)
			if mask == 0 {
				continue
			}
			for k := 0; k < 8; k++ {
				if mask&(uint64(0x80)<<(8*k)) == 0 {
					continue
				}
				idx := i + w*8 + k
				if isNull != nil && isNull(idx) {
					continue
				}
				if !state.record(baseIndex+int64(idx), int64(int8(target))) {
					return
				}
			}
		}
		i += blockBytes
	}
	for ; i < end; i++ {
		if payload[physBase+i] != target {
			continue
		}
		if isNull != nil && isNull(i) {
			continue
		}
		if !state.record(baseIndex+int64(i), int64(int8(target))) {
			return
		}
	}
}

// FindBytePacked is Find's width-8 (one byte per element) specialization: the
// payload is walked directly as a byte slice instead of through an accessor
// closure, so an Equal query can run scanEqualBytes's word-at-a-time bithack
// scan instead of a per-element switch. physBase offsets logical index 0 to
// its byte position (1 for a nullable array, whose sentinel occupies byte 0;
// 0 otherwise). Other conditions fall back to a byte-at-a-time scalar loop.
func FindBytePacked(payload []byte, physBase int, isNull func(i int) bool, lbound, ubound int64, cond Cond, value int64, start, end, n int, baseIndex int64, state *QueryState) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return
	}

	if !state.FindNull && !CanMatch(cond, value, lbound, ubound) {
		return
	}

	if state.Action == Count && !state.FindNull && isNull == nil && WillMatch(cond, value, lbound, ubound) {
		state.MatchCount += int64(end - start)
		return
	}

	if cond == Equal && !state.FindNull {
		scanEqualBytes(payload, physBase, isNull, byte(value), start, end, baseIndex, state)
		return
	}

	for i := start; i < end; i++ {
		null := isNull != nil && isNull(i)
		v := int64(int8(payload[physBase+i]))

		matched := false
		switch {
		case null && state.FindNull:
			matched = true
		case null:
			matched = false
		default:
			matched = matches(cond, v, value)
		}

		if !matched {
			continue
		}
		if !state.record(baseIndex+int64(i), v) {
			return
		}
	}
}

// Find scans get(start)..get(end-1), reporting each index (baseIndex+i) that
// satisfies cond against value to state. lbound/ubound are the node's value
// range (its width's signed bounds, or a tighter known range) and gate the
// CanMatch/WillMatch pre-tests; pass the width's bounds when no tighter
// range is known.
func Find(n int, get func(i int) int64, isNull func(i int) bool, lbound, ubound int64, cond Cond, value int64, start, end int, baseIndex int64, state *QueryState) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return
	}

	if !state.FindNull && !CanMatch(cond, value, lbound, ubound) {
		return
	}

	if state.Action == Count && !state.FindNull && isNull == nil && WillMatch(cond, value, lbound, ubound) {
		state.MatchCount += int64(end - start)
		return
	}

	for i := start; i < end; i++ {
		null := isNull != nil && isNull(i)
		v := get(i)

		matched := false
		switch {
		case null && state.FindNull:
			matched = true
		case null:
			matched = false
		default:
			matched = matches(cond, v, value)
		}

		if !matched {
			continue
		}
		if !state.record(baseIndex+int64(i), v) {
			return
		}
	}
}
