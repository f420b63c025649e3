package array

import "math"

// HeaderSize is the fixed 8-byte node header preceding every array's
// payload.
const HeaderSize = 8

// WidthType distinguishes how the width-code field is interpreted.
type WidthType uint8

const (
	// WidthTypeBits means the width-code selects a bit width from
	// widthTable and elements are bit-packed.
	WidthTypeBits WidthType = iota
	// WidthTypeMultiply means the width-code selects a byte width and
	// elements are byte-aligned. No node is currently written with it; ref
	// and offset arrays use WidthTypeBits like every other node.
	WidthTypeMultiply
	// WidthTypeIgnore means size is a byte length rather than an element
	// count (reserved for future blob-shaped nodes).
	WidthTypeIgnore
)

// widthTable maps a 3-bit width-code to its bit width.
var widthTable = [8]int{0, 1, 2, 4, 8, 16, 32, 64}

func widthCodeFor(width int) uint8 {
	for i, w := range widthTable {
		if w == width {
			return uint8(i)
		}
	}
	panic("array: unsupported width")
}

// header is the decoded form of a node's 8-byte header.
type header struct {
	widthType   WidthType
	hasRefs     bool
	contextFlag bool
	widthCode   uint8
	size        int // element count
	capacity    int // allocated byte size including the header
}

func (h header) width() int { return widthTable[h.widthCode] }

// decodeHeader reads a node header from the first HeaderSize bytes of node.
func decodeHeader(node []byte) header {
	b0 := node[0]
	size := uint32(node[1]) | uint32(node[2])<<8 | uint32(node[3])<<16
	capacity := uint32(node[4]) | uint32(node[5])<<8 | uint32(node[6])<<16

	return header{
		widthType:   WidthType(b0 & 0x3),
		hasRefs:     b0&0x4 != 0,
		contextFlag: b0&0x8 != 0,
		widthCode:   (b0 >> 4) & 0x7,
		size:        int(size),
		capacity:    int(capacity),
	}
}

// encodeHeader writes h into the first HeaderSize bytes of node.
func encodeHeader(node []byte, h header) {
	b0 := byte(h.widthType&0x3) | byte(boolBit(h.hasRefs))<<2 | byte(boolBit(h.contextFlag))<<3 | (h.widthCode&0x7)<<4
	node[0] = b0
	node[1] = byte(h.size)
	node[2] = byte(h.size >> 8)
	node[3] = byte(h.size >> 16)
	node[4] = byte(h.capacity)
	node[5] = byte(h.capacity >> 8)
	node[6] = byte(h.capacity >> 16)
	node[7] = 0
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// bounds returns the signed integer range representable in width bits.
func bounds(width int) (lo, hi int64) {
	switch width {
	case 0:
		return 0, 0
	case 64:
		return math.MinInt64, math.MaxInt64
	default:
		hi = int64(1)<<(uint(width)-1) - 1
		lo = -hi - 1
		return lo, hi
	}
}

// nextWidth returns the smallest supported width strictly greater than
// current that can represent v.
func nextWidth(current int, v int64) int {
	for _, w := range widthTable {
		if w <= current {
			continue
		}
		lo, hi := bounds(w)
		if v >= lo && v <= hi {
			return w
		}
	}
	return 64
}

// widthForValues returns the smallest width at least as wide as floor,
// able to represent every value in vs.
func widthForValues(vs []int64, floor int) int {
	width := floor
	for _, v := range vs {
		lo, hi := bounds(width)
		for v < lo || v > hi {
			width = nextWidth(width, v)
			lo, hi = bounds(width)
		}
	}
	return width
}

// payloadBytes returns the number of bytes needed to hold count elements of
// width bits.
func payloadBytes(width, count int) int {
	bits := width * count
	return (bits + 7) / 8
}

func getField(payload []byte, index, width int) uint64 {
	if width == 0 {
		return 0
	}
	if width >= 8 {
		bytePos := index * (width / 8)
		switch width {
		case 8:
			return uint64(payload[bytePos])
		case 16:
			return uint64(payload[bytePos]) | uint64(payload[bytePos+1])<<8
		case 32:
			return uint64(payload[bytePos]) | uint64(payload[bytePos+1])<<8 |
				uint64(payload[bytePos+2])<<16 | uint64(payload[bytePos+3])<<24
		case 64:
			var v uint64
			for i := 0; i < 8; i++ {
				v |= uint64(payload[bytePos+i]) << (8 * i)
			}
			return v
		}
	}

	bitPos := index * width
	bytePos := bitPos / 8
	bitOffset := uint(bitPos % 8)

	var buf uint16
	buf = uint16(payload[bytePos])
	if bytePos+1 < len(payload) {
		buf |= uint16(payload[bytePos+1]) << 8
	}
	mask := uint16(1)<<uint(width) - 1
	return uint64((buf >> bitOffset) & mask)
}

func setField(payload []byte, index, width int, raw uint64) {
	if width == 0 {
		return
	}
	if width >= 8 {
		bytePos := index * (width / 8)
		switch width {
		case 8:
			payload[bytePos] = byte(raw)
		case 16:
			payload[bytePos] = byte(raw)
			payload[bytePos+1] = byte(raw >> 8)
		case 32:
			payload[bytePos] = byte(raw)
			payload[bytePos+1] = byte(raw >> 8)
			payload[bytePos+2] = byte(raw >> 16)
			payload[bytePos+3] = byte(raw >> 24)
		case 64:
			for i := 0; i < 8; i++ {
				payload[bytePos+i] = byte(raw >> (8 * i))
			}
		}
		return
	}

	bitPos := index * width
	bytePos := bitPos / 8
	bitOffset := uint(bitPos % 8)
	mask := uint16(1)<<uint(width) - 1

	var buf uint16
	buf = uint16(payload[bytePos])
	hasSecond := bytePos+1 < len(payload)
	if hasSecond {
		buf |= uint16(payload[bytePos+1]) << 8
	}
	buf = (buf &^ (mask << bitOffset)) | (uint16(raw)&mask)<<bitOffset
	payload[bytePos] = byte(buf)
	if hasSecond {
		payload[bytePos+1] = byte(buf >> 8)
	}
}

// signExtend interprets the width-bit unsigned pattern raw as a signed
// value.
func signExtend(raw uint64, width int) int64 {
	if width == 0 {
		return 0
	}
	if width == 64 {
		return int64(raw)
	}
	signBit := uint64(1) << (uint(width) - 1)
	if raw&signBit != 0 {
		return int64(raw) - int64(signBit)<<1
	}
	return int64(raw)
}

// truncateToWidth returns the width-bit two's-complement bit pattern of v.
func truncateToWidth(v int64, width int) uint64 {
	if width == 0 {
		return 0
	}
	if width == 64 {
		return uint64(v)
	}
	mask := uint64(1)<<uint(width) - 1
	return uint64(v) & mask
}
