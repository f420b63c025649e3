package pagecodec

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm selects the page compression scheme.
type Algorithm uint8

const (
	// None stores pages verbatim.
	None Algorithm = 0
	// LZ4 favors encode/decode speed over ratio, for hot pages.
	LZ4 Algorithm = 1
	// ZSTD favors ratio over speed, for cold pages headed for long-term
	// storage.
	ZSTD Algorithm = 2
)

// headerSize is [Algorithm byte][UncompressedSize uint32][CompressedSize uint32].
const headerSize = 9

var errPageTooSmall = errors.New("pagecodec: encoded page smaller than header")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) { zstdEncoderPool.Put(enc) }

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) { zstdDecoderPool.Put(dec) }

// Encode compresses page with algo and returns the on-disk representation:
// a fixed header followed by the (possibly incompressible, in which case
// stored verbatim) payload. algo == None writes the header with a
// zero-length compressed payload flag and copies page through unchanged.
func Encode(page []byte, algo Algorithm) ([]byte, error) {
	if algo == None || len(page) == 0 {
		out := make([]byte, headerSize+len(page))
		out[0] = byte(None)
		binary.LittleEndian.PutUint32(out[1:], uint32(len(page)))
		binary.LittleEndian.PutUint32(out[5:], 0)
		copy(out[headerSize:], page)
		return out, nil
	}

	var compressed []byte
	var err error
	switch algo {
	case LZ4:
		compressed, err = encodeLZ4(page)
	case ZSTD:
		compressed, err = encodeZSTD(page)
	default:
		return nil, errors.New("pagecodec: unknown algorithm")
	}
	if err != nil {
		return nil, err
	}

	// If compression barely helps, store verbatim rather than pay the
	// decode cost for a negligible size win.
	if compressed == nil || float64(len(compressed)) > float64(len(page))*0.9 {
		out := make([]byte, headerSize+len(page))
		out[0] = byte(None)
		binary.LittleEndian.PutUint32(out[1:], uint32(len(page)))
		binary.LittleEndian.PutUint32(out[5:], 0)
		copy(out[headerSize:], page)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	out[0] = byte(algo)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(page)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decode reverses Encode, returning the original page bytes.
func Decode(encoded []byte) ([]byte, error) {
	if len(encoded) < headerSize {
		return nil, errPageTooSmall
	}
	algo := Algorithm(encoded[0])
	uncompressedSize := binary.LittleEndian.Uint32(encoded[1:])
	compressedSize := binary.LittleEndian.Uint32(encoded[5:])

	if compressedSize == 0 {
		if uint32(len(encoded)) < headerSize+uncompressedSize {
			return nil, errors.New("pagecodec: page data truncated")
		}
		return encoded[headerSize : headerSize+uncompressedSize], nil
	}

	if uint32(len(encoded)) < headerSize+compressedSize {
		return nil, errors.New("pagecodec: compressed page data truncated")
	}
	payload := encoded[headerSize : headerSize+compressedSize]
	out := make([]byte, uncompressedSize)

	switch algo {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("pagecodec: lz4 decompressed size mismatch")
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, errors.New("pagecodec: zstd decompressed size mismatch")
		}
		return decoded, nil
	default:
		return nil, errors.New("pagecodec: unknown algorithm in header")
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func encodeZSTD(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(data, nil), nil
}
