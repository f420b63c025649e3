package pagecodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatingPage(n int) []byte {
	page := make([]byte, n)
	for i := range page {
		page[i] = byte(i % 7)
	}
	return page
}

func randomishPage(n int) []byte {
	page := make([]byte, n)
	x := uint32(12345)
	for i := range page {
		x = x*1664525 + 1013904223
		page[i] = byte(x >> 24)
	}
	return page
}

func TestPagecodec_NoneRoundTrip(t *testing.T) {
	page := repeatingPage(4096)
	encoded, err := Encode(page, None)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(page, decoded))
}

func TestPagecodec_LZ4RoundTrip(t *testing.T) {
	page := repeatingPage(8192)
	encoded, err := Encode(page, LZ4)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(page, decoded))
}

func TestPagecodec_ZSTDRoundTrip(t *testing.T) {
	page := repeatingPage(8192)
	encoded, err := Encode(page, ZSTD)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(page))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(page, decoded))
}

func TestPagecodec_IncompressibleFallsBackToVerbatim(t *testing.T) {
	page := randomishPage(4096)
	encoded, err := Encode(page, ZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(None), encoded[0])

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(page, decoded))
}

func TestPagecodec_EmptyPage(t *testing.T) {
	encoded, err := Encode(nil, ZSTD)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestPagecodec_DecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPagecodec_DecodeRejectsTruncatedPayload(t *testing.T) {
	page := repeatingPage(4096)
	encoded, err := Encode(page, LZ4)
	require.NoError(t, err)

	_, err = Decode(encoded[:len(encoded)-10])
	assert.Error(t, err)
}
