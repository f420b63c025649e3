package codec

import (
	"testing"
)

type benchChild struct {
	K string `json:"k"`
	V int64  `json:"v"`
}

type benchPayload struct {
	ID       uint64            `json:"id"`
	Title    string            `json:"title"`
	Score    float64           `json:"score"`
	Tags     []string          `json:"tags"`
	Attrs    map[string]string `json:"attrs"`
	Flags    []bool            `json:"flags"`
	Children []benchChild      `json:"children"`
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for b.Loop() {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func BenchmarkCodec_Marshal_Payload(b *testing.B) {
	payload := benchPayload{
		ID:    123456789,
		Title: "hello packdb",
		Score: 0.12345,
		Tags:  []string{"a", "b", "c", "d", "e"},
		Attrs: map[string]string{
			"kind":  "bench",
			"owner": "packdb",
			"repo":  "packdb",
			"lang":  "go",
		},
		Flags: []bool{true, false, true, true, false, false, true},
		Children: []benchChild{
			{K: "x", V: 1},
			{K: "y", V: 2},
			{K: "z", V: 3},
		},
	}

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, payload) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, payload) })
}

func BenchmarkCodec_Unmarshal_Payload(b *testing.B) {
	payload := benchPayload{
		ID:    123456789,
		Title: "hello packdb",
		Score: 0.12345,
		Tags:  []string{"a", "b", "c", "d", "e"},
		Attrs: map[string]string{
			"kind":  "bench",
			"owner": "packdb",
			"repo":  "packdb",
			"lang":  "go",
		},
		Flags: []bool{true, false, true, true, false, false, true},
		Children: []benchChild{
			{K: "x", V: 1},
			{K: "y", V: 2},
			{K: "z", V: 3},
		},
	}

	jsonData := MustMarshal(JSON{}, payload)

	b.Run("stdlib", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink benchPayload
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}

// BenchmarkCodec_Marshal_QueryStats exercises the same code path Group uses
// to export a RingMetricsCollector snapshot (spec.md §12.3): a small map of
// heterogeneous scalar values, the shape a QueryStats description carries.
func BenchmarkCodec_Marshal_QueryStats(b *testing.B) {
	m := map[string]any{
		"description":  "column[3] Equal(42) act=FindAll",
		"rows_scanned": int64(1_000_000),
		"matches":      int64(42),
		"duration_ns":  int64(184_320),
		"tags":         []string{"a", "b", "c"},
	}

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, m) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, m) })
}

func BenchmarkCodec_Unmarshal_QueryStats(b *testing.B) {
	m := map[string]any{
		"description":  "column[3] Equal(42) act=FindAll",
		"rows_scanned": int64(1_000_000),
		"matches":      int64(42),
		"duration_ns":  int64(184_320),
		"tags":         []string{"a", "b", "c"},
	}

	jsonData := MustMarshal(JSON{}, m)

	b.Run("stdlib", func(b *testing.B) {
		var sink map[string]any
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink map[string]any
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}
