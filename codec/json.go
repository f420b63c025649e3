package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec, the lowest-dependency option
// for RingMetricsCollector.Export. GoJSON is faster and is the default;
// JSON exists for callers who'd rather avoid the extra dependency.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec RingMetricsCollector.Export uses when its Codec
// field is nil.
var Default Codec = GoJSON{}
