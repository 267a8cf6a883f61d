package weather

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a lenient JSON number used by provider DTOs. Numbers and
// numeric strings decode to a value; null, absent and malformed values
// decode to unknown. Decoding never fails.
type Number struct {
	value float64
	valid bool
}

// NewNumber returns a known Number.
func NewNumber(v float64) Number {
	return Number{value: v, valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil //nolint:nilerr // malformed values are unknown
	}

	switch v := raw.(type) {
	case float64:
		n.value, n.valid = v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			n.value, n.valid = f, true
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

// Valid reports whether the value is known.
func (n Number) Valid() bool {
	return n.valid
}

// Ptr returns the value, or nil when unknown.
func (n Number) Ptr() *float64 {
	if !n.valid {
		return nil
	}
	return Float(n.value)
}

// Or returns the value, or def when unknown.
func (n Number) Or(def float64) float64 {
	if !n.valid {
		return def
	}
	return n.value
}

// DecodeObject decodes raw into a new T when raw is a JSON object that fits
// T. Any other shape, null included, yields nil.
func DecodeObject[T any](raw json.RawMessage) *T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil
	}
	return &v
}
