package metrics

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Value is an optionally resolved measurement. The zero Value is unresolved,
// which is distinct from a resolved measurement of 0.
type Value struct {
	V  float64
	OK bool
}

// Set returns a resolved Value.
func Set(v float64) Value { return Value{V: v, OK: true} }

// Float returns the measurement, or the 0 sentinel when unresolved.
func (v Value) Float() float64 {
	if !v.OK {
		return 0
	}
	return v.V
}

// String formats the value without trailing zeros. Unresolved values format
// as the empty string.
func (v Value) String() string {
	if !v.OK {
		return ""
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

// MarshalJSON encodes an unresolved value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.OK {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Set(f)
	return nil
}
