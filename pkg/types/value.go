// Package types defines the core data structures for the Settler edge
// reconciliation engine: field values, ordered records, inferred schemas,
// match candidates and anomalies.
//
// Field values use a closed sum type (null, bool, number, string, date)
// with runtime discrimination performed only at the ingestion boundary;
// the engine itself never works with untyped values.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind discriminates the variants of a Value.
type Kind int

// Value kind constants.
const (
	// KindNull is the zero Value: an absent or JSON-null field.
	KindNull Kind = iota

	// KindBool is a boolean field value.
	KindBool

	// KindNumber is a numeric field value (stored as float64).
	KindNumber

	// KindString is a string field value.
	KindString

	// KindDate is a timestamp field value.
	KindDate

	// KindOpaque is a non-primitive JSON value (nested object or array)
	// carried through unmodified. The schema inferencer reports these as
	// "unknown".
	KindOpaque
)

// Value is an immutable, closed sum of the primitive field types a record
// may carry. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	t    time.Time
	raw  json.RawMessage
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// DateValue returns a timestamp Value.
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }

// OpaqueValue returns a Value carrying raw, non-primitive JSON.
func OpaqueValue(raw json.RawMessage) Value {
	return Value{kind: KindOpaque, raw: raw}
}

// Kind returns the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; ok is false for non-bool values.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload; ok is false for non-number values.
func (v Value) AsNumber() (f float64, ok bool) { return v.num, v.kind == KindNumber }

// AsString returns the string payload; ok is false for non-string values.
func (v Value) AsString() (s string, ok bool) { return v.str, v.kind == KindString }

// AsTime returns the timestamp payload; ok is false for non-date values.
func (v Value) AsTime() (t time.Time, ok bool) { return v.t, v.kind == KindDate }

// Text renders the value as a plain string: strings verbatim, numbers in
// their shortest decimal form, booleans as "true"/"false", dates in
// RFC 3339, null and opaque values as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindDate:
		return v.t.Equal(other.t)
	case KindOpaque:
		return bytes.Equal(v.raw, other.raw)
	default:
		return true
	}
}

// MarshalJSON renders the value as its JSON primitive. Dates marshal as
// RFC 3339 strings; NaN and infinities marshal as null since JSON has no
// representation for them.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindDate:
		return json.Marshal(v.t.Format(time.RFC3339))
	case KindOpaque:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

// ValueOf discriminates a runtime Go value into a Value. It accepts the
// primitives produced by JSON decoding plus time.Time and the integer
// types; anything else becomes an opaque value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case string:
		return StringValue(t)
	case time.Time:
		return DateValue(t)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return NullValue()
		}
		return OpaqueValue(raw)
	}
}

// valueFromRaw discriminates a raw JSON value by its leading byte.
func valueFromRaw(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return NullValue(), fmt.Errorf("empty JSON value")
	}

	switch trimmed[0] {
	case 'n':
		return NullValue(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return NullValue(), err
		}
		return BoolValue(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return NullValue(), err
		}
		return StringValue(s), nil
	case '{', '[':
		return OpaqueValue(append(json.RawMessage(nil), trimmed...)), nil
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return NullValue(), err
		}
		return NumberValue(f), nil
	}
}
