// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// TimestampFormat is ISO-8601 with milliseconds and a numeric zone offset.
const TimestampFormat = "2006-01-02T15:04:05.000-07:00"

// Value is an immutable, timestamped and typed value.
type Value struct {
	typ Type

	integer int64
	float   float64
	isInt   bool

	str     string
	boolean bool
	m       map[string]interface{}
	arr     []interface{}

	ts time.Time
}

func newValue(typ Type) *Value {
	return &Value{typ: typ, ts: time.Now()}
}

// NewInt creates an integral Number.
func NewInt(i int64) *Value {
	v := newValue(Number)
	v.integer = i
	v.float = float64(i)
	v.isInt = true
	return v
}

// NewFloat creates a Number. A float without a fractional part is stored as
// an integral Number as well.
func NewFloat(f float64) *Value {
	if isIntegral(f) {
		return NewInt(int64(f))
	}

	v := newValue(Number)
	v.integer = truncate(f)
	v.float = f
	return v
}

// NewString creates a String Value.
func NewString(s string) *Value {
	v := newValue(String)
	v.str = s
	return v
}

// NewBool creates a Bool Value.
func NewBool(b bool) *Value {
	v := newValue(Bool)
	v.boolean = b
	return v
}

// NewMap creates a Map Value from an arbitrary JSON object. Nested numbers are
// normalized the same way FromJSON does.
func NewMap(m map[string]interface{}) *Value {
	v := newValue(Map)
	if m == nil {
		v.m = map[string]interface{}{}
	} else {
		v.m = normalize(m).(map[string]interface{})
	}
	return v
}

// NewArray creates an Array Value from an arbitrary JSON array.
func NewArray(a []interface{}) *Value {
	v := newValue(Array)
	if a == nil {
		v.arr = []interface{}{}
	} else {
		v.arr = normalize(a).([]interface{})
	}
	return v
}

// Type of this Value.
func (v *Value) Type() Type {
	return v.typ
}

// Int returns the integer representation of a Number.
func (v *Value) Int() int64 {
	return v.integer
}

// Float returns the floating point representation of a Number.
func (v *Value) Float() float64 {
	return v.float
}

// IsInteger checks if this Number has no fractional part.
func (v *Value) IsInteger() bool {
	return v.typ == Number && v.isInt
}

// Str returns the content of a String.
func (v *Value) Str() string {
	return v.str
}

// Bool returns the content of a Bool.
func (v *Value) Bool() bool {
	return v.boolean
}

// Map returns the content of a Map. The returned map must not be modified.
func (v *Value) Map() map[string]interface{} {
	return v.m
}

// Array returns the content of an Array. The returned slice must not be modified.
func (v *Value) Array() []interface{} {
	return v.arr
}

// Timestamp of this Value's creation or last restamping.
func (v *Value) Timestamp() time.Time {
	return v.ts
}

// TimestampString renders the Timestamp in the wire format.
func (v *Value) TimestampString() string {
	return FormatTimestamp(v.ts)
}

// WithTimestamp returns a copy of this Value with another timestamp.
func (v *Value) WithTimestamp(ts time.Time) *Value {
	c := *v
	c.ts = ts
	return &c
}

// JSON returns the dynamic representation to be encoded on the wire.
func (v *Value) JSON() interface{} {
	switch v.typ {
	case Number:
		if v.isInt {
			return v.integer
		}
		return v.float
	case String:
		return v.str
	case Bool:
		return v.boolean
	case Map:
		return v.m
	case Array:
		return v.arr
	default:
		return nil
	}
}

// MarshalJSON encodes only the content, not the timestamp.
func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.JSON())
}

// Equal compares type and content while ignoring the timestamp.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.typ != o.typ {
		return false
	}

	switch v.typ {
	case Number:
		return v.float == o.float && v.integer == o.integer
	case String:
		return v.str == o.str
	case Bool:
		return v.boolean == o.boolean
	case Map:
		return reflect.DeepEqual(v.m, o.m)
	case Array:
		return reflect.DeepEqual(v.arr, o.arr)
	default:
		return false
	}
}

func (v *Value) String() string {
	if v == nil {
		return "null"
	}
	if v.typ == String {
		return v.str
	}
	if data, err := json.Marshal(v.JSON()); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v.JSON())
}

// FormatTimestamp renders a time in the wire format.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampFormat)
}

// ParseTimestamp parses a timestamp in the wire format. RFC 3339 is accepted as well.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// isIntegral checks if f has no fractional part and fits an int64. The upper
// bound is exclusive as float64(math.MaxInt64) is 2^63.
func isIntegral(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

// truncate f towards zero, saturating at the int64 bounds.
func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
