// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// FromJSON converts a decoded JSON value into a Value. A nil input results in
// a nil Value without an error, representing JSON's null.
//
// Numbers are integral if they have no fractional part, floating otherwise.
func FromJSON(in interface{}) (*Value, error) {
	switch in := in.(type) {
	case nil:
		return nil, nil
	case *Value:
		return in, nil
	case bool:
		return NewBool(in), nil
	case string:
		return NewString(in), nil
	case map[string]interface{}:
		return NewMap(in), nil
	case []interface{}:
		return NewArray(in), nil
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		switch n := normalizeNumber(in).(type) {
		case int64:
			return NewInt(n), nil
		case float64:
			return NewFloat(n), nil
		default:
			return nil, fmt.Errorf("unhandled number %v", in)
		}
	default:
		return nil, fmt.Errorf("unhandled value type: %T", in)
	}
}

// ToJSON returns the wire representation of a possibly nil Value.
func ToJSON(v *Value) interface{} {
	if v == nil {
		return nil
	}
	return v.JSON()
}

// Decode reads one JSON document while preserving number precision.
func Decode(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// normalize converts numbers nested in JSON objects and arrays into either
// int64 or float64.
func normalize(in interface{}) interface{} {
	switch in := in.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(in))
		for k, v := range in {
			out[k] = normalize(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(in))
		for i, v := range in {
			out[i] = normalize(v)
		}
		return out
	case *Value:
		return normalize(in.JSON())
	default:
		return normalizeNumber(in)
	}
}

func normalizeNumber(in interface{}) interface{} {
	switch n := in.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return normalizeNumber(f)
		}
		return n.String()
	case float64:
		if isIntegral(n) {
			return int64(n)
		}
		return n
	case float32:
		return normalizeNumber(float64(n))
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return normalizeNumber(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	default:
		return in
	}
}
