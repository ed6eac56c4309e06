// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package value

import (
	"fmt"
	"strings"
)

// Type of a Value.
type Type uint8

const (
	// Invalid is the zero Type and never the Type of a constructed Value.
	Invalid Type = iota

	Number
	String
	Bool
	Map
	Array
)

var typeNames = map[Type]string{
	Number: "number",
	String: "string",
	Bool:   "bool",
	Map:    "map",
	Array:  "array",
}

// String returns the JSON name of this Type, e.g., "number".
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(t))
}

// ParseType resolves a case insensitive type name.
func ParseType(name string) (Type, error) {
	lower := strings.ToLower(name)
	for t, n := range typeNames {
		if n == lower {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("unsupported type: %s", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("cannot marshal type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) (err error) {
	*t, err = ParseType(string(text))
	return
}
