// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// ValueKey holds a node's value.
const ValueKey = "?value"

// object is a JSON object encoded in the order of its keys' insertion.
type object struct {
	keys   []string
	values map[string]interface{}
}

func newObject() *object {
	return &object{values: make(map[string]interface{})}
}

func (o *object) set(key string, val interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = val
}

func (o *object) MarshalJSON() ([]byte, error) {
	buff := new(bytes.Buffer)
	buff.WriteByte('{')

	for i, key := range o.keys {
		if i > 0 {
			buff.WriteByte(',')
		}

		if k, err := json.Marshal(key); err != nil {
			return nil, err
		} else {
			buff.Write(k)
		}
		buff.WriteByte(':')

		if v, err := json.Marshal(o.values[key]); err != nil {
			return nil, fmt.Errorf("marshalling %s failed: %w", key, err)
		} else {
			buff.Write(v)
		}
	}

	buff.WriteByte('}')
	return buff.Bytes(), nil
}

// Serialize the serializable root nodes and their serializable descendants.
func Serialize(m *node.Manager) ([]byte, error) {
	top := newObject()
	for _, root := range m.SuperRoot().Children() {
		if root.Serializable() {
			top.set(root.Name(), serializeNode(root))
		}
	}

	data, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func serializeNode(n *node.Node) *object {
	out := newObject()

	if name := n.DisplayName(); name != "" {
		out.set("$name", name)
	}
	if set := n.Interfaces(); len(set) > 0 {
		out.set("$interface", strings.Join(set, "|"))
	}
	if set := n.Mixins(); len(set) > 0 {
		out.set("$mixin", strings.Join(set, "|"))
	}
	if profile := n.Profile(); profile != "" {
		out.set("$is", profile)
	}
	if typ := n.ValueType(); typ != value.Invalid {
		out.set("$type", typ.String())
		if v := n.Value(); v != nil {
			out.set(ValueKey, v.JSON())
		}
	}
	if password := n.Password(); len(password) > 0 {
		out.set("$$password", string(password))
	}
	if w := n.Writable(); w != node.WritableNever {
		out.set("$writable", w.String())
	}

	addValues(out, "$$", n.RoConfigs())
	addValues(out, "$", n.Configs())
	addValues(out, "@", n.Attributes())

	for _, child := range n.Children() {
		if child.Serializable() {
			out.set(child.Name(), serializeNode(child))
		}
	}
	return out
}

func addValues(out *object, prefix string, values map[string]*value.Value) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		out.set(prefix+k, value.ToJSON(values[k]))
	}
}

// entry of a decoded object, in document order.
type entry struct {
	key string
	raw json.RawMessage
}

func decodeObject(data []byte) ([]entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if tok, err := dec.Token(); err != nil {
		return nil, err
	} else if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding %s failed: %w", key, err)
		}
		entries = append(entries, entry{key, raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func decodeValue(raw json.RawMessage) (*value.Value, error) {
	var in interface{}
	if err := value.Decode(raw, &in); err != nil {
		return nil, err
	}
	return value.FromJSON(in)
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	err := json.Unmarshal(raw, &s)
	return s, err
}

// Deserialize a document into a tree. Existing nodes are updated, missing
// ones are created; nodes absent from the document are kept.
func Deserialize(m *node.Manager, data []byte) error {
	roots, err := decodeObject(data)
	if err != nil {
		return err
	}

	for _, e := range roots {
		root, err := m.CreateRoot(e.key).Build()
		if err != nil {
			return fmt.Errorf("creating root %s failed: %w", e.key, err)
		}
		if err := deserializeNode(root, e.raw); err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
	}
	return nil
}

func deserializeNode(n *node.Node, data []byte) error {
	entries, err := decodeObject(data)
	if err != nil {
		return err
	}

	var val *value.Value
	for _, e := range entries {
		switch {
		case e.key == ValueKey:
			if val, err = decodeValue(e.raw); err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}

		case strings.HasPrefix(e.key, "$") || strings.HasPrefix(e.key, "@"):
			if err := applyMeta(n, e.key, e.raw); err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}

		default:
			child, err := n.CreateChild(e.key).Build()
			if err != nil {
				return fmt.Errorf("creating child %s failed: %w", e.key, err)
			}
			if err := deserializeNode(child, e.raw); err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
		}
	}

	if val != nil {
		return n.SetValue(val)
	}
	return nil
}

func applyMeta(n *node.Node, key string, raw json.RawMessage) error {
	switch key {
	case "$name", "$interface", "$mixin", "$is", "$type", "$writable", "$$password":
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		return applyStringMeta(n, key, s)
	}

	v, err := decodeValue(raw)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(key, "$$"):
		n.SetRoConfig(key[2:], v)
	case strings.HasPrefix(key, "$"):
		n.SetConfig(key[1:], v)
	default:
		n.SetAttribute(key[1:], v)
	}
	return nil
}

func applyStringMeta(n *node.Node, key, s string) error {
	switch key {
	case "$name":
		n.SetDisplayName(s)
	case "$interface":
		for _, i := range splitSet(s) {
			n.AddInterface(i)
		}
	case "$mixin":
		for _, m := range splitSet(s) {
			n.AddMixin(m)
		}
	case "$is":
		n.SetProfile(s)
	case "$type":
		typ, err := value.ParseType(s)
		if err != nil {
			return err
		}
		n.SetValueType(typ)
	case "$writable":
		w, err := node.ParseWritable(s)
		if err != nil {
			return err
		}
		n.SetWritable(w)
	case "$$password":
		n.SetPassword([]byte(s))
	}
	return nil
}

func splitSet(joined string) (set []string) {
	for _, s := range strings.Split(joined, "|") {
		if s != "" {
			set = append(set, s)
		}
	}
	return
}
