// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iot-dsa/dslink-go/pkg/value"
)

// DefaultProfile is listed as "$is" for nodes without a profile.
const DefaultProfile = "node"

func profileOrDefault(profile string) string {
	if profile == "" {
		return DefaultProfile
	}
	return profile
}

func joinSet(set []string) string {
	return strings.Join(set, "|")
}

func splitSet(joined string) (set []string) {
	for _, s := range strings.Split(joined, "|") {
		if s != "" {
			set = append(set, s)
		}
	}
	return
}

type metaEntry struct {
	key string
	val interface{}
}

func sortedMeta(prefix string, m map[string]*value.Value) []metaEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]metaEntry, len(keys))
	for i, k := range keys {
		entries[i] = metaEntry{prefix + k, m[k].JSON()}
	}
	return entries
}

// summary holds the metadata also sent for a node as a child.
func (n *Node) summary() []metaEntry {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	entries := []metaEntry{{"$is", profileOrDefault(n.profile)}}
	if n.displayName != "" {
		entries = append(entries, metaEntry{"$name", n.displayName})
	}
	if n.valueType != value.Invalid {
		entries = append(entries, metaEntry{"$type", n.valueType.String()})
	}
	if len(n.interfaces) > 0 {
		entries = append(entries, metaEntry{"$interface", joinSet(n.interfaces)})
	}
	if len(n.mixins) > 0 {
		entries = append(entries, metaEntry{"$mixin", joinSet(n.mixins)})
	}
	if n.writable != WritableNever {
		entries = append(entries, metaEntry{"$writable", n.writable.String()})
	}
	if n.action != nil {
		entries = append(entries, metaEntry{"$invokable", n.action.Permission().String()})
	}
	return entries
}

func (n *Node) metadata() []metaEntry {
	entries := n.summary()

	if action := n.Action(); action != nil {
		entries = append(entries, metaEntry{"$result", string(action.ResultType())})
		if params := action.Params(); params != nil {
			entries = append(entries, metaEntry{"$params", params})
		}
		if columns := action.Columns(); columns != nil {
			entries = append(entries, metaEntry{"$columns", columns})
		}
	}

	entries = append(entries, sortedMeta("$$", n.RoConfigs())...)
	entries = append(entries, sortedMeta("$", n.Configs())...)
	entries = append(entries, sortedMeta("@", n.Attributes())...)
	return entries
}

// Summary is the map sent for this Node within its parent's list stream.
func (n *Node) Summary() map[string]interface{} {
	m := make(map[string]interface{})
	for _, e := range n.summary() {
		m[e.key] = e.val
	}
	return m
}

// ListUpdates are the updates of the first response of a list stream: all
// metadata as [key, value] followed by each child as [name, summary].
func (n *Node) ListUpdates() []interface{} {
	var updates []interface{}
	for _, e := range n.metadata() {
		updates = append(updates, []interface{}{e.key, e.val})
	}
	for _, child := range n.Children() {
		updates = append(updates, ChildEntry(child, false))
	}
	return updates
}

// ChildEntry is a list stream update for an added or removed child.
func ChildEntry(child *Node, removed bool) interface{} {
	return MetaEntry(child.Name(), child.Summary(), removed)
}

// MetaEntry is a list stream update for a changed or removed key.
func MetaEntry(key string, val interface{}, removed bool) interface{} {
	if removed {
		return map[string]interface{}{"name": key, "change": "remove"}
	}
	return []interface{}{key, val}
}

// ApplyListUpdate applies one update of a list stream to a snapshot Node.
// Children are created as detached nodes holding their summary.
func ApplyListUpdate(n *Node, update interface{}) error {
	switch u := update.(type) {
	case []interface{}:
		if len(u) < 2 {
			return fmt.Errorf("list update %v is too short", u)
		}
		key, ok := u[0].(string)
		if !ok {
			return fmt.Errorf("list update key %v is not a string", u[0])
		}
		return applyEntry(n, key, u[1])

	case map[string]interface{}:
		key, _ := u["name"].(string)
		if change, _ := u["change"].(string); change == "remove" && key != "" {
			removeEntry(n, key)
			return nil
		}
		return fmt.Errorf("unsupported list update %v", u)

	default:
		return fmt.Errorf("unsupported list update of type %T", update)
	}
}

func applyEntry(n *Node, key string, raw interface{}) error {
	if !IsReference(key) {
		child := n.Child(key)
		if child == nil {
			child = New(key)
			if err := n.AddChild(child); err != nil {
				return err
			}
		}

		if m, ok := raw.(map[string]interface{}); ok {
			for k, v := range m {
				if err := applyEntry(child, k, v); err != nil {
					return err
				}
			}
		}
		return nil
	}

	str, _ := raw.(string)
	switch key {
	case "$is":
		n.SetProfile(str)
		return nil
	case "$name":
		n.SetDisplayName(str)
		return nil
	case "$interface":
		for _, i := range splitSet(str) {
			n.AddInterface(i)
		}
		return nil
	case "$mixin":
		for _, m := range splitSet(str) {
			n.AddMixin(m)
		}
		return nil
	case "$type":
		if t, err := value.ParseType(str); err == nil {
			n.SetValueType(t)
			return nil
		}
	case "$writable":
		if w, err := ParseWritable(str); err == nil {
			n.SetWritable(w)
			return nil
		}
	}

	v, err := value.FromJSON(raw)
	if err != nil {
		return fmt.Errorf("list update %s: %w", key, err)
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

func removeEntry(n *Node, key string) {
	switch {
	case strings.HasPrefix(key, "$$"):
		n.SetRoConfig(key[2:], nil)
	case strings.HasPrefix(key, "$"):
		n.RemoveConfig(key[1:])
	case strings.HasPrefix(key, "@"):
		n.RemoveAttribute(key[1:])
	default:
		n.RemoveChild(key)
	}
}
