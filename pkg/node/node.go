// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/iot-dsa/dslink-go/internal/pipe"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// ErrExists is returned when attaching a child whose name is already taken.
var ErrExists = errors.New("node already exists")

// Node of the tree. A detached Node, e.g., a requester's list snapshot,
// behaves the same but does not post any subscription updates.
type Node struct {
	mutex sync.RWMutex

	name   string
	parent *Node
	tree   *Manager

	displayName string
	children    map[string]*Node
	order       []string

	value     *value.Value
	valueType value.Type

	configs    map[string]*value.Value
	roConfigs  map[string]*value.Value
	attributes map[string]*value.Value

	interfaces []string
	mixins     []string
	profile    string

	writable     Writable
	password     []byte
	action       *Action
	serializable bool

	listeners    map[uint64]*pipe.Pipe[Event]
	nextListener uint64
}

// New creates a detached Node.
func New(name string) *Node {
	return &Node{
		name:         name,
		children:     make(map[string]*Node),
		configs:      make(map[string]*value.Value),
		roConfigs:    make(map[string]*value.Value),
		attributes:   make(map[string]*value.Value),
		serializable: true,
	}
}

func (n *Node) String() string {
	return n.Path()
}

// Name of this Node, unique among its siblings.
func (n *Node) Name() string {
	return n.name
}

// Parent of this Node, nil for the super root and detached nodes.
func (n *Node) Parent() *Node {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.parent
}

// Path from the super root, e.g., "/x/a".
func (n *Node) Path() string {
	parent := n.Parent()
	if parent == nil {
		if n.name == "" {
			return "/"
		}
		return "/" + n.name
	}
	return JoinPath(parent.Path(), n.name)
}

// changed marks the owning tree as modified and returns its SubscriptionManager.
func (n *Node) changed() *SubscriptionManager {
	n.mutex.RLock()
	tree := n.tree
	n.mutex.RUnlock()

	if tree == nil {
		return nil
	}
	tree.markChanged()
	return tree.subs
}

// postMeta informs an open list stream on this Node about a metadata change.
func (n *Node) postMeta(key string, v *value.Value, removed bool) {
	if subs := n.changed(); subs != nil {
		subs.PostMetaUpdate(n, key, value.ToJSON(v), removed)
	}
}

func (n *Node) DisplayName() string {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.displayName
}

func (n *Node) SetDisplayName(name string) {
	n.mutex.Lock()
	n.displayName = name
	n.mutex.Unlock()

	n.postMeta("$name", value.NewString(name), name == "")
}

// Children in their insertion order.
func (n *Node) Children() []*Node {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	children := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		children = append(children, n.children[name])
	}
	return children
}

// Child by name or nil.
func (n *Node) Child(name string) *Node {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.children[name]
}

func (n *Node) HasChildren() bool {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return len(n.order) > 0
}

// CreateChild returns a Builder for a new child. If a child of this name
// already exists, the Builder modifies the existing one instead.
func (n *Node) CreateChild(name string) *Builder {
	if child := n.Child(name); child != nil {
		return &Builder{parent: n, node: child, existing: true}
	}

	b := &Builder{parent: n, node: New(name)}
	b.err = ValidateName(name)
	return b
}

// AddChild attaches a detached Node and all its descendants.
func (n *Node) AddChild(child *Node) error {
	if err := ValidateName(child.name); err != nil {
		return err
	}
	if child.Parent() != nil {
		return fmt.Errorf("node %s is already attached", child)
	}

	n.mutex.Lock()
	if _, ok := n.children[child.name]; ok {
		n.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, JoinPath(n.Path(), child.name))
	}
	n.children[child.name] = child
	n.order = append(n.order, child.name)
	tree := n.tree
	n.mutex.Unlock()

	child.mutex.Lock()
	child.parent = n
	child.mutex.Unlock()
	child.setTree(tree)

	if subs := n.changed(); subs != nil {
		subs.PostChildUpdate(child, false)
	}
	n.emit(Event{Kind: EventChildAdded, Node: n, Child: child})
	return nil
}

func (n *Node) setTree(tree *Manager) {
	n.mutex.Lock()
	n.tree = tree
	n.mutex.Unlock()

	for _, child := range n.Children() {
		child.setTree(tree)
	}
}

// RemoveChild detaches a child, drops all subscriptions of its subtree and
// returns it. Nil is returned for an unknown name.
func (n *Node) RemoveChild(name string) *Node {
	n.mutex.Lock()
	child, ok := n.children[name]
	if !ok {
		n.mutex.Unlock()
		return nil
	}
	delete(n.children, name)
	for i, childName := range n.order {
		if childName == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	n.mutex.Unlock()

	if subs := n.changed(); subs != nil {
		subs.PostChildUpdate(child, true)
		subs.Forget(child)
	}

	child.mutex.Lock()
	child.parent = nil
	child.mutex.Unlock()
	child.setTree(nil)

	n.emit(Event{Kind: EventChildRemoved, Node: n, Child: child})
	return child
}

// Value or nil.
func (n *Node) Value() *value.Value {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.value
}

// ValueType as declared, value.Invalid if unset.
func (n *Node) ValueType() value.Type {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.valueType
}

// SetValueType declares the type. A present value of another type is dropped.
func (n *Node) SetValueType(t value.Type) {
	n.mutex.Lock()
	n.valueType = t
	if n.value != nil && n.value.Type() != t {
		n.value = nil
	}
	n.mutex.Unlock()

	n.postMeta("$type", value.NewString(t.String()), t == value.Invalid)
}

// SetValue updates this Node's value. The new value must match both the
// declared type and the type of the previous value. Timestamps never go
// backwards; an older timestamp is replaced by the previous one.
func (n *Node) SetValue(v *value.Value) error {
	n.mutex.Lock()
	if v != nil {
		if n.valueType != value.Invalid && v.Type() != n.valueType {
			n.mutex.Unlock()
			return &protocol.TypeMismatchError{Got: v.Type(), Expected: n.valueType}
		}
		if n.value != nil && n.value.Type() != v.Type() {
			n.mutex.Unlock()
			return &protocol.TypeMismatchError{Got: v.Type(), Expected: n.value.Type()}
		}

		if n.value != nil && v.Timestamp().Before(n.value.Timestamp()) {
			v = v.WithTimestamp(n.value.Timestamp())
		}
		if n.valueType == value.Invalid {
			n.valueType = v.Type()
		}
	}
	n.value = v
	n.mutex.Unlock()

	if subs := n.changed(); subs != nil {
		subs.PostValueUpdate(n)
	}
	n.emit(Event{Kind: EventValueUpdated, Node: n, Value: v})
	return nil
}

func getMeta(mutex *sync.RWMutex, m map[string]*value.Value, name string) *value.Value {
	mutex.RLock()
	defer mutex.RUnlock()
	return m[name]
}

func copyMeta(mutex *sync.RWMutex, m map[string]*value.Value) map[string]*value.Value {
	mutex.RLock()
	defer mutex.RUnlock()

	out := make(map[string]*value.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Config by its name, without the "$" sigil.
func (n *Node) Config(name string) *value.Value {
	return getMeta(&n.mutex, n.configs, name)
}

// SetConfig stores a configuration. A nil value removes it.
func (n *Node) SetConfig(name string, v *value.Value) {
	n.mutex.Lock()
	if v == nil {
		delete(n.configs, name)
	} else {
		n.configs[name] = v
	}
	n.mutex.Unlock()

	n.postMeta("$"+name, v, v == nil)
}

// RemoveConfig returns the removed configuration, nil if there was none.
func (n *Node) RemoveConfig(name string) *value.Value {
	n.mutex.Lock()
	v, ok := n.configs[name]
	delete(n.configs, name)
	n.mutex.Unlock()

	if ok {
		n.postMeta("$"+name, nil, true)
	}
	return v
}

// UpdateConfig atomically replaces a configuration by f's result. f gets the
// previous value, possibly nil, and must not access this Node.
func (n *Node) UpdateConfig(name string, f func(prev *value.Value) *value.Value) *value.Value {
	n.mutex.Lock()
	v := f(n.configs[name])
	if v == nil {
		delete(n.configs, name)
	} else {
		n.configs[name] = v
	}
	n.mutex.Unlock()

	n.postMeta("$"+name, v, v == nil)
	return v
}

// Configs returns a copy of all configurations.
func (n *Node) Configs() map[string]*value.Value {
	return copyMeta(&n.mutex, n.configs)
}

// RoConfig by its name, without the "$$" sigil.
func (n *Node) RoConfig(name string) *value.Value {
	return getMeta(&n.mutex, n.roConfigs, name)
}

// SetRoConfig stores a read only configuration. A nil value removes it.
func (n *Node) SetRoConfig(name string, v *value.Value) {
	n.mutex.Lock()
	if v == nil {
		delete(n.roConfigs, name)
	} else {
		n.roConfigs[name] = v
	}
	n.mutex.Unlock()

	n.postMeta("$$"+name, v, v == nil)
}

func (n *Node) RoConfigs() map[string]*value.Value {
	return copyMeta(&n.mutex, n.roConfigs)
}

// Attribute by its name, without the "@" sigil.
func (n *Node) Attribute(name string) *value.Value {
	return getMeta(&n.mutex, n.attributes, name)
}

// SetAttribute stores an attribute. A nil value removes it.
func (n *Node) SetAttribute(name string, v *value.Value) {
	n.mutex.Lock()
	if v == nil {
		delete(n.attributes, name)
	} else {
		n.attributes[name] = v
	}
	n.mutex.Unlock()

	n.postMeta("@"+name, v, v == nil)
}

// RemoveAttribute returns the removed attribute, nil if there was none.
func (n *Node) RemoveAttribute(name string) *value.Value {
	n.mutex.Lock()
	v, ok := n.attributes[name]
	delete(n.attributes, name)
	n.mutex.Unlock()

	if ok {
		n.postMeta("@"+name, nil, true)
	}
	return v
}

func (n *Node) Attributes() map[string]*value.Value {
	return copyMeta(&n.mutex, n.attributes)
}

func addUnique(set []string, item string) ([]string, bool) {
	for _, s := range set {
		if s == item {
			return set, false
		}
	}
	return append(set, item), true
}

func (n *Node) Interfaces() []string {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return append([]string(nil), n.interfaces...)
}

// AddInterface adds an interface name, duplicates are ignored.
func (n *Node) AddInterface(name string) {
	n.mutex.Lock()
	var added bool
	n.interfaces, added = addUnique(n.interfaces, name)
	joined := joinSet(n.interfaces)
	n.mutex.Unlock()

	if added {
		n.postMeta("$interface", value.NewString(joined), false)
	}
}

func (n *Node) Mixins() []string {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return append([]string(nil), n.mixins...)
}

// AddMixin adds a mixin name, duplicates are ignored.
func (n *Node) AddMixin(name string) {
	n.mutex.Lock()
	var added bool
	n.mixins, added = addUnique(n.mixins, name)
	joined := joinSet(n.mixins)
	n.mutex.Unlock()

	if added {
		n.postMeta("$mixin", value.NewString(joined), false)
	}
}

// Profile, the "$is" configuration.
func (n *Node) Profile() string {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.profile
}

func (n *Node) SetProfile(profile string) {
	n.mutex.Lock()
	n.profile = profile
	n.mutex.Unlock()

	n.postMeta("$is", value.NewString(profileOrDefault(profile)), false)
}

func (n *Node) Writable() Writable {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.writable
}

func (n *Node) SetWritable(w Writable) {
	n.mutex.Lock()
	n.writable = w
	n.mutex.Unlock()

	n.postMeta("$writable", value.NewString(w.String()), w == WritableNever)
}

// Password returns a copy of the stored secret.
func (n *Node) Password() []byte {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return append([]byte(nil), n.password...)
}

func (n *Node) SetPassword(password []byte) {
	n.mutex.Lock()
	n.password = append([]byte(nil), password...)
	n.mutex.Unlock()

	n.changed()
}

func (n *Node) Action() *Action {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.action
}

func (n *Node) SetAction(action *Action) {
	n.mutex.Lock()
	n.action = action
	n.mutex.Unlock()

	if action == nil {
		n.postMeta("$invokable", nil, true)
	} else {
		n.postMeta("$invokable", value.NewString(action.Permission().String()), false)
	}
}

// Serializable nodes are persisted by the serializer.
func (n *Node) Serializable() bool {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.serializable
}

func (n *Node) SetSerializable(serializable bool) {
	n.mutex.Lock()
	n.serializable = serializable
	n.mutex.Unlock()

	n.changed()
}
