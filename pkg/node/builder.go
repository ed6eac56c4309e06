// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import "github.com/iot-dsa/dslink-go/pkg/value"

// Builder configures a child before attaching it to its parent. A Builder
// for an already existing child modifies this child directly.
type Builder struct {
	parent   *Node
	node     *Node
	existing bool
	err      error
}

// Node under construction.
func (b *Builder) Node() *Node {
	return b.node
}

// Exists checks if this Builder modifies an already attached child.
func (b *Builder) Exists() bool {
	return b.existing
}

func (b *Builder) SetDisplayName(name string) *Builder {
	b.node.SetDisplayName(name)
	return b
}

func (b *Builder) SetValueType(t value.Type) *Builder {
	b.node.SetValueType(t)
	return b
}

func (b *Builder) SetValue(v *value.Value) *Builder {
	if err := b.node.SetValue(v); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) SetConfig(name string, v *value.Value) *Builder {
	b.node.SetConfig(name, v)
	return b
}

func (b *Builder) SetRoConfig(name string, v *value.Value) *Builder {
	b.node.SetRoConfig(name, v)
	return b
}

func (b *Builder) SetAttribute(name string, v *value.Value) *Builder {
	b.node.SetAttribute(name, v)
	return b
}

func (b *Builder) SetAction(action *Action) *Builder {
	b.node.SetAction(action)
	return b
}

func (b *Builder) SetWritable(w Writable) *Builder {
	b.node.SetWritable(w)
	return b
}

func (b *Builder) SetProfile(profile string) *Builder {
	b.node.SetProfile(profile)
	return b
}

func (b *Builder) SetPassword(password []byte) *Builder {
	b.node.SetPassword(password)
	return b
}

func (b *Builder) SetSerializable(serializable bool) *Builder {
	b.node.SetSerializable(serializable)
	return b
}

func (b *Builder) AddInterface(name string) *Builder {
	b.node.AddInterface(name)
	return b
}

func (b *Builder) AddMixin(name string) *Builder {
	b.node.AddMixin(name)
	return b
}

// Build attaches the new child to its parent, which posts a child update.
// The first error of all setters is returned instead.
func (b *Builder) Build() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.existing {
		return b.node, nil
	}

	if err := b.parent.AddChild(b.node); err != nil {
		return nil, err
	}
	return b.node, nil
}
