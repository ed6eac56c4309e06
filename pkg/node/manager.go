// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"strings"
	"sync/atomic"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// Manager owns a node tree below a synthetic super root together with the
// tree's SubscriptionManager.
type Manager struct {
	superRoot *Node
	subs      *SubscriptionManager
	dirty     atomic.Bool
}

// NewManager creates an empty tree.
func NewManager() *Manager {
	m := &Manager{
		superRoot: New(""),
		subs:      NewSubscriptionManager(),
	}
	m.superRoot.tree = m
	return m
}

// SuperRoot resolves "/". Its children are the user defined roots.
func (m *Manager) SuperRoot() *Node {
	return m.superRoot
}

// Subscriptions of this tree.
func (m *Manager) Subscriptions() *SubscriptionManager {
	return m.subs
}

// CreateRoot returns a Builder for a root node.
func (m *Manager) CreateRoot(name string) *Builder {
	return m.superRoot.CreateChild(name)
}

func (m *Manager) markChanged() {
	m.dirty.Store(true)
}

// TakeChanged reports if the tree was modified since the last call.
func (m *Manager) TakeChanged() bool {
	return m.dirty.Swap(false)
}

// GetNode resolves a path. The tail is only set when the last segment is a
// "$" or "@" reference; the returned Node is the one owning this reference.
func (m *Manager) GetNode(path string) (*Node, string, error) {
	path = NormalizePath(path, true)
	if path == "/" {
		return m.superRoot, "", nil
	}

	segments := strings.Split(path[1:], "/")
	current := m.superRoot

	for i, segment := range segments {
		if segment == "" {
			return nil, "", &protocol.NotFoundError{Path: path}
		}

		if IsReference(segment) {
			if i != len(segments)-1 {
				return nil, "", &protocol.NotFoundError{Path: path}
			}
			return current, segment, nil
		}

		if current = current.Child(segment); current == nil {
			return nil, "", &protocol.NotFoundError{Path: path}
		}
	}

	return current, "", nil
}
