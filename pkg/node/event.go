// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"

	"github.com/iot-dsa/dslink-go/internal/pipe"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// EventKind of an Event.
type EventKind uint8

const (
	// EventSubscribed is posted after a value subscription was added.
	EventSubscribed EventKind = iota + 1

	// EventUnsubscribed is posted after a value subscription was removed.
	EventUnsubscribed

	// EventValueUpdated is posted after each SetValue.
	EventValueUpdated

	// EventChildAdded is posted on the parent after a child was attached.
	EventChildAdded

	// EventChildRemoved is posted on the parent after a child was removed.
	EventChildRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventValueUpdated:
		return "value updated"
	case EventChildAdded:
		return "child added"
	case EventChildRemoved:
		return "child removed"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event of a Node, delivered to its listeners.
type Event struct {
	Kind EventKind
	Node *Node

	// Child is set for EventChildAdded and EventChildRemoved.
	Child *Node

	// Value is set for EventValueUpdated, nil for a cleared value.
	Value *value.Value
}

// Listen for this Node's events. Events are queued without bounds and
// delivered in order. The returned function cancels the listener and
// closes the channel.
func (n *Node) Listen() (<-chan Event, func()) {
	p := pipe.New[Event]()

	n.mutex.Lock()
	if n.listeners == nil {
		n.listeners = make(map[uint64]*pipe.Pipe[Event])
	}
	id := n.nextListener
	n.nextListener++
	n.listeners[id] = p
	n.mutex.Unlock()

	cancel := func() {
		n.mutex.Lock()
		delete(n.listeners, id)
		n.mutex.Unlock()

		p.Abort()
	}

	return p.C(), cancel
}

func (n *Node) emit(e Event) {
	n.mutex.RLock()
	if len(n.listeners) == 0 {
		n.mutex.RUnlock()
		return
	}
	listeners := make([]*pipe.Pipe[Event], 0, len(n.listeners))
	for _, p := range n.listeners {
		listeners = append(listeners, p)
	}
	n.mutex.RUnlock()

	for _, p := range listeners {
		p.Push(e)
	}
}
