// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// ResponseWriter queues responses for the connection's writer.
type ResponseWriter interface {
	WriteResponse(resp *protocol.Response)
}

// ListStream is an open list response on one Node.
type ListStream interface {
	// ChildUpdate streams an added or removed child.
	ChildUpdate(child *Node, removed bool)

	// MetaUpdate streams a changed or removed metadata key, e.g., "$name".
	MetaUpdate(key string, val interface{}, removed bool)

	// Close the stream with a closed response.
	Close()
}

// SubscriptionManager tracks value subscriptions, multiplexed by SID on the
// rid 0 stream, and list streams per Node.
type SubscriptionManager struct {
	valueMutex     sync.Mutex
	valueSubsNodes map[*Node]int32
	valueSubsSids  map[int32]*Node

	pathMutex sync.Mutex
	pathSubs  map[*Node]ListStream

	writerMutex sync.RWMutex
	writer      ResponseWriter
}

// NewSubscriptionManager without a writer. Updates are dropped until SetWriter.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		valueSubsNodes: make(map[*Node]int32),
		valueSubsSids:  make(map[int32]*Node),
		pathSubs:       make(map[*Node]ListStream),
	}
}

// SetWriter for the current connection, nil while disconnected.
func (sm *SubscriptionManager) SetWriter(writer ResponseWriter) {
	sm.writerMutex.Lock()
	sm.writer = writer
	sm.writerMutex.Unlock()
}

func (sm *SubscriptionManager) write(resp *protocol.Response) {
	sm.writerMutex.RLock()
	writer := sm.writer
	sm.writerMutex.RUnlock()

	if writer != nil {
		writer.WriteResponse(resp)
	}
}

// HasValueSub checks if a remote endpoint is subscribed to this Node's value.
func (sm *SubscriptionManager) HasValueSub(n *Node) bool {
	sm.valueMutex.Lock()
	defer sm.valueMutex.Unlock()

	_, ok := sm.valueSubsNodes[n]
	return ok
}

// Sid of a subscribed Node.
func (sm *SubscriptionManager) Sid(n *Node) (sid int32, ok bool) {
	sm.valueMutex.Lock()
	defer sm.valueMutex.Unlock()

	sid, ok = sm.valueSubsNodes[n]
	return
}

// NodeBySid returns the subscribed Node or nil.
func (sm *SubscriptionManager) NodeBySid(sid int32) *Node {
	sm.valueMutex.Lock()
	defer sm.valueMutex.Unlock()
	return sm.valueSubsSids[sid]
}

// ValueSubCount is the number of value subscriptions.
func (sm *SubscriptionManager) ValueSubCount() int {
	sm.valueMutex.Lock()
	defer sm.valueMutex.Unlock()
	return len(sm.valueSubsNodes)
}

// AddValueSub subscribes a Node under the SID. The current value is posted
// at once and EventSubscribed is emitted for a previously unsubscribed Node.
// Both a former SID of this Node and a former Node of this SID are replaced.
func (sm *SubscriptionManager) AddValueSub(n *Node, sid int32) {
	sm.valueMutex.Lock()
	oldSid, wasSubscribed := sm.valueSubsNodes[n]
	if wasSubscribed {
		delete(sm.valueSubsSids, oldSid)
	}

	replaced, hasReplaced := sm.valueSubsSids[sid]
	if hasReplaced && replaced != n {
		delete(sm.valueSubsNodes, replaced)
	} else {
		hasReplaced = false
	}

	sm.valueSubsNodes[n] = sid
	sm.valueSubsSids[sid] = n
	sm.valueMutex.Unlock()

	if hasReplaced {
		replaced.emit(Event{Kind: EventUnsubscribed, Node: replaced})
	}

	sm.PostValueUpdate(n)
	if !wasSubscribed {
		n.emit(Event{Kind: EventSubscribed, Node: n})
	}
}

// RemoveValueSub by its SID.
func (sm *SubscriptionManager) RemoveValueSub(sid int32) {
	sm.valueMutex.Lock()
	n, ok := sm.valueSubsSids[sid]
	if ok {
		delete(sm.valueSubsSids, sid)
		delete(sm.valueSubsNodes, n)
	}
	sm.valueMutex.Unlock()

	if ok {
		n.emit(Event{Kind: EventUnsubscribed, Node: n})
	}
}

// RemoveNodeValueSub by its Node.
func (sm *SubscriptionManager) RemoveNodeValueSub(n *Node) {
	sm.valueMutex.Lock()
	sid, ok := sm.valueSubsNodes[n]
	if ok {
		delete(sm.valueSubsNodes, n)
		delete(sm.valueSubsSids, sid)
	}
	sm.valueMutex.Unlock()

	if ok {
		n.emit(Event{Kind: EventUnsubscribed, Node: n})
	}
}

// PostValueUpdate emits [sid, value, ts], or [sid, null] without a value,
// on rid 0 if the Node is subscribed.
func (sm *SubscriptionManager) PostValueUpdate(n *Node) {
	sid, ok := sm.Sid(n)
	if !ok {
		return
	}

	var update []interface{}
	if v := n.Value(); v != nil {
		update = []interface{}{sid, v.JSON(), v.TimestampString()}
	} else {
		update = []interface{}{sid, nil}
	}

	sm.write(&protocol.Response{
		RID:     protocol.ValueSubRID,
		Updates: []interface{}{update},
	})
}

// PathSubCount is the number of open list streams.
func (sm *SubscriptionManager) PathSubCount() int {
	sm.pathMutex.Lock()
	defer sm.pathMutex.Unlock()
	return len(sm.pathSubs)
}

// AddPathSub registers a list stream on this Node. A former stream on the
// same Node is closed.
func (sm *SubscriptionManager) AddPathSub(n *Node, stream ListStream) {
	sm.pathMutex.Lock()
	former := sm.pathSubs[n]
	sm.pathSubs[n] = stream
	sm.pathMutex.Unlock()

	if former != nil && former != stream {
		former.Close()
	}
}

// RemovePathSub unregisters this Node's list stream and returns it, nil if
// there was none. List streams on descendants are closed as well.
func (sm *SubscriptionManager) RemovePathSub(n *Node) ListStream {
	sm.pathMutex.Lock()
	stream, ok := sm.pathSubs[n]
	if !ok {
		sm.pathMutex.Unlock()
		return nil
	}
	delete(sm.pathSubs, n)
	sm.pathMutex.Unlock()

	for _, child := range n.Children() {
		if childStream := sm.RemovePathSub(child); childStream != nil {
			childStream.Close()
		}
	}
	return stream
}

// RemovePathSubStream unregisters a list stream only if it is still the one
// registered on this Node. Descendants are not affected.
func (sm *SubscriptionManager) RemovePathSubStream(n *Node, stream ListStream) {
	sm.pathMutex.Lock()
	if sm.pathSubs[n] == stream {
		delete(sm.pathSubs, n)
	}
	sm.pathMutex.Unlock()
}

func (sm *SubscriptionManager) pathSub(n *Node) ListStream {
	sm.pathMutex.Lock()
	defer sm.pathMutex.Unlock()
	return sm.pathSubs[n]
}

// PostChildUpdate appends an added or removed child to the parent's list stream.
func (sm *SubscriptionManager) PostChildUpdate(child *Node, removed bool) {
	parent := child.Parent()
	if parent == nil {
		return
	}

	if stream := sm.pathSub(parent); stream != nil {
		stream.ChildUpdate(child, removed)
	}
}

// PostMetaUpdate appends a changed metadata key to the Node's list stream.
func (sm *SubscriptionManager) PostMetaUpdate(n *Node, key string, val interface{}, removed bool) {
	if stream := sm.pathSub(n); stream != nil {
		stream.MetaUpdate(key, val, removed)
	}
}

// Forget drops all subscriptions of a subtree which is about to be removed.
// Its list streams are closed.
func (sm *SubscriptionManager) Forget(n *Node) {
	sm.RemoveNodeValueSub(n)
	if stream := sm.RemovePathSub(n); stream != nil {
		stream.Close()
	}

	for _, child := range n.Children() {
		sm.Forget(child)
	}
}

// Clear drops all subscriptions without writing anything, e.g., after the
// connection was lost. EventUnsubscribed is emitted for each value subscription.
func (sm *SubscriptionManager) Clear() {
	sm.valueMutex.Lock()
	nodes := make([]*Node, 0, len(sm.valueSubsNodes))
	for n := range sm.valueSubsNodes {
		nodes = append(nodes, n)
	}
	sm.valueSubsNodes = make(map[*Node]int32)
	sm.valueSubsSids = make(map[int32]*Node)
	sm.valueMutex.Unlock()

	sm.pathMutex.Lock()
	paths := len(sm.pathSubs)
	sm.pathSubs = make(map[*Node]ListStream)
	sm.pathMutex.Unlock()

	log.WithFields(log.Fields{
		"value subscriptions": len(nodes),
		"list streams":        paths,
	}).Debug("Cleared all subscriptions")

	for _, n := range nodes {
		n.emit(Event{Kind: EventUnsubscribed, Node: n})
	}
}
