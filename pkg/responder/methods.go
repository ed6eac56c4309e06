// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package responder

import (
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

var errInvalidReference = errors.New("Not a valid reference")

func (r *Responder) list(req *protocol.Request) (*protocol.Response, func(), error) {
	n, tail, err := r.manager.GetNode(req.Path)
	if err != nil {
		return nil, nil, err
	} else if tail != "" {
		return nil, nil, &protocol.NotFoundError{Path: req.Path}
	}

	subs := r.manager.Subscriptions()
	stream := newListStream(r, req.RID)

	r.tracker.Track(req.RID, func() { subs.RemovePathSubStream(n, stream) })
	subs.AddPathSub(n, stream)

	resp := &protocol.Response{
		RID:     req.RID,
		Stream:  protocol.StreamOpen,
		Updates: n.ListUpdates(),
	}
	return resp, stream.start, nil
}

func (r *Responder) set(req *protocol.Request) (*protocol.Response, error) {
	n, tail, err := r.manager.GetNode(req.Path)
	if err != nil {
		return nil, err
	}
	if n.Writable() == node.WritableNever {
		return nil, protocol.ErrNotWritable
	}

	v, err := value.FromJSON(req.Value)
	if err != nil {
		return nil, err
	}

	switch {
	case tail == "":
		if err := n.SetValue(v); err != nil {
			return nil, err
		}
	case strings.HasPrefix(tail, "$$"):
		return nil, protocol.ErrNotWritable
	case strings.HasPrefix(tail, "$"):
		n.SetConfig(tail[1:], v)
	default:
		n.SetAttribute(tail[1:], v)
	}

	return closedResponse(req.RID), nil
}

func (r *Responder) remove(req *protocol.Request) (*protocol.Response, error) {
	n, tail, err := r.manager.GetNode(req.Path)
	if err != nil {
		return nil, err
	}
	if tail == "" {
		return nil, errInvalidReference
	}
	if n.Writable() == node.WritableNever {
		return nil, protocol.ErrNotWritable
	}

	switch {
	case strings.HasPrefix(tail, "$$"):
		return nil, protocol.ErrNotWritable
	case strings.HasPrefix(tail, "$"):
		n.RemoveConfig(tail[1:])
	default:
		n.RemoveAttribute(tail[1:])
	}

	return closedResponse(req.RID), nil
}

func (r *Responder) invoke(req *protocol.Request) (*protocol.Response, func(), error) {
	n, tail, err := r.manager.GetNode(req.Path)
	if err != nil {
		return nil, nil, err
	} else if tail != "" {
		return nil, nil, protocol.ErrNotInvokable
	}

	action := n.Action()
	if action == nil || !action.HasPermission() {
		return nil, nil, protocol.ErrNotInvokable
	}

	result := node.NewActionResult(n, req.Params)
	if err := action.Invoke(result); err != nil {
		result.Cancel()
		return nil, nil, err
	}

	batch := result.Flush()
	resp := &protocol.Response{
		RID:     req.RID,
		Columns: batch.Columns,
		Updates: rowUpdates(batch.Rows),
	}
	resp.SetState(batch.State)

	if batch.State != protocol.StreamClosed {
		r.tracker.Track(req.RID, result.Cancel)
	}

	sink := &invokeSink{responder: r, rid: req.RID}
	return resp, func() { result.Attach(sink) }, nil
}

type subscription struct {
	node *node.Node
	sid  int32
}

// subscribe consumes one SID per path, even for unresolvable ones.
func (r *Responder) subscribe(req *protocol.Request) (*protocol.Response, func()) {
	var subs []subscription
	for _, entry := range req.Paths {
		sid := r.allocateSid(entry.Sid)

		n, tail, err := r.manager.GetNode(entry.Path)
		if err == nil && tail != "" {
			err = &protocol.NotFoundError{Path: entry.Path}
		}
		if err != nil {
			log.WithFields(log.Fields{
				"rid":  req.RID,
				"path": entry.Path,
				"sid":  sid,
			}).WithError(err).Warn("Skipping unresolvable subscription")
			continue
		}

		subs = append(subs, subscription{n, sid})
	}

	manager := r.manager.Subscriptions()
	post := func() {
		for _, sub := range subs {
			manager.AddValueSub(sub.node, sub.sid)
		}
	}
	return closedResponse(req.RID), post
}

func (r *Responder) unsubscribe(req *protocol.Request) *protocol.Response {
	manager := r.manager.Subscriptions()

	for _, entry := range req.Paths {
		if entry.Sid != nil {
			manager.RemoveValueSub(*entry.Sid)
		} else if n, tail, err := r.manager.GetNode(entry.Path); err == nil && tail == "" {
			manager.RemoveNodeValueSub(n)
		}
	}
	return closedResponse(req.RID)
}

// close cancels the stream of the request's RID. Nothing is sent for an
// unknown stream.
func (r *Responder) close(req *protocol.Request) *protocol.Response {
	cancel, ok := r.tracker.Untrack(req.RID)
	if !ok {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	return closedResponse(req.RID)
}

func rowUpdates(rows [][]interface{}) []interface{} {
	if len(rows) == 0 {
		return nil
	}

	updates := make([]interface{}, len(rows))
	for i, row := range rows {
		updates[i] = row
	}
	return updates
}

// invokeSink writes the batches of a streaming invocation.
type invokeSink struct {
	responder *Responder
	rid       int32
}

func (s *invokeSink) SendBatch(batch node.Batch) error {
	resp := &protocol.Response{
		RID:     s.rid,
		Columns: batch.Columns,
		Updates: rowUpdates(batch.Rows),
	}
	resp.SetState(batch.State)
	if batch.From != nil {
		resp.Meta = &protocol.Meta{From: batch.From}
	}

	return s.responder.send(s.rid, resp)
}

// listStream is the node.ListStream of a list request. Updates are held back
// until the first response was written.
type listStream struct {
	responder *Responder
	rid       int32

	mutex   sync.Mutex
	started bool
	pending []interface{}
}

func newListStream(r *Responder, rid int32) *listStream {
	return &listStream{responder: r, rid: rid}
}

func (s *listStream) start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.started = true
	if len(s.pending) > 0 {
		s.sendLocked(s.pending)
		s.pending = nil
	}
}

func (s *listStream) update(update interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started {
		s.pending = append(s.pending, update)
		return
	}
	s.sendLocked([]interface{}{update})
}

func (s *listStream) sendLocked(updates []interface{}) {
	resp := &protocol.Response{
		RID:     s.rid,
		Stream:  protocol.StreamOpen,
		Updates: updates,
	}

	if err := s.responder.send(s.rid, resp); err != nil {
		log.WithField("rid", s.rid).WithError(err).Debug("Dropping list update")
	}
}

func (s *listStream) ChildUpdate(child *node.Node, removed bool) {
	s.update(node.ChildEntry(child, removed))
}

func (s *listStream) MetaUpdate(key string, val interface{}, removed bool) {
	s.update(node.MetaEntry(key, val, removed))
}

func (s *listStream) Close() {
	s.responder.closeStream(s.rid)
}
