// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package requester

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/internal/pipe"
	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// Response as received for a request, together with the method specific
// view of the stream after applying it.
type Response struct {
	RID     int32
	Method  protocol.Method
	State   protocol.StreamState
	Updates []interface{}
	Columns []protocol.Column
	From    *int
	Error   *protocol.RemoteError

	// Node is the list snapshot, only set for list.
	Node *node.Node

	// Table is a copy of all rows received so far, only set for invoke.
	Table *Table
}

func newResponse(method protocol.Method, resp *protocol.Response) *Response {
	r := &Response{
		RID:     resp.RID,
		Method:  method,
		State:   resp.State(),
		Updates: resp.Updates,
		Columns: resp.Columns,
		Error:   resp.Error,
	}
	if resp.Meta != nil {
		r.From = resp.Meta.From
	}
	return r
}

// Future of a one-shot request.
type Future struct {
	method protocol.Method

	once sync.Once
	done chan struct{}
	resp *Response
	err  error
}

func newFuture(method protocol.Method) *Future {
	return &Future{
		method: method,
		done:   make(chan struct{}),
	}
}

func (f *Future) handle(resp *protocol.Response) bool {
	var err error
	if resp.Error != nil {
		err = resp.Error
	}

	f.complete(newResponse(f.method, resp), err)
	return true
}

func (f *Future) fail(err error) {
	f.complete(nil, err)
}

func (f *Future) complete(resp *Response, err error) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.done)
	})
}

// Done is closed after the response was received or the request failed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait for the response. A remote error is returned as *protocol.RemoteError.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stream of a list or invoke request.
type Stream struct {
	requester *Requester
	method    protocol.Method
	rid       int32

	updates *pipe.Pipe[*Response]

	mutex    sync.Mutex
	snapshot *node.Node
	table    *Table
	last     *Response

	once sync.Once
	done chan struct{}
	err  error
}

func newStream(r *Requester, method protocol.Method, path string) *Stream {
	s := &Stream{
		requester: r,
		method:    method,
		updates:   pipe.New[*Response](),
		done:      make(chan struct{}),
	}

	switch method {
	case protocol.MethodList:
		s.snapshot = node.New(path[strings.LastIndex(path, "/")+1:])
	case protocol.MethodInvoke:
		s.table = &Table{}
	}

	return s
}

// RID of this Stream's request.
func (s *Stream) RID() int32 {
	return s.rid
}

// Updates delivers each response in order. The channel is closed after the
// stream has ended.
func (s *Stream) Updates() <-chan *Response {
	return s.updates.C()
}

// Done is closed after the stream has ended.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err is the reason of a stream's end, nil for a regular close.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Node is the snapshot of a list stream, updated by each response.
func (s *Stream) Node() *node.Node {
	return s.snapshot
}

// Table is a copy of an invoke stream's rows received so far.
func (s *Stream) Table() *Table {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.table == nil {
		return nil
	}
	return s.table.Copy()
}

// Wait until the stream has ended and return its last response. Updates not
// yet received from the Updates channel are dropped.
func (s *Stream) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-s.done:
		s.updates.Abort()

		s.mutex.Lock()
		defer s.mutex.Unlock()
		return s.last, s.err

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close requests the responder to close this stream.
func (s *Stream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		return s.requester.Close(s.rid)
	}
}

func (s *Stream) handle(resp *protocol.Response) bool {
	r := newResponse(s.method, resp)

	s.mutex.Lock()
	switch s.method {
	case protocol.MethodList:
		for _, update := range resp.Updates {
			if err := node.ApplyListUpdate(s.snapshot, update); err != nil {
				log.WithFields(log.Fields{
					"rid":    s.rid,
					"update": update,
				}).WithError(err).Debug("Ignoring list update")
			}
		}
		r.Node = s.snapshot

	case protocol.MethodInvoke:
		if err := s.table.apply(resp.Columns, resp.Updates, r.From); err != nil {
			s.mutex.Unlock()

			log.WithField("rid", s.rid).WithError(err).Warn("Invalid invoke update, closing stream")
			s.requester.abandon(s.rid)
			s.finish(err)
			return true
		}
		r.Table = s.table.Copy()
	}
	s.last = r
	s.mutex.Unlock()

	s.updates.Push(r)

	if resp.Closed() {
		var err error
		if resp.Error != nil {
			err = resp.Error
		}
		s.finish(err)
		return true
	}
	return false
}

func (s *Stream) fail(err error) {
	s.finish(err)
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		s.updates.Close()
	})
}
