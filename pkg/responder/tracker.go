// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package responder

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

type trackedStream struct {
	cancel func()
	state  protocol.StreamState
}

// ResponseTracker holds the open streams of a connection, keyed by their RID.
// Each stream has a cancel function, called after it was untracked.
type ResponseTracker struct {
	mutex   sync.Mutex
	streams map[int32]*trackedStream
}

// NewResponseTracker creates an empty ResponseTracker.
func NewResponseTracker() *ResponseTracker {
	return &ResponseTracker{streams: make(map[int32]*trackedStream)}
}

// Track a stream. A nil cancel function is allowed.
func (rt *ResponseTracker) Track(rid int32, cancel func()) {
	rt.mutex.Lock()
	rt.streams[rid] = &trackedStream{cancel: cancel, state: protocol.StreamInitialized}
	rt.mutex.Unlock()
}

func (rt *ResponseTracker) IsTracking(rid int32) bool {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	_, ok := rt.streams[rid]
	return ok
}

// Count of all tracked streams.
func (rt *ResponseTracker) Count() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return len(rt.streams)
}

// Advance executes f only if the RID is tracked and its stream may move into
// the given state, while holding the tracker's lock. f receives the stream's
// cancel function but must not call it. A stream moving into StreamClosed is
// untracked afterwards.
func (rt *ResponseTracker) Advance(rid int32, to protocol.StreamState, f func(cancel func())) error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	s, ok := rt.streams[rid]
	if !ok {
		return protocol.ErrStreamClosed
	}
	if !s.state.CanTransition(to) {
		return fmt.Errorf("stream %d cannot move from %v to %v", rid, s.state, to)
	}

	f(s.cancel)
	if to == protocol.StreamClosed {
		delete(rt.streams, rid)
	} else {
		s.state = to
	}
	return nil
}

// writeFirst writes the first responses of an envelope while holding the
// tracker's lock. A response opening a stream which was already closed, e.g.,
// by a later request of the same envelope, is dropped.
func (rt *ResponseTracker) writeFirst(resps []*protocol.Response, write func(...*protocol.Response)) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	kept := make([]*protocol.Response, 0, len(resps))
	for _, resp := range resps {
		if !resp.Closed() {
			s, ok := rt.streams[resp.RID]
			if !ok {
				log.WithField("rid", resp.RID).Debug("Dropping first response of an already closed stream")
				continue
			}
			s.state = resp.State()
		}
		kept = append(kept, resp)
	}

	if len(kept) > 0 {
		write(kept...)
	}
}

// Untrack removes a stream and returns its cancel function.
func (rt *ResponseTracker) Untrack(rid int32) (cancel func(), ok bool) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	s, ok := rt.streams[rid]
	if !ok {
		return nil, false
	}
	delete(rt.streams, rid)
	return s.cancel, true
}

// Clear untracks all streams and returns their cancel functions.
func (rt *ResponseTracker) Clear() (cancels []func()) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	for _, s := range rt.streams {
		if s.cancel != nil {
			cancels = append(cancels, s.cancel)
		}
	}
	rt.streams = make(map[int32]*trackedStream)
	return
}
