// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package requester

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/internal/pipe"
	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// ValueUpdate of a subscribed remote node, received on RID 0.
type ValueUpdate struct {
	Sid   int32
	Path  string
	Value *value.Value
}

// Subscription to a remote node's value.
type Subscription struct {
	path string
	sid  int32

	updates *pipe.Pipe[ValueUpdate]

	mutex  sync.Mutex
	latest *value.Value

	once sync.Once
	done chan struct{}
	err  error
}

func newSubscription(path string, sid int32) *Subscription {
	return &Subscription{
		path:    path,
		sid:     sid,
		updates: pipe.New[ValueUpdate](),
		done:    make(chan struct{}),
	}
}

// Path of the subscribed node.
func (s *Subscription) Path() string {
	return s.path
}

// Sid identifying this Subscription's updates.
func (s *Subscription) Sid() int32 {
	return s.sid
}

// Updates delivers the values in order. The channel is closed after an
// unsubscribe or a lost connection.
func (s *Subscription) Updates() <-chan ValueUpdate {
	return s.updates.C()
}

// Latest value received, nil before the first update or for a null value.
func (s *Subscription) Latest() *value.Value {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.latest
}

// Done is closed after this Subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is protocol.ErrTransportClosed if the connection was lost, nil otherwise.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) update(v *value.Value) {
	s.mutex.Lock()
	s.latest = v
	s.mutex.Unlock()

	s.updates.Push(ValueUpdate{Sid: s.sid, Path: s.path, Value: v})
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		s.updates.Close()
	})
}

// Subscribe to the values of remote nodes. Each new path gets the next SID
// of this connection, starting at 0; paths already subscribed keep their
// Subscription and are not sent again.
func (r *Requester) Subscribe(paths ...string) ([]*Subscription, *Future, error) {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()

	writer := r.currentWriter()
	if writer == nil {
		return nil, nil, protocol.ErrTransportClosed
	}

	var (
		subs    = make([]*Subscription, 0, len(paths))
		entries []protocol.PathEntry
	)

	r.subMutex.Lock()
	for _, path := range paths {
		path = node.NormalizePath(path, true)

		if sub, ok := r.subsByPath[path]; ok {
			subs = append(subs, sub)
			continue
		}

		sub := newSubscription(path, r.nextSid)
		r.nextSid++
		r.subsByPath[path] = sub
		r.subsBySid[sub.sid] = sub

		subs = append(subs, sub)
		entries = append(entries, protocol.PathEntry{Path: path})
	}
	r.subMutex.Unlock()

	f := newFuture(protocol.MethodSubscribe)
	if len(entries) == 0 {
		f.complete(&Response{Method: protocol.MethodSubscribe, State: protocol.StreamClosed}, nil)
		return subs, f, nil
	}

	req := &protocol.Request{
		RID:    r.tracker.track(f),
		Method: protocol.MethodSubscribe,
		Paths:  entries,
	}
	log.WithFields(log.Fields{
		"rid":   req.RID,
		"paths": len(entries),
	}).Debug("Sending subscribe request")

	writer.WriteRequests(req)
	return subs, f, nil
}

// Unsubscribe from remote nodes. Their Subscriptions end immediately.
func (r *Requester) Unsubscribe(paths ...string) (*Future, error) {
	var (
		entries []protocol.PathEntry
		ended   []*Subscription
	)

	r.subMutex.Lock()
	for _, path := range paths {
		path = node.NormalizePath(path, true)

		sub, ok := r.subsByPath[path]
		if !ok {
			continue
		}
		delete(r.subsByPath, path)
		delete(r.subsBySid, sub.sid)

		ended = append(ended, sub)
		entries = append(entries, protocol.PathEntry{Path: path})
	}
	r.subMutex.Unlock()

	for _, sub := range ended {
		sub.finish(nil)
	}

	if len(entries) == 0 {
		f := newFuture(protocol.MethodUnsubscribe)
		f.complete(&Response{Method: protocol.MethodUnsubscribe, State: protocol.StreamClosed}, nil)
		return f, nil
	}

	return r.sendFuture(&protocol.Request{
		Method: protocol.MethodUnsubscribe,
		Paths:  entries,
	})
}

// Subscriptions currently held, by SID.
func (r *Requester) Subscriptions() map[int32]*Subscription {
	r.subMutex.Lock()
	defer r.subMutex.Unlock()

	subs := make(map[int32]*Subscription, len(r.subsBySid))
	for sid, sub := range r.subsBySid {
		subs[sid] = sub
	}
	return subs
}

func (r *Requester) handleValueUpdates(updates []interface{}) {
	for _, update := range updates {
		sid, v, err := parseValueUpdate(update)
		if err != nil {
			log.WithField("update", update).WithError(err).Warn("Dropping malformed value update")
			continue
		}

		r.subMutex.Lock()
		sub := r.subsBySid[sid]
		r.subMutex.Unlock()

		if sub == nil {
			log.WithField("sid", sid).Debug("Dropping value update for an unknown SID")
			continue
		}
		sub.update(v)
	}
}

// parseValueUpdate accepts [sid, value, ts] as well as {"sid", "value", "ts"}.
func parseValueUpdate(update interface{}) (sid int32, v *value.Value, err error) {
	var rawSid, rawValue, rawTs interface{}

	switch u := update.(type) {
	case []interface{}:
		if len(u) < 2 {
			return 0, nil, fmt.Errorf("value update has %d fields", len(u))
		}
		rawSid, rawValue = u[0], u[1]
		if len(u) > 2 {
			rawTs = u[2]
		}
	case map[string]interface{}:
		rawSid, rawValue, rawTs = u["sid"], u["value"], u["ts"]
	default:
		return 0, nil, fmt.Errorf("unsupported value update of type %T", update)
	}

	sidValue, err := value.FromJSON(rawSid)
	if err != nil {
		return 0, nil, err
	} else if sidValue == nil || sidValue.Type() != value.Number || !sidValue.IsInteger() {
		return 0, nil, fmt.Errorf("invalid sid %v", rawSid)
	}
	sid = int32(sidValue.Int())

	if v, err = value.FromJSON(rawValue); err != nil || v == nil {
		return
	}

	if tsStr, ok := rawTs.(string); ok {
		var ts time.Time
		if ts, err = value.ParseTimestamp(tsStr); err != nil {
			return
		}
		v = v.WithTimestamp(ts)
	}
	return
}
