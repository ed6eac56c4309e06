// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package requester

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// Writer queues requests to be written within one envelope.
type Writer interface {
	WriteRequests(reqs ...*protocol.Request)
}

// Requester issues requests over the current connection.
type Requester struct {
	tracker *RequestTracker

	// sendMutex couples RID assignment and writing, keeping RIDs ordered on the wire.
	sendMutex sync.Mutex

	writerMutex sync.RWMutex
	writer      Writer

	subMutex   sync.Mutex
	nextSid    int32
	subsBySid  map[int32]*Subscription
	subsByPath map[string]*Subscription
}

// New Requester. Requests fail with protocol.ErrTransportClosed until SetWriter.
func New() *Requester {
	return &Requester{
		tracker:    NewRequestTracker(),
		subsBySid:  make(map[int32]*Subscription),
		subsByPath: make(map[string]*Subscription),
	}
}

// Tracker of the in-flight requests.
func (r *Requester) Tracker() *RequestTracker {
	return r.tracker
}

// SetWriter of the current connection.
func (r *Requester) SetWriter(writer Writer) {
	r.writerMutex.Lock()
	r.writer = writer
	r.writerMutex.Unlock()
}

func (r *Requester) currentWriter() Writer {
	r.writerMutex.RLock()
	defer r.writerMutex.RUnlock()
	return r.writer
}

// Reset this Requester after the connection was lost. All pending requests
// and subscriptions end with protocol.ErrTransportClosed; nothing is
// resubscribed automatically.
func (r *Requester) Reset() {
	r.SetWriter(nil)

	records := r.tracker.reset()
	for _, rec := range records {
		rec.fail(protocol.ErrTransportClosed)
	}

	r.subMutex.Lock()
	subs := r.subsBySid
	r.subsBySid = make(map[int32]*Subscription)
	r.subsByPath = make(map[string]*Subscription)
	r.nextSid = 0
	r.subMutex.Unlock()

	for _, sub := range subs {
		sub.finish(protocol.ErrTransportClosed)
	}

	log.WithFields(log.Fields{
		"requests":      len(records),
		"subscriptions": len(subs),
	}).Debug("Requester was reset")
}

// send tracks the record under the next RID and writes the request.
func (r *Requester) send(req *protocol.Request, rec record) error {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()

	writer := r.currentWriter()
	if writer == nil {
		return protocol.ErrTransportClosed
	}

	req.RID = r.tracker.track(rec)
	if s, ok := rec.(*Stream); ok {
		s.rid = req.RID
	}

	log.WithFields(log.Fields{
		"rid":    req.RID,
		"method": req.Method,
		"path":   req.Path,
	}).Debug("Sending request")

	writer.WriteRequests(req)
	return nil
}

func (r *Requester) sendStream(req *protocol.Request) (*Stream, error) {
	s := newStream(r, req.Method, req.Path)
	if err := r.send(req, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Requester) sendFuture(req *protocol.Request) (*Future, error) {
	f := newFuture(req.Method)
	if err := r.send(req, f); err != nil {
		return nil, err
	}
	return f, nil
}

// List a remote node. The stream stays open until closed.
func (r *Requester) List(path string) (*Stream, error) {
	return r.sendStream(&protocol.Request{
		Method: protocol.MethodList,
		Path:   node.NormalizePath(path, true),
	})
}

// Set a remote value, configuration or attribute.
func (r *Requester) Set(path string, v *value.Value) (*Future, error) {
	return r.sendFuture(&protocol.Request{
		Method: protocol.MethodSet,
		Path:   node.NormalizePath(path, true),
		Value:  value.ToJSON(v),
	})
}

// Remove a remote configuration or attribute.
func (r *Requester) Remove(path string) (*Future, error) {
	return r.sendFuture(&protocol.Request{
		Method: protocol.MethodRemove,
		Path:   node.NormalizePath(path, true),
	})
}

// Invoke a remote action. The stream ends with the responder's close.
func (r *Requester) Invoke(path string, params map[string]interface{}) (*Stream, error) {
	return r.sendStream(&protocol.Request{
		Method: protocol.MethodInvoke,
		Path:   node.NormalizePath(path, true),
		Params: params,
	})
}

// Close an open stream by its RID. The stream ends after the responder has
// confirmed the close.
func (r *Requester) Close(rid int32) error {
	writer := r.currentWriter()
	if writer == nil {
		return protocol.ErrTransportClosed
	}

	writer.WriteRequests(&protocol.Request{RID: rid, Method: protocol.MethodClose})
	return nil
}

// abandon untracks a stream and asks the responder to close it.
func (r *Requester) abandon(rid int32) {
	r.tracker.Untrack(rid)
	if err := r.Close(rid); err != nil {
		log.WithField("rid", rid).WithError(err).Debug("Closing abandoned stream failed")
	}
}

// Handle an envelope's responses.
func (r *Requester) Handle(resps []*protocol.Response) {
	for _, resp := range resps {
		if resp == nil {
			continue
		}

		if resp.RID == protocol.ValueSubRID {
			r.handleValueUpdates(resp.Updates)
			continue
		}

		rec := r.tracker.get(resp.RID)
		if rec == nil {
			log.WithField("rid", resp.RID).Debug("Dropping response for an unknown RID")
			continue
		}

		if finished := rec.handle(resp); finished || resp.Closed() {
			r.tracker.Untrack(resp.RID)
		}
	}
}
