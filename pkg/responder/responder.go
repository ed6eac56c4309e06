// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package responder

import (
	"fmt"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// Writer queues responses to be written within one envelope.
type Writer interface {
	WriteResponses(resps ...*protocol.Response)
}

// Responder dispatches requests to the method handlers.
type Responder struct {
	manager *node.Manager
	tracker *ResponseTracker

	writerMutex sync.RWMutex
	writer      Writer

	sidMutex sync.Mutex
	nextSid  int32
}

// New Responder serving the Manager's tree. Nothing is written until SetWriter.
func New(manager *node.Manager) *Responder {
	return &Responder{
		manager: manager,
		tracker: NewResponseTracker(),
	}
}

// Manager of the served tree.
func (r *Responder) Manager() *node.Manager {
	return r.manager
}

// Tracker of this connection's open streams.
func (r *Responder) Tracker() *ResponseTracker {
	return r.tracker
}

// SetWriter of the current connection.
func (r *Responder) SetWriter(writer Writer) {
	r.writerMutex.Lock()
	r.writer = writer
	r.writerMutex.Unlock()
}

// Reset this Responder after the connection was lost. All streams are
// cancelled and all subscriptions are dropped without writing anything.
func (r *Responder) Reset() {
	r.SetWriter(nil)

	cancels := r.tracker.Clear()
	for _, cancel := range cancels {
		cancel()
	}
	r.manager.Subscriptions().Clear()

	r.sidMutex.Lock()
	r.nextSid = 0
	r.sidMutex.Unlock()

	log.WithField("streams", len(cancels)).Debug("Responder was reset")
}

func (r *Responder) write(resps ...*protocol.Response) {
	r.writerMutex.RLock()
	writer := r.writer
	r.writerMutex.RUnlock()

	if writer != nil {
		writer.WriteResponses(resps...)
	}
}

// send a later response of a tracked stream. A closing response untracks it.
func (r *Responder) send(rid int32, resp *protocol.Response) error {
	return r.tracker.Advance(rid, resp.State(), func(func()) { r.write(resp) })
}

// closeStream closes a tracked stream from this side and cancels it.
func (r *Responder) closeStream(rid int32) bool {
	var cancel func()
	err := r.tracker.Advance(rid, protocol.StreamClosed, func(c func()) {
		cancel = c
		r.write(closedResponse(rid))
	})

	if cancel != nil {
		cancel()
	}
	return err == nil
}

// allocateSid returns an explicit SID or the next one of this connection.
func (r *Responder) allocateSid(explicit *int32) int32 {
	r.sidMutex.Lock()
	defer r.sidMutex.Unlock()

	if explicit != nil {
		if *explicit >= r.nextSid {
			r.nextSid = *explicit + 1
		}
		return *explicit
	}

	sid := r.nextSid
	r.nextSid++
	return sid
}

// Handle an envelope's requests. All responses are written as one envelope,
// followed by the methods' post actions, e.g., the initial value updates of
// new subscriptions.
func (r *Responder) Handle(reqs []*protocol.Request) {
	var (
		resps []*protocol.Response
		posts []func()
	)

	for _, req := range reqs {
		if req == nil || req.RID <= 0 {
			log.WithField("request", req).WithError(protocol.ErrInvalidRequest).Warn("Dropping request without a valid RID")
			continue
		}

		resp, post := r.handleRequest(req)
		if resp != nil {
			resps = append(resps, resp)
		}
		if post != nil {
			posts = append(posts, post)
		}
	}

	if len(resps) > 0 {
		r.tracker.writeFirst(resps, r.write)
	}
	for _, post := range posts {
		post()
	}
}

func (r *Responder) handleRequest(req *protocol.Request) (resp *protocol.Response, post func()) {
	logger := log.WithFields(log.Fields{
		"rid":    req.RID,
		"method": req.Method,
		"path":   req.Path,
	})

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Warn("Method panicked")
			resp = protocol.NewErrorResponse(req.RID, fmt.Sprint(p), string(debug.Stack()))
			post = nil
		}
	}()

	if !req.Method.Known() {
		err := &protocol.UnknownMethodError{Method: string(req.Method)}
		logger.WithError(err).Debug("Method failed")
		return protocol.NewErrorResponse(req.RID, err.Error(), string(req.Method)), nil
	}
	if err := validate(req); err != nil {
		logger.WithError(err).Debug("Invalid request")
		return protocol.NewErrorResponse(req.RID, err.Error(), string(req.Method)), nil
	}

	var err error
	switch req.Method {
	case protocol.MethodList:
		resp, post, err = r.list(req)
	case protocol.MethodSet:
		resp, err = r.set(req)
	case protocol.MethodRemove:
		resp, err = r.remove(req)
	case protocol.MethodInvoke:
		resp, post, err = r.invoke(req)
	case protocol.MethodSubscribe:
		resp, post = r.subscribe(req)
	case protocol.MethodUnsubscribe:
		resp = r.unsubscribe(req)
	case protocol.MethodClose:
		resp = r.close(req)
	}

	if err != nil {
		logger.WithError(err).Debug("Method failed")
		return protocol.NewErrorResponse(req.RID, err.Error(), fmt.Sprintf("%s %s", req.Method, req.Path)), nil
	}

	logger.Debug("Handled request")
	return resp, post
}

// validate checks that node methods name a path.
func validate(req *protocol.Request) error {
	switch req.Method {
	case protocol.MethodList, protocol.MethodSet, protocol.MethodRemove, protocol.MethodInvoke:
		if req.Path == "" {
			return fmt.Errorf("%w: %s without a path", protocol.ErrInvalidRequest, req.Method)
		}
	}
	return nil
}

func closedResponse(rid int32) *protocol.Response {
	return &protocol.Response{RID: rid, Stream: protocol.StreamClosed}
}
