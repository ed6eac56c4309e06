// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/internal/pipe"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/requester"
	"github.com/iot-dsa/dslink-go/pkg/responder"
)

// Client is an established transport to the broker.
type Client interface {
	// WriteEnvelope writes one envelope as one frame.
	WriteEnvelope(env *protocol.Envelope) error

	// Close the transport. Closing twice is allowed.
	Close() error
}

// DataHandler multiplexes one session's frames. Inbound envelopes are
// dispatched to the Requester and the Responder, outbound envelopes are
// written in call order by a single writer goroutine.
type DataHandler struct {
	requester *requester.Requester
	responder *responder.Responder

	mutex          sync.Mutex
	updateInterval time.Duration
	client         Client
	queue          *pipe.Pipe[*protocol.Envelope]
	writerDone     chan struct{}
}

// NewDataHandler for a link's roles. Either requester or responder might be
// nil if the link does not act in this role.
func NewDataHandler(req *requester.Requester, resp *responder.Responder) *DataHandler {
	return &DataHandler{
		requester: req,
		responder: resp,
	}
}

// Requester of this link, nil if it is no requester.
func (dh *DataHandler) Requester() *requester.Requester {
	return dh.requester
}

// Responder of this link, nil if it is no responder.
func (dh *DataHandler) Responder() *responder.Responder {
	return dh.responder
}

// UpdateInterval as announced by the broker's handshake.
func (dh *DataHandler) UpdateInterval() time.Duration {
	dh.mutex.Lock()
	defer dh.mutex.Unlock()
	return dh.updateInterval
}

// SetUpdateInterval from the last handshake.
func (dh *DataHandler) SetUpdateInterval(interval time.Duration) {
	dh.mutex.Lock()
	dh.updateInterval = interval
	dh.mutex.Unlock()
}

// Start a session on an established Client. A previous session is stopped.
func (dh *DataHandler) Start(client Client) {
	dh.Stop()

	dh.mutex.Lock()
	dh.client = client
	dh.queue = pipe.New[*protocol.Envelope]()
	dh.writerDone = make(chan struct{})
	go dh.writer(client, dh.queue, dh.writerDone)
	dh.mutex.Unlock()

	if dh.requester != nil {
		dh.requester.SetWriter(dh)
	}
	if dh.responder != nil {
		dh.responder.SetWriter(dh)
		dh.responder.Manager().Subscriptions().SetWriter(dh)
	}
}

// Stop the current session. Pending envelopes are dropped, open streams are
// cancelled and all subscriptions are cleared.
func (dh *DataHandler) Stop() {
	dh.mutex.Lock()
	queue, done := dh.queue, dh.writerDone
	dh.client, dh.queue, dh.writerDone = nil, nil, nil
	dh.mutex.Unlock()

	if queue == nil {
		return
	}

	queue.Abort()
	<-done

	if dh.requester != nil {
		dh.requester.Reset()
	}
	if dh.responder != nil {
		dh.responder.Manager().Subscriptions().SetWriter(nil)
		dh.responder.Reset()
	}
}

// Connected checks if a session is active.
func (dh *DataHandler) Connected() bool {
	dh.mutex.Lock()
	defer dh.mutex.Unlock()
	return dh.client != nil
}

func (dh *DataHandler) writer(client Client, queue *pipe.Pipe[*protocol.Envelope], done chan struct{}) {
	defer close(done)

	for env := range queue.C() {
		if err := client.WriteEnvelope(env); err != nil {
			log.WithError(err).Warn("Writing envelope errored, closing client")
			_ = client.Close()
			return
		}
	}
}

func (dh *DataHandler) enqueue(env *protocol.Envelope) {
	dh.mutex.Lock()
	queue := dh.queue
	dh.mutex.Unlock()

	if queue == nil || !queue.Push(env) {
		log.WithFields(log.Fields{
			"requests":  len(env.Requests),
			"responses": len(env.Responses),
		}).Debug("Dropping envelope without an active session")
	}
}

// WriteRequests as one envelope.
func (dh *DataHandler) WriteRequests(reqs ...*protocol.Request) {
	if len(reqs) > 0 {
		dh.enqueue(&protocol.Envelope{Requests: reqs})
	}
}

// WriteResponses as one envelope.
func (dh *DataHandler) WriteResponses(resps ...*protocol.Response) {
	if len(resps) > 0 {
		dh.enqueue(&protocol.Envelope{Responses: resps})
	}
}

// WriteResponse as its own envelope.
func (dh *DataHandler) WriteResponse(resp *protocol.Response) {
	dh.WriteResponses(resp)
}

// ProcessData decodes an inbound frame and dispatches its envelope.
func (dh *DataHandler) ProcessData(data []byte) error {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}

	dh.ProcessEnvelope(env)
	return nil
}

// ProcessEnvelope dispatches requests to the Responder and responses to the
// Requester. An envelope carrying neither is ignored.
func (dh *DataHandler) ProcessEnvelope(env *protocol.Envelope) {
	if len(env.Requests) > 0 {
		if dh.responder != nil {
			dh.responder.Handle(env.Requests)
		} else {
			log.WithField("requests", len(env.Requests)).Warn("Dropping requests, link is no responder")
		}
	}

	if len(env.Responses) > 0 {
		if dh.requester != nil {
			dh.requester.Handle(env.Responses)
		} else {
			log.WithField("responses", len(env.Responses)).Warn("Dropping responses, link is no requester")
		}
	}
}
