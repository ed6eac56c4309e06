// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// State of a ConnectionManager.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateConnected
	StateDisconnected

	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrStopped is returned when starting a stopped ConnectionManager.
var ErrStopped = errors.New("connection manager was stopped")

// Session negotiated by a handshake.
type Session struct {
	// URL of the transport, including its authentication query.
	URL string

	// DsID of the broker.
	DsID string

	// Path of this link within the broker's tree.
	Path string

	UpdateInterval time.Duration
}

// Handshaker performs the broker handshake.
type Handshaker interface {
	Handshake(ctx context.Context) (*Session, error)
}

// HandshakerFunc adapts a function to a Handshaker.
type HandshakerFunc func(ctx context.Context) (*Session, error)

// Handshake calls f.
func (f HandshakerFunc) Handshake(ctx context.Context) (*Session, error) {
	return f(ctx)
}

// Runtime executes the ConnectionManager's background work.
type Runtime interface {
	// Submit a task for immediate execution.
	Submit(task func())

	// After schedules a task after a delay. The returned function cancels it.
	After(delay time.Duration, task func()) (cancel func())
}

// ClientConnected describes one established session.
type ClientConnected struct {
	// ID of the connection attempt, also used in log messages.
	ID ulid.ULID

	IsRequester bool
	IsResponder bool

	Session *Session
	Handler *DataHandler
}

// Options of a ConnectionManager.
type Options struct {
	Handshaker Handshaker
	Connector  Connector
	Runtime    Runtime
	Handler    *DataHandler

	IsRequester bool
	IsResponder bool

	// PreInit is called after a successful handshake, before the transport
	// is opened.
	PreInit func(*ClientConnected)

	// MinDelay and MaxDelay bound the reconnect backoff, defaulting to
	// DefaultMinDelay and DefaultMaxDelay.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// ConnectionManager drives the handshake, transport and reconnect cycle.
type ConnectionManager struct {
	handshaker Handshaker
	connector  Connector
	runtime    Runtime
	handler    *DataHandler
	preInit    func(*ClientConnected)

	isRequester bool
	isResponder bool

	backoff *Backoff

	mutex       sync.Mutex
	state       State
	running     bool
	attempt     ulid.ULID
	cancelTimer func()
	cancelCtx   context.CancelFunc
	conn        Conn
	onConnected func(*ClientConnected)
}

// NewConnectionManager from its Options. Handshaker, Connector, Runtime and
// Handler are required.
func NewConnectionManager(opts Options) (*ConnectionManager, error) {
	if opts.Handshaker == nil || opts.Connector == nil || opts.Runtime == nil || opts.Handler == nil {
		return nil, fmt.Errorf("connection manager requires a handshaker, a connector, a runtime and a handler")
	}

	minDelay, maxDelay := opts.MinDelay, opts.MaxDelay
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	return &ConnectionManager{
		handshaker:  opts.Handshaker,
		connector:   opts.Connector,
		runtime:     opts.Runtime,
		handler:     opts.Handler,
		preInit:     opts.PreInit,
		isRequester: opts.IsRequester,
		isResponder: opts.IsResponder,
		backoff:     NewBackoff(minDelay, maxDelay),
		state:       StateIdle,
	}, nil
}

// State of this ConnectionManager.
func (cm *ConnectionManager) State() State {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.state
}

// Handler of all sessions.
func (cm *ConnectionManager) Handler() *DataHandler {
	return cm.handler
}

// NextDelay is the delay of the next reconnect.
func (cm *ConnectionManager) NextDelay() time.Duration {
	return cm.backoff.Peek()
}

// Start connecting. onConnected is called for each established session.
// A current session is closed first.
func (cm *ConnectionManager) Start(onConnected func(*ClientConnected)) error {
	cm.mutex.Lock()
	if cm.state == StateStopped {
		cm.mutex.Unlock()
		return ErrStopped
	}

	if cm.cancelTimer != nil {
		cm.cancelTimer()
		cm.cancelTimer = nil
	}
	conn := cm.conn
	cm.conn = nil

	cm.running = true
	cm.onConnected = onConnected
	task := cm.prepareLocked()
	cm.mutex.Unlock()

	if conn != nil {
		_ = conn.Close()
		cm.handler.Stop()
	}

	cm.runtime.Submit(task)
	return nil
}

// Stop this ConnectionManager for good, closing the current session.
func (cm *ConnectionManager) Stop() {
	cm.mutex.Lock()
	cm.running = false
	cm.state = StateStopped
	cm.attempt = ulid.ULID{}

	if cm.cancelTimer != nil {
		cm.cancelTimer()
		cm.cancelTimer = nil
	}
	if cm.cancelCtx != nil {
		cm.cancelCtx()
		cm.cancelCtx = nil
	}
	conn := cm.conn
	cm.conn = nil
	cm.mutex.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	cm.handler.Stop()

	log.Info("Connection manager stopped")
}

// prepareLocked starts a new connection attempt, superseding the previous
// one. The returned task must be submitted after unlocking.
func (cm *ConnectionManager) prepareLocked() func() {
	id := ulid.Make()
	ctx, cancel := context.WithCancel(context.Background())

	if cm.cancelCtx != nil {
		cm.cancelCtx()
	}
	cm.attempt = id
	cm.cancelCtx = cancel
	cm.state = StateHandshaking

	return func() { cm.connect(ctx, id) }
}

// current checks if an attempt is still the active one.
func (cm *ConnectionManager) current(id ulid.ULID) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.running && cm.attempt == id
}

func (cm *ConnectionManager) connect(ctx context.Context, id ulid.ULID) {
	logger := log.WithField("conn", id.String())

	if !cm.current(id) {
		return
	}

	logger.Debug("Initiating connection sequence")

	session, err := cm.handshaker.Handshake(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to complete handshake")
		cm.reconnect(id)
		return
	}

	cm.handler.SetUpdateInterval(session.UpdateInterval)

	cc := &ClientConnected{
		ID:          id,
		IsRequester: cm.isRequester,
		IsResponder: cm.isResponder,
		Session:     session,
		Handler:     cm.handler,
	}
	if cm.preInit != nil {
		cm.preInit(cc)
	}

	conn, err := cm.connector.Connect(ctx, session.URL)
	if err != nil {
		logger.WithError(err).Warn("Opening transport errored")
		cm.reconnect(id)
		return
	}

	cm.mutex.Lock()
	if !cm.running || cm.attempt != id {
		cm.mutex.Unlock()
		_ = conn.Close()
		return
	}
	cm.conn = conn
	cm.state = StateConnected
	onConnected := cm.onConnected

	cm.handler.Start(conn)
	conn.Serve(&sessionHandler{manager: cm, id: id, handler: cm.handler})
	cm.mutex.Unlock()

	cm.backoff.Reset()
	logger.WithFields(log.Fields{
		"broker": session.DsID,
		"path":   session.Path,
	}).Info("Connection established")

	if onConnected != nil {
		onConnected(cc)
	}
}

// reconnect schedules the next attempt after the backoff delay.
func (cm *ConnectionManager) reconnect(id ulid.ULID) {
	cm.mutex.Lock()
	if !cm.running || cm.attempt != id {
		cm.mutex.Unlock()
		return
	}
	delay := cm.backoff.Next()
	cm.state = StateDisconnected
	cm.mutex.Unlock()

	log.WithFields(log.Fields{
		"conn":  id.String(),
		"delay": delay,
	}).Info("Reconnecting after delay")

	cancel := cm.runtime.After(delay, func() {
		cm.mutex.Lock()
		if !cm.running || cm.attempt != id {
			cm.mutex.Unlock()
			return
		}
		cm.cancelTimer = nil
		task := cm.prepareLocked()
		cm.mutex.Unlock()

		cm.runtime.Submit(task)
	})

	cm.mutex.Lock()
	if cm.running && cm.attempt == id {
		cm.cancelTimer = cancel
		cm.mutex.Unlock()
		return
	}
	cm.mutex.Unlock()
	cancel()
}

func (cm *ConnectionManager) disconnected(id ulid.ULID, err error) {
	cm.mutex.Lock()
	if cm.attempt != id || cm.conn == nil {
		cm.mutex.Unlock()
		return
	}
	cm.conn = nil
	running := cm.running
	cm.mutex.Unlock()

	cm.handler.Stop()

	if !running {
		return
	}

	log.WithField("conn", id.String()).WithError(err).Warn("Transport was closed")
	cm.reconnect(id)
}

// sessionHandler binds a Conn's frames to one connection attempt.
type sessionHandler struct {
	manager *ConnectionManager
	id      ulid.ULID
	handler *DataHandler
}

func (sh *sessionHandler) ProcessData(data []byte) error {
	return sh.handler.ProcessData(data)
}

func (sh *sessionHandler) Disconnected(err error) {
	if err == nil {
		err = protocol.ErrTransportClosed
	}
	sh.manager.disconnected(sh.id, err)
}
