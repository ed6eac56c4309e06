// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// FrameHandler receives a Conn's inbound frames and is informed once about
// its end.
type FrameHandler interface {
	ProcessData(data []byte) error
	Disconnected(err error)
}

// Conn is a dialed transport whose reader is started by Serve.
type Conn interface {
	Client

	// Serve starts reading frames. It must be called exactly once.
	Serve(handler FrameHandler)
}

// Connector dials the transport for a session URL.
type Connector interface {
	Connect(ctx context.Context, url string) (Conn, error)
}

// WebSocketConnector dials text frame WebSockets, the WEB_SOCKET connection type.
type WebSocketConnector struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with each handshake request.
	Header http.Header
}

// Connect to a ws:// or wss:// URL.
func (wc *WebSocketConnector) Connect(ctx context.Context, url string) (Conn, error) {
	dialer := wc.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, url, wc.Header)
	if err != nil {
		return nil, err
	}
	return newWebSocketClient(conn), nil
}

type webSocketClient struct {
	sync.Mutex

	conn   *websocket.Conn
	logger *log.Entry

	shutdownOnce sync.Once
}

func newWebSocketClient(conn *websocket.Conn) *webSocketClient {
	return &webSocketClient{
		conn:   conn,
		logger: log.WithField("websocket", conn.RemoteAddr().String()),
	}
}

// NewWebSocketConn wraps an already established WebSocket, e.g., one accepted
// by an Upgrader.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return newWebSocketClient(conn)
}

func (client *webSocketClient) Serve(handler FrameHandler) {
	go client.handleConn(handler)
}

func (client *webSocketClient) handleConn(handler FrameHandler) {
	var err error
	defer func() {
		client.shutdown()
		handler.Disconnected(err)
	}()

	for {
		var (
			messageType int
			reader      io.Reader
			data        []byte
		)

		if messageType, reader, err = client.conn.NextReader(); err != nil {
			if isClosedError(err) {
				client.logger.WithError(err).Debug("Reader errored due to a closed connection")
			} else {
				client.logger.WithError(err).Warn("Opening next WebSocket reader errored")
			}
			return
		} else if messageType != websocket.TextMessage {
			client.logger.WithField("message type", messageType).Warn("Ignoring non-text WebSocket message")
			continue
		} else if data, err = io.ReadAll(reader); err != nil {
			client.logger.WithError(err).Warn("Reading WebSocket message errored")
			return
		}

		if procErr := handler.ProcessData(data); procErr != nil {
			client.logger.WithError(procErr).Warn("Ignoring malformed frame")
		}
	}
}

func (client *webSocketClient) WriteEnvelope(env *protocol.Envelope) error {
	client.Lock()
	defer client.Unlock()

	wc, wcErr := client.conn.NextWriter(websocket.TextMessage)
	if wcErr != nil {
		return wcErr
	}

	if jsonErr := json.NewEncoder(wc).Encode(env); jsonErr != nil {
		_ = wc.Close()
		return jsonErr
	}

	return wc.Close()
}

func (client *webSocketClient) shutdown() {
	client.shutdownOnce.Do(func() {
		client.logger.Debug("Reached shutdown")

		_ = client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		_ = client.conn.Close()
	})
}

func (client *webSocketClient) Close() error {
	client.shutdown()
	return nil
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
