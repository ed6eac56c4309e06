// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package connection drives a link's session with its broker.
//
// The ConnectionManager performs the handshake, opens the transport and
// reconnects with an exponential backoff after a failure. Each session's
// frames pass the DataHandler, which dispatches inbound envelopes to the
// Requester and the Responder and serializes all outbound envelopes through
// one writer goroutine. The WebSocketConnector is the only transport.
package connection
