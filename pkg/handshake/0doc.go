// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handshake authenticates a link against its broker.
//
// Each link owns a P-256 key pair, its LocalKeys, which are persisted as a
// CBOR key file. The wire-level dsId is the configured stem followed by the
// hash of the public key. A handshake posts the LocalHandshake to the broker's
// authentication endpoint and receives a RemoteHandshake, whose temporary key
// and salt derive the auth parameter of the WebSocket URL.
package handshake
