// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"

	"github.com/hashicorp/go-multierror"

	"github.com/iot-dsa/dslink-go/pkg/handshake"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// ConnectionType selects the transport used after the handshake.
type ConnectionType string

// WebSocket is the only defined ConnectionType.
const WebSocket ConnectionType = "WEB_SOCKET"

// Configuration of a DSLink.
type Configuration struct {
	// DsID is the link's name; the public key's hash is appended for the wire.
	DsID           string
	AuthEndpoint   *url.URL
	ConnectionType ConnectionType
	Keys           *handshake.LocalKeys

	// SerializationPath of the nodes file. An empty path disables serialization.
	SerializationPath string

	Zone        string
	IsRequester bool
	IsResponder bool

	LogLevel     string
	LogFormat    string
	ReportCaller bool

	// StoreDir of the snapshot store. Empty disables snapshots.
	StoreDir     string
	SnapshotKeep int

	// InspectListen is the inspection server's address. Empty disables it.
	InspectListen string

	// WatchNodes reloads the nodes file after external edits.
	WatchNodes bool

	LinkData map[string]interface{}
}

// SetAuthEndpoint parses an endpoint like "http://localhost:8080/conn".
func (c *Configuration) SetAuthEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported broker scheme %q", protocol.ErrConfigInvalid, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: broker %q has no host", protocol.ErrConfigInvalid, endpoint)
	}

	c.AuthEndpoint = u
	return nil
}

// DsIDWithHash is the DsID as sent to the broker.
func (c *Configuration) DsIDWithHash() string {
	return c.Keys.DsID(c.DsID)
}

// Validate reports every missing field at once. Each error wraps protocol.ErrConfigInvalid.
func (c *Configuration) Validate() error {
	var errs *multierror.Error

	invalid := func(msg string) {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", protocol.ErrConfigInvalid, msg))
	}

	if c.DsID == "" {
		invalid("dsId not set")
	}
	if c.ConnectionType == "" {
		invalid("connection type not set")
	} else if c.ConnectionType != WebSocket {
		invalid(fmt.Sprintf("unknown connection type %s", c.ConnectionType))
	}
	if c.AuthEndpoint == nil {
		invalid("authentication endpoint not set")
	}
	if c.Keys == nil {
		invalid("keys not set")
	}
	if !c.IsRequester && !c.IsResponder {
		invalid("link is neither requester nor responder")
	}
	if c.SnapshotKeep < 0 {
		invalid("snapshot keep must not be negative")
	}

	return errs.ErrorOrNil()
}
