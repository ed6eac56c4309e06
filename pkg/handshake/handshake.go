// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package handshake

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/connection"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// Version of the protocol announced to the broker.
const Version = "1.1.2"

// LocalHandshake is posted to the broker's authentication endpoint.
type LocalHandshake struct {
	DsID        string                 `json:"-"`
	PublicKey   string                 `json:"publicKey"`
	IsRequester bool                   `json:"isRequester"`
	IsResponder bool                   `json:"isResponder"`
	LinkData    map[string]interface{} `json:"linkData,omitempty"`
	Version     string                 `json:"version"`
	Zone        string                 `json:"zone,omitempty"`

	keys *LocalKeys
}

// NewLocalHandshake for a link named by its dsId stem.
func NewLocalHandshake(keys *LocalKeys, stem string, isRequester, isResponder bool) *LocalHandshake {
	return &LocalHandshake{
		DsID:        keys.DsID(stem),
		PublicKey:   keys.EncodedPublicKey(),
		IsRequester: isRequester,
		IsResponder: isResponder,
		Version:     Version,
		keys:        keys,
	}
}

// Keys of this link.
func (lh *LocalHandshake) Keys() *LocalKeys {
	return lh.keys
}

// RemoteHandshake is the broker's reply.
type RemoteHandshake struct {
	DsID           string `json:"dsId"`
	PublicKey      string `json:"publicKey"`
	WsURI          string `json:"wsUri"`
	TempKey        string `json:"tempKey"`
	Salt           string `json:"salt"`
	UpdateInterval int    `json:"updateInterval"`
	Path           string `json:"path"`
}

// Auth derives the auth parameter as base64url(sha256(salt || ECDH(tempKey))).
func Auth(keys *LocalKeys, remote *RemoteHandshake) (string, error) {
	secret, err := keys.SharedSecret(remote.TempKey)
	if err != nil {
		return "", err
	}

	hash := sha256.New()
	hash.Write([]byte(remote.Salt))
	hash.Write(secret)
	return base64.RawURLEncoding.EncodeToString(hash.Sum(nil)), nil
}

// SessionURL of the WebSocket, relative to the authentication endpoint.
func SessionURL(endpoint *url.URL, local *LocalHandshake, remote *RemoteHandshake) (string, error) {
	if remote.WsURI == "" {
		return "", fmt.Errorf("%w: broker offers no WebSocket", protocol.ErrHandshakeFailed)
	}

	auth, err := Auth(local.keys, remote)
	if err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrHandshakeFailed, err)
	}

	wsURI, err := url.Parse(remote.WsURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrHandshakeFailed, err)
	}

	u := endpoint.ResolveReference(wsURI)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	query := u.Query()
	query.Set("dsId", local.DsID)
	query.Set("auth", auth)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// Client performs handshakes against a broker's authentication endpoint.
type Client struct {
	Endpoint *url.URL
	Local    *LocalHandshake

	// HTTPClient defaults to a client with a ten second timeout.
	HTTPClient *http.Client
}

// NewClient for an authentication endpoint, e.g., http://localhost:8080/conn.
func NewClient(endpoint *url.URL, local *LocalHandshake) *Client {
	return &Client{
		Endpoint:   endpoint,
		Local:      local,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Perform one handshake.
func (c *Client) Perform(ctx context.Context) (*RemoteHandshake, error) {
	body, err := json.Marshal(c.Local)
	if err != nil {
		return nil, err
	}

	u := *c.Endpoint
	query := u.Query()
	query.Set("dsId", c.Local.DsID)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrHandshakeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", protocol.ErrHandshakeFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var remote RemoteHandshake
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrHandshakeFailed, err)
	}

	log.WithFields(log.Fields{
		"dsId":   c.Local.DsID,
		"broker": remote.DsID,
		"path":   remote.Path,
	}).Debug("Received remote handshake")

	return &remote, nil
}

// Handshake performs a handshake and derives the session, making Client a
// connection.Handshaker.
func (c *Client) Handshake(ctx context.Context) (*connection.Session, error) {
	remote, err := c.Perform(ctx)
	if err != nil {
		return nil, err
	}

	sessionURL, err := SessionURL(c.Endpoint, c.Local, remote)
	if err != nil {
		return nil, err
	}

	return &connection.Session{
		URL:            sessionURL,
		DsID:           remote.DsID,
		Path:           remote.Path,
		UpdateInterval: time.Duration(remote.UpdateInterval) * time.Millisecond,
	}, nil
}
