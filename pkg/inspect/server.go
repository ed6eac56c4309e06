// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package inspect serves a read-only JSON view of a link's node tree and its
// connection status over HTTP.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// Status of the link, as reported by /status.
type Status struct {
	DsID        string `json:"dsId"`
	State       string `json:"state"`
	IsRequester bool   `json:"isRequester"`
	IsResponder bool   `json:"isResponder"`
	ValueSubs   int    `json:"valueSubscriptions"`
	PathSubs    int    `json:"listStreams"`
	Requests    int    `json:"openRequests"`
	Responses   int    `json:"openResponses"`
}

// nodeView is one Node within the JSON view.
type nodeView struct {
	Path     string                 `json:"path"`
	Metadata map[string]interface{} `json:"metadata"`
	Value    interface{}            `json:"value,omitempty"`
	Ts       string                 `json:"ts,omitempty"`
	Children []*nodeView            `json:"children,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

// Server is a http.Handler for the inspection endpoints.
type Server struct {
	router *mux.Router
	tree   *node.Manager
	status func() Status

	httpServer *http.Server
	listener   net.Listener
}

// NewServer registers the endpoints on a router. status might be nil.
func NewServer(router *mux.Router, tree *node.Manager, status func() Status) (s *Server) {
	s = &Server{
		router: router,
		tree:   tree,
		status: status,
	}

	s.router.HandleFunc("/nodes", s.handleTree).Methods(http.MethodGet)
	s.router.HandleFunc("/nodes/{path:.*}", s.handleNode).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	return s
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listening on an address, e.g., "127.0.0.1:8081".
func (s *Server) Start(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("Inspection server errored")
		}
	}()

	log.WithField("listen", ln.Addr().String()).Info("Started inspection server")
	return nil
}

// Addr of the listening server or nil.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close a started server.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write inspection response")
	}
}

func view(n *node.Node, depth int) *nodeView {
	nv := &nodeView{
		Path:     n.Path(),
		Metadata: n.Summary(),
	}
	if v := n.Value(); v != nil {
		nv.Value = v.JSON()
		nv.Ts = v.TimestampString()
	}

	if depth != 0 {
		for _, child := range n.Children() {
			nv.Children = append(nv.Children, view(child, depth-1))
		}
	}
	return nv
}

// handleTree returns the whole tree.
func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view(s.tree.SuperRoot(), -1))
}

// handleNode returns one Node with its direct children, or a single
// configuration or attribute for a "$" or "@" reference.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	n, tail, err := s.tree.GetNode(path)
	if errors.Is(err, protocol.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorView{err.Error()})
		return
	} else if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{err.Error()})
		return
	}

	if tail == "" {
		writeJSON(w, http.StatusOK, view(n, 1))
		return
	}

	var v *value.Value
	switch {
	case strings.HasPrefix(tail, "$$"):
		v = n.RoConfig(tail[2:])
	case strings.HasPrefix(tail, "$"):
		v = n.Config(tail[1:])
	default:
		v = n.Attribute(tail[1:])
	}

	if v == nil {
		writeJSON(w, http.StatusNotFound, errorView{(&protocol.NotFoundError{Path: node.NormalizePath(path, true)}).Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleStatus returns the link's Status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var status Status
	if s.status != nil {
		status = s.status()
	}
	status.ValueSubs = s.tree.Subscriptions().ValueSubCount()
	status.PathSubs = s.tree.Subscriptions().PathSubCount()

	writeJSON(w, http.StatusOK, status)
}
