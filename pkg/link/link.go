// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package link assembles a DSLink from its Configuration: the node tree, the
// requester and responder, the broker connection, the scheduler, the nodes
// file serialization and the optional inspection server.
package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/config"
	"github.com/iot-dsa/dslink-go/pkg/connection"
	"github.com/iot-dsa/dslink-go/pkg/handshake"
	"github.com/iot-dsa/dslink-go/pkg/inspect"
	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/requester"
	"github.com/iot-dsa/dslink-go/pkg/responder"
	"github.com/iot-dsa/dslink-go/pkg/scheduler"
	"github.com/iot-dsa/dslink-go/pkg/serializer"
	"github.com/iot-dsa/dslink-go/pkg/storage"
)

// Options customize a DSLink besides its Configuration.
type Options struct {
	// Connector defaults to a connection.WebSocketConnector.
	Connector connection.Connector

	// Workers of the scheduler, defaulting to scheduler.DefaultWorkers.
	Workers int

	// PreInit is called after each handshake, before the transport is opened.
	PreInit func(*connection.ClientConnected)
}

// DSLink is a running link.
type DSLink struct {
	conf *config.Configuration

	tree      *node.Manager
	requester *requester.Requester
	responder *responder.Responder
	handler   *connection.DataHandler
	scheduler *scheduler.Scheduler
	manager   *connection.ConnectionManager

	serializer *serializer.Manager
	snapshots  *storage.Store
	watcher    *serializer.Watcher
	inspect    *inspect.Server

	restoreOnce sync.Once
	restoreErr  error
	stopOnce    sync.Once
}

// New DSLink for a validated Configuration. Nothing is started yet.
func New(conf *config.Configuration, opts Options) (*DSLink, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	dl := &DSLink{
		conf: conf,
		tree: node.NewManager(),
	}

	if conf.IsRequester {
		dl.requester = requester.New()
	}
	if conf.IsResponder {
		dl.responder = responder.New(dl.tree)
	}
	dl.handler = connection.NewDataHandler(dl.requester, dl.responder)

	workers := opts.Workers
	if workers <= 0 {
		workers = scheduler.DefaultWorkers
	}
	dl.scheduler = scheduler.New(workers)

	local := handshake.NewLocalHandshake(conf.Keys, conf.DsID, conf.IsRequester, conf.IsResponder)
	local.Zone = conf.Zone
	local.LinkData = conf.LinkData

	connector := opts.Connector
	if connector == nil {
		connector = &connection.WebSocketConnector{}
	}

	manager, err := connection.NewConnectionManager(connection.Options{
		Handshaker:  handshake.NewClient(conf.AuthEndpoint, local),
		Connector:   connector,
		Runtime:     dl.scheduler,
		Handler:     dl.handler,
		IsRequester: conf.IsRequester,
		IsResponder: conf.IsResponder,
		PreInit:     opts.PreInit,
	})
	if err != nil {
		dl.scheduler.Stop()
		return nil, err
	}
	dl.manager = manager

	if conf.StoreDir != "" {
		if dl.snapshots, err = storage.NewStore(conf.StoreDir, conf.SnapshotKeep); err != nil {
			dl.scheduler.Stop()
			return nil, fmt.Errorf("opening snapshot store failed: %w", err)
		}
	}

	if conf.SerializationPath != "" {
		var snapshots serializer.Snapshots
		if dl.snapshots != nil {
			snapshots = dl.snapshots
		}
		dl.serializer = serializer.NewManager(dl.tree, serializer.NewFileStore(conf.SerializationPath), snapshots)
	}

	if conf.InspectListen != "" {
		dl.inspect = inspect.NewServer(mux.NewRouter(), dl.tree, dl.Status)
	}

	return dl, nil
}

// Config of this link.
func (dl *DSLink) Config() *config.Configuration {
	return dl.conf
}

// Tree of local nodes, served by the responder.
func (dl *DSLink) Tree() *node.Manager {
	return dl.tree
}

// Requester or nil for a responder-only link.
func (dl *DSLink) Requester() *requester.Requester {
	return dl.requester
}

// Responder or nil for a requester-only link.
func (dl *DSLink) Responder() *responder.Responder {
	return dl.responder
}

// Scheduler for the link's background work, e.g., value emitters.
func (dl *DSLink) Scheduler() *scheduler.Scheduler {
	return dl.scheduler
}

// Serializer or nil if no nodes file was configured.
func (dl *DSLink) Serializer() *serializer.Manager {
	return dl.serializer
}

// Inspect server or nil if disabled.
func (dl *DSLink) Inspect() *inspect.Server {
	return dl.inspect
}

// State of the broker connection.
func (dl *DSLink) State() connection.State {
	return dl.manager.State()
}

// Status summary, as served by the inspection server.
func (dl *DSLink) Status() inspect.Status {
	status := inspect.Status{
		DsID:        dl.conf.DsIDWithHash(),
		State:       dl.manager.State().String(),
		IsRequester: dl.conf.IsRequester,
		IsResponder: dl.conf.IsResponder,
	}
	if dl.requester != nil {
		status.Requests = dl.requester.Tracker().Count()
	}
	if dl.responder != nil {
		status.Responses = dl.responder.Tracker().Count()
	}
	return status
}

// Restore the tree from the nodes file once. Run calls this; it is exported
// for links building their nodes on top of the restored ones.
func (dl *DSLink) Restore() error {
	dl.restoreOnce.Do(func() {
		if dl.serializer != nil {
			dl.restoreErr = dl.serializer.Restore()
		}
	})
	return dl.restoreErr
}

// Start the link's services and connect to the broker. onConnected is
// called for each established session.
func (dl *DSLink) Start(onConnected func(*connection.ClientConnected)) error {
	if dl.serializer != nil {
		if err := dl.serializer.Start(dl.scheduler); err != nil {
			return err
		}

		if dl.conf.WatchNodes {
			w, err := serializer.NewWatcher(dl.serializer.Store(), dl.tree)
			if err != nil {
				return fmt.Errorf("watching nodes file failed: %w", err)
			}
			dl.watcher = w
		}
	}

	if dl.inspect != nil {
		if err := dl.inspect.Start(dl.conf.InspectListen); err != nil {
			return fmt.Errorf("starting inspection server failed: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"dsId":   dl.conf.DsIDWithHash(),
		"broker": dl.conf.AuthEndpoint.String(),
	}).Info("Starting link")

	return dl.manager.Start(onConnected)
}

// Run restores the tree, starts the link and blocks until the context is
// canceled. The link is stopped afterwards.
func (dl *DSLink) Run(ctx context.Context, onConnected func(*connection.ClientConnected)) error {
	if err := dl.Restore(); err != nil {
		return err
	}
	if err := dl.Start(onConnected); err != nil {
		return multierror.Append(err, dl.Stop()).ErrorOrNil()
	}

	<-ctx.Done()
	log.Info("Shutting down..")

	return dl.Stop()
}

// Stop the link. Pending node changes are saved.
func (dl *DSLink) Stop() (err error) {
	dl.stopOnce.Do(func() {
		var errs *multierror.Error

		dl.manager.Stop()

		if dl.inspect != nil {
			errs = multierror.Append(errs, dl.inspect.Close())
		}
		if dl.watcher != nil {
			errs = multierror.Append(errs, dl.watcher.Close())
		}
		if dl.serializer != nil {
			errs = multierror.Append(errs, dl.serializer.Stop())
		}
		if dl.snapshots != nil {
			errs = multierror.Append(errs, dl.snapshots.Close())
		}

		dl.scheduler.Stop()

		err = errs.ErrorOrNil()
	})
	return
}
