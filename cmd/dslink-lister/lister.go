// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/requester"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// lister recursively lists a broker's tree and calls done after the last
// list response was handled.
type lister struct {
	req  *requester.Requester
	done func()

	pending atomic.Int32

	mutex  sync.Mutex
	listed []string
}

func newLister(req *requester.Requester, done func()) *lister {
	return &lister{req: req, done: done}
}

// list a path and, recursively, all of its children.
func (l *lister) list(path string) {
	l.pending.Add(1)

	stream, err := l.req.List(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("Sending list request errored")
		l.finish()
		return
	}

	go l.handle(path, stream)
}

func (l *lister) handle(path string, stream *requester.Stream) {
	defer l.finish()

	logger := log.WithField("path", path)

	resp, ok := <-stream.Updates()
	if !ok {
		logger.WithError(stream.Err()).Warn("List stream ended without a response")
		return
	} else if resp.Error != nil {
		logger.WithError(resp.Error).Warn("List request errored")
		return
	}

	l.mutex.Lock()
	l.listed = append(l.listed, path)
	l.mutex.Unlock()

	logger.Info("Received list response")
	printValues(logger, "attribute", resp.Node.Attributes())
	printValues(logger, "configuration", resp.Node.Configs())

	for _, child := range resp.Node.Children() {
		childLogger := logger.WithField("child", child.Name())
		childLogger.Info("Child")
		printValues(childLogger, "attribute", child.Attributes())
		printValues(childLogger, "configuration", child.Configs())

		l.list(node.JoinPath(path, child.Name()))
	}

	// One response is all we need; the remaining updates are not of interest.
	if err := stream.Close(); err != nil {
		logger.WithError(err).Debug("Closing list stream errored")
	}
}

func (l *lister) finish() {
	if l.pending.Add(-1) == 0 {
		log.Info("List completed")
		l.done()
	}
}

// Listed paths, sorted.
func (l *lister) Listed() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	listed := append([]string(nil), l.listed...)
	sort.Strings(listed)
	return listed
}

func printValues(logger *log.Entry, kind string, values map[string]*value.Value) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		logger.WithFields(log.Fields{
			"kind":  kind,
			"key":   k,
			"value": values[k].String(),
		}).Info("Metadata")
	}
}
