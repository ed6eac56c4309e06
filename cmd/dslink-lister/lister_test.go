// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/requester"
	"github.com/iot-dsa/dslink-go/pkg/responder"
	"github.com/iot-dsa/dslink-go/pkg/scheduler"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// bridge passes frames between a requester and a responder in order.
type bridge struct {
	sched *scheduler.Scheduler
	req   *requester.Requester
	resp  *responder.Responder
}

func (b *bridge) WriteRequests(reqs ...*protocol.Request) {
	b.sched.Submit(func() { b.resp.Handle(reqs) })
}

func (b *bridge) WriteResponses(resps ...*protocol.Response) {
	b.sched.Submit(func() { b.req.Handle(resps) })
}

func TestListerRecursive(t *testing.T) {
	tree := node.NewManager()
	a, err := tree.CreateRoot("a").SetConfig("count", value.NewInt(2)).Build()
	require.NoError(t, err)
	_, err = a.CreateChild("b").SetAttribute("unit", value.NewString("m")).Build()
	require.NoError(t, err)
	_, err = a.CreateChild("c").Build()
	require.NoError(t, err)
	_, err = tree.CreateRoot("d").Build()
	require.NoError(t, err)

	// A single worker keeps the frames in order.
	sched := scheduler.New(1)
	defer sched.Stop()

	b := &bridge{sched: sched, req: requester.New(), resp: responder.New(tree)}
	b.req.SetWriter(b)
	b.resp.SetWriter(b)

	done := make(chan struct{})
	l := newLister(b.req, func() { close(done) })
	l.list("/")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listing did not complete")
	}

	require.Equal(t, []string{"/", "/a", "/a/b", "/a/c", "/d"}, l.Listed())

	// All streams were closed again.
	require.Eventually(t, func() bool {
		return b.resp.Tracker().Count() == 0 && b.req.Tracker().Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestListerNotFound(t *testing.T) {
	sched := scheduler.New(1)
	defer sched.Stop()

	b := &bridge{sched: sched, req: requester.New(), resp: responder.New(node.NewManager())}
	b.req.SetWriter(b)
	b.resp.SetWriter(b)

	done := make(chan struct{})
	l := newLister(b.req, func() { close(done) })
	l.list("/missing")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listing did not complete")
	}
	require.Empty(t, l.Listed())
}
