// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipe provides an unbounded channel. Producers never block on slow
// consumers, which is required for notifications posted from within the
// connection's reader goroutine.
package pipe

import "sync"

// Pipe forwards pushed items in order to the channel returned by C.
type Pipe[T any] struct {
	mutex  sync.Mutex
	closed bool

	in    chan T
	out   chan T
	abort chan struct{}
	once  sync.Once
}

// New creates and starts a Pipe.
func New[T any]() *Pipe[T] {
	p := &Pipe[T]{
		in:    make(chan T),
		out:   make(chan T),
		abort: make(chan struct{}),
	}

	go p.handler()

	return p
}

func (p *Pipe[T]) handler() {
	defer close(p.out)

	var (
		queue []T
		in    = p.in
	)

	for in != nil || len(queue) > 0 {
		var (
			out  chan T
			next T
		)
		if len(queue) > 0 {
			out = p.out
			next = queue[0]
		}

		select {
		case item, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, item)

		case out <- next:
			var zero T
			queue[0] = zero
			queue = queue[1:]

		case <-p.abort:
			return
		}
	}
}

// Push an item. False is returned if this Pipe was already closed.
func (p *Pipe[T]) Push(item T) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return false
	}

	select {
	case p.in <- item:
		return true
	case <-p.abort:
		return false
	}
}

// C is the outgoing channel. It is closed after Close and after all queued
// items were received, or directly after Abort.
func (p *Pipe[T]) C() <-chan T {
	return p.out
}

// Close this Pipe for further items. Queued items are still delivered.
func (p *Pipe[T]) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.closed {
		p.closed = true
		close(p.in)
	}
}

// Abort this Pipe and drop all queued items.
func (p *Pipe[T]) Abort() {
	p.once.Do(func() { close(p.abort) })
	p.Close()
}
