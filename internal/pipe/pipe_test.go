// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"testing"
	"time"
)

func TestPipeOrder(t *testing.T) {
	p := New[int]()

	// Nobody reads yet; pushing must not block.
	for i := 0; i < 1000; i++ {
		if !p.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	p.Close()

	if p.Push(1000) {
		t.Fatal("push after close succeeded")
	}

	next := 0
	for i := range p.C() {
		if i != next {
			t.Fatalf("expected %d, got %d", next, i)
		}
		next++
	}
	if next != 1000 {
		t.Fatalf("received %d items", next)
	}
}

func TestPipeAbort(t *testing.T) {
	p := New[string]()
	p.Push("a")
	p.Push("b")
	p.Abort()

	select {
	case _, ok := <-p.C():
		// The handler might win the race for the first item, but C is closed eventually.
		for ok {
			_, ok = <-p.C()
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after abort")
	}

	if p.Push("c") {
		t.Fatal("push after abort succeeded")
	}
	p.Close()
}
