// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"sync"
	"time"
)

const (
	// DefaultMinDelay is the first reconnect delay after a failure.
	DefaultMinDelay = time.Second

	// DefaultMaxDelay caps the reconnect delay.
	DefaultMaxDelay = 60 * time.Second
)

// Backoff yields deterministically doubling delays between a minimum and a
// maximum, e.g., 1s, 2s, 4s, ..., 60s.
type Backoff struct {
	mutex sync.Mutex
	min   time.Duration
	max   time.Duration
	next  time.Duration
}

// NewBackoff starting at min and capped at max.
func NewBackoff(min, max time.Duration) *Backoff {
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max, next: min}
}

// Next returns the current delay and doubles the following one.
func (b *Backoff) Next() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delay := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return delay
}

// Peek returns the delay of the next call to Next.
func (b *Backoff) Peek() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.next
}

// Reset to the minimum delay, after a successful connection.
func (b *Backoff) Reset() {
	b.mutex.Lock()
	b.next = b.min
	b.mutex.Unlock()
}
