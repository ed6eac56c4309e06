// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import "fmt"

// StreamState describes the lifecycle of one RID.
type StreamState string

const (
	// StreamInitialized is the default state of a first response. It is
	// omitted on the wire.
	StreamInitialized StreamState = "initialized"
	StreamOpen        StreamState = "open"
	StreamClosed      StreamState = "closed"
)

// ParseStreamState maps the wire representation to a StreamState. An absent
// state results in StreamInitialized.
func ParseStreamState(s string) (StreamState, error) {
	switch StreamState(s) {
	case "", StreamInitialized:
		return StreamInitialized, nil
	case StreamOpen:
		return StreamOpen, nil
	case StreamClosed:
		return StreamClosed, nil
	default:
		return "", fmt.Errorf("unknown stream state %q", s)
	}
}

// CanTransition checks if a stream might move from one state to another.
func (s StreamState) CanTransition(to StreamState) bool {
	switch s {
	case StreamInitialized:
		return to == StreamOpen || to == StreamClosed
	case StreamOpen:
		return to == StreamOpen || to == StreamClosed
	default:
		return false
	}
}

// Wire is the representation written into a response, empty for StreamInitialized.
func (s StreamState) Wire() string {
	if s == StreamInitialized {
		return ""
	}
	return string(s)
}
