// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"errors"
	"fmt"

	"github.com/iot-dsa/dslink-go/pkg/value"
)

// Error kinds. Concrete errors wrap one of those, so errors.Is can be used.
var (
	ErrNotFound        = errors.New("No such path")
	ErrTypeMismatch    = errors.New("Type mismatch")
	ErrNotWritable     = errors.New("Not writable")
	ErrNotInvokable    = errors.New("Not invokable")
	ErrUnknownMethod   = errors.New("Unknown method")
	ErrColumnMismatch  = errors.New("columns and row size do not match")
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrTransportClosed = errors.New("transport closed")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrStreamClosed    = errors.New("stream closed")
	ErrInvalidRequest  = errors.New("invalid request")
)

// NotFoundError reports an unresolvable path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotFound, e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TypeMismatchError reports a value whose Type differs from the expected one.
type TypeMismatchError struct {
	Got      value.Type
	Expected value.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%v (got: %v, expected: %v)", ErrTypeMismatch, e.Got, e.Expected)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// UnknownMethodError reports a request method outside the known set.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownMethod, e.Method)
}

func (e *UnknownMethodError) Unwrap() error {
	return ErrUnknownMethod
}

// ColumnMismatchError reports an invoke row whose size differs from the column count.
type ColumnMismatchError struct {
	Columns int
	Row     int
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("%v { columns: %d, row: %d }", ErrColumnMismatch, e.Columns, e.Row)
}

func (e *ColumnMismatchError) Unwrap() error {
	return ErrColumnMismatch
}

// RemoteError is an error received inside a response record.
type RemoteError struct {
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Detail)
}
