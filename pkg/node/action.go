// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"sync"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// EditorType hints a requester's UI how to edit a parameter.
type EditorType string

const (
	EditorNone      EditorType = ""
	EditorTextArea  EditorType = "textarea"
	EditorPassword  EditorType = "password"
	EditorDate      EditorType = "date"
	EditorDateRange EditorType = "daterange"
)

// Parameter of an Action, used both for its parameters and its result columns.
type Parameter struct {
	Name    string
	Type    value.Type
	Default *value.Value
	Editor  EditorType
}

// Column representation of this Parameter.
func (p Parameter) Column() protocol.Column {
	return protocol.Column{
		Name:    p.Name,
		Type:    p.Type.String(),
		Default: value.ToJSON(p.Default),
		Editor:  string(p.Editor),
	}
}

// ResultType announces the shape of an Action's result.
type ResultType string

const (
	ResultValues ResultType = "values"
	ResultTable  ResultType = "table"
	ResultStream ResultType = "stream"
)

// InvokeMode decides the stream state after the handler has returned.
type InvokeMode uint8

const (
	// InvokeOneShot closes the stream with the first response.
	InvokeOneShot InvokeMode = iota

	// InvokeStreaming keeps the stream open until either the handler or the
	// requester closes it.
	InvokeStreaming
)

func (m InvokeMode) String() string {
	if m == InvokeStreaming {
		return "streaming"
	}
	return "one-shot"
}

// ActionHandler is called for each invocation. A returned error closes the
// stream with this error.
type ActionHandler func(result *ActionResult) error

var (
	errResultDefault = errors.New("result column cannot contain a default value")
	errResultEditor  = errors.New("result column cannot contain an editor type")
)

// Action is an invokable descriptor attached to a Node.
type Action struct {
	mutex sync.RWMutex

	permission Permission
	resultType ResultType
	mode       InvokeMode
	params     []Parameter
	columns    []Parameter
	handler    ActionHandler
}

// NewAction creates a one-shot Action returning values.
func NewAction(permission Permission, handler ActionHandler) *Action {
	return &Action{
		permission: permission,
		resultType: ResultValues,
		mode:       InvokeOneShot,
		handler:    handler,
	}
}

// SetPermission updates the required Permission.
func (a *Action) SetPermission(permission Permission) *Action {
	a.mutex.Lock()
	a.permission = permission
	a.mutex.Unlock()
	return a
}

func (a *Action) Permission() Permission {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.permission
}

// HasPermission is false for PermissionNone.
func (a *Action) HasPermission() bool {
	return a.Permission() != PermissionNone
}

func (a *Action) SetResultType(resultType ResultType) *Action {
	a.mutex.Lock()
	a.resultType = resultType
	a.mutex.Unlock()
	return a
}

func (a *Action) ResultType() ResultType {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.resultType
}

func (a *Action) SetInvokeMode(mode InvokeMode) *Action {
	a.mutex.Lock()
	a.mode = mode
	a.mutex.Unlock()
	return a
}

func (a *Action) InvokeMode() InvokeMode {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.mode
}

// AddParameter appends an invocation parameter.
func (a *Action) AddParameter(p Parameter) *Action {
	a.mutex.Lock()
	a.params = append(a.params, p)
	a.mutex.Unlock()
	return a
}

// AddResult appends a result column. Columns must neither have a default
// value nor an editor.
func (a *Action) AddResult(p Parameter) error {
	if p.Default != nil {
		return errResultDefault
	} else if p.Editor != EditorNone {
		return errResultEditor
	}

	a.mutex.Lock()
	a.columns = append(a.columns, p)
	a.mutex.Unlock()
	return nil
}

// Params as wire columns.
func (a *Action) Params() []protocol.Column {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return toColumns(a.params)
}

// Columns of the result as wire columns.
func (a *Action) Columns() []protocol.Column {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return toColumns(a.columns)
}

// Invoke the handler. Nothing happens without a permission.
func (a *Action) Invoke(result *ActionResult) error {
	a.mutex.RLock()
	handler, permission := a.handler, a.permission
	a.mutex.RUnlock()

	if permission == PermissionNone || handler == nil {
		return protocol.ErrNotInvokable
	}
	return handler(result)
}

func toColumns(params []Parameter) []protocol.Column {
	if len(params) == 0 {
		return nil
	}

	cols := make([]protocol.Column, len(params))
	for i, p := range params {
		cols[i] = p.Column()
	}
	return cols
}
