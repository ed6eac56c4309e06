// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"sync"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// Batch of invoke rows as sent within one response.
type Batch struct {
	Columns []protocol.Column
	Rows    [][]interface{}
	From    *int
	State   protocol.StreamState
}

// ResultSink receives the batches of an ActionResult after its first response
// was written.
type ResultSink interface {
	SendBatch(batch Batch) error
}

// ActionResult is handed to an ActionHandler. Rows added while the handler
// runs form the first response. A streaming result might be kept by the
// handler to send further batches until it is closed.
type ActionResult struct {
	node   *Node
	params map[string]interface{}
	mode   InvokeMode

	mutex   sync.Mutex
	columns []protocol.Column
	rows    [][]interface{}
	state   protocol.StreamState
	flushed bool
	queued  []Batch
	sink    ResultSink
	closed  bool
	onClose []func()
}

// NewActionResult for an invocation of the Node's Action with the given parameters.
func NewActionResult(n *Node, params map[string]interface{}) *ActionResult {
	r := &ActionResult{
		node:   n,
		params: params,
		state:  protocol.StreamClosed,
	}

	if action := n.Action(); action != nil {
		r.columns = action.Columns()
		r.mode = action.InvokeMode()
		if r.mode == InvokeStreaming {
			r.state = protocol.StreamOpen
		}
	}

	return r
}

// Node being invoked.
func (r *ActionResult) Node() *Node {
	return r.node
}

// Params as received, JSON decoded.
func (r *ActionResult) Params() map[string]interface{} {
	return r.params
}

// Parameter returns the named parameter or the fallback if it is missing or
// not representable as a Value.
func (r *ActionResult) Parameter(name string, fallback *value.Value) *value.Value {
	raw, ok := r.params[name]
	if !ok || raw == nil {
		return fallback
	}

	v, err := value.FromJSON(raw)
	if err != nil || v == nil {
		return fallback
	}
	return v
}

// SetColumns overrides the Action's result columns.
func (r *ActionResult) SetColumns(params ...Parameter) {
	r.mutex.Lock()
	r.columns = toColumns(params)
	r.mutex.Unlock()
}

func (r *ActionResult) Columns() []protocol.Column {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.columns
}

// SetStreamState of the first response. Later changes are made by Close.
func (r *ActionResult) SetStreamState(state protocol.StreamState) {
	r.mutex.Lock()
	if r.sink == nil && !r.closed {
		r.state = state
	}
	r.mutex.Unlock()
}

func (r *ActionResult) StreamState() protocol.StreamState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// Closed checks if this result's stream has ended.
func (r *ActionResult) Closed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closed
}

// AddRow appends a single row.
func (r *ActionResult) AddRow(row ...*value.Value) error {
	return r.push(nil, [][]*value.Value{row})
}

// Update appends rows.
func (r *ActionResult) Update(rows ...[]*value.Value) error {
	return r.push(nil, rows)
}

// Replace all rows starting at the from-th one.
func (r *ActionResult) Replace(from int, rows ...[]*value.Value) error {
	return r.push(&from, rows)
}

func (r *ActionResult) push(from *int, rows [][]*value.Value) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return protocol.ErrStreamClosed
	}

	encoded, err := encodeRows(len(r.columns), rows)
	if err != nil {
		r.mutex.Unlock()
		return err
	}

	if sink := r.sink; sink != nil {
		r.mutex.Unlock()
		return sink.SendBatch(Batch{Rows: encoded, From: from, State: protocol.StreamOpen})
	}

	if r.flushed {
		r.queued = append(r.queued, Batch{Rows: encoded, From: from, State: protocol.StreamOpen})
	} else {
		if from != nil && *from < len(r.rows) {
			r.rows = r.rows[:*from]
		}
		r.rows = append(r.rows, encoded...)
	}
	r.mutex.Unlock()
	return nil
}

// OnClose registers a function called once after this stream has ended,
// either by Close, by the requester or by a disconnect.
func (r *ActionResult) OnClose(f func()) {
	r.mutex.Lock()
	if !r.closed {
		r.onClose = append(r.onClose, f)
		r.mutex.Unlock()
		return
	}
	r.mutex.Unlock()

	f()
}

// Close this result's stream.
func (r *ActionResult) Close() error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return nil
	}

	if r.sink == nil {
		if r.flushed {
			r.queued = append(r.queued, Batch{State: protocol.StreamClosed})
			r.closed = true
		} else {
			r.state = protocol.StreamClosed
		}
		r.mutex.Unlock()
		return nil
	}

	sink := r.sink
	handlers := r.terminate()
	r.mutex.Unlock()

	err := sink.SendBatch(Batch{State: protocol.StreamClosed})
	runAll(handlers)
	return err
}

// Flush returns the first batch after the handler has returned. A one-shot
// Action always results in a closed stream.
func (r *ActionResult) Flush() Batch {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.mode == InvokeOneShot {
		r.state = protocol.StreamClosed
	}

	batch := Batch{
		Columns: r.columns,
		Rows:    r.rows,
		State:   r.state,
	}
	r.rows = nil
	r.flushed = true
	return batch
}

// Attach a sink after the first batch was written. Batches produced in the
// meantime are sent first. A closed first batch terminates this result.
func (r *ActionResult) Attach(sink ResultSink) {
	r.mutex.Lock()
	queued := r.queued
	r.queued = nil
	for _, batch := range queued {
		if err := sink.SendBatch(batch); err != nil {
			break
		}
	}

	var handlers []func()
	if r.closed || r.state == protocol.StreamClosed {
		handlers = r.terminate()
	} else {
		r.sink = sink
	}
	r.mutex.Unlock()

	runAll(handlers)
}

// Cancel ends this result without sending anything.
func (r *ActionResult) Cancel() {
	r.mutex.Lock()
	handlers := r.terminate()
	r.mutex.Unlock()

	runAll(handlers)
}

// terminate must be called while holding the mutex.
func (r *ActionResult) terminate() (handlers []func()) {
	r.closed = true
	r.state = protocol.StreamClosed
	r.sink = nil
	r.queued = nil
	handlers, r.onClose = r.onClose, nil
	return
}

func runAll(handlers []func()) {
	for _, h := range handlers {
		h()
	}
}

func encodeRows(columns int, rows [][]*value.Value) ([][]interface{}, error) {
	encoded := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		if columns > 0 && len(row) != columns {
			return nil, &protocol.ColumnMismatchError{Columns: columns, Row: len(row)}
		}

		out := make([]interface{}, len(row))
		for i, v := range row {
			out[i] = value.ToJSON(v)
		}
		encoded = append(encoded, out)
	}
	return encoded, nil
}
