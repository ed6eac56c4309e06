// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Method of a request.
type Method string

const (
	MethodList        Method = "list"
	MethodSet         Method = "set"
	MethodRemove      Method = "remove"
	MethodInvoke      Method = "invoke"
	MethodSubscribe   Method = "subscribe"
	MethodUnsubscribe Method = "unsubscribe"
	MethodClose       Method = "close"
)

// Known checks if this Method belongs to the fixed set of methods.
func (m Method) Known() bool {
	switch m {
	case MethodList, MethodSet, MethodRemove, MethodInvoke, MethodSubscribe, MethodUnsubscribe, MethodClose:
		return true
	default:
		return false
	}
}

// ValueSubRID is the implicit stream carrying all value subscription updates.
const ValueSubRID int32 = 0

// Envelope is the top level object of each frame.
type Envelope struct {
	Requests  []*Request  `json:"requests,omitempty"`
	Responses []*Response `json:"responses,omitempty"`
}

// Empty checks if neither requests nor responses are present.
func (e *Envelope) Empty() bool {
	return len(e.Requests) == 0 && len(e.Responses) == 0
}

// Request record. Only the fields matching the Method are populated.
type Request struct {
	RID    int32                  `json:"rid"`
	Method Method                 `json:"method"`
	Path   string                 `json:"path,omitempty"`
	Value  interface{}            `json:"value,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
	Paths  []PathEntry            `json:"paths,omitempty"`
}

// PathEntry of a subscribe or unsubscribe request. It is encoded as a plain
// string unless an explicit SID is set, then {"path":..,"sid":..} is used.
type PathEntry struct {
	Path string
	Sid  *int32
}

type pathEntryObject struct {
	Path string `json:"path"`
	Sid  *int32 `json:"sid,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (pe PathEntry) MarshalJSON() ([]byte, error) {
	if pe.Sid == nil {
		return json.Marshal(pe.Path)
	}
	return json.Marshal(pathEntryObject{Path: pe.Path, Sid: pe.Sid})
}

// UnmarshalJSON implements json.Unmarshaler.
func (pe *PathEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		pe.Sid = nil
		return json.Unmarshal(data, &pe.Path)
	}

	var obj pathEntryObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("path entry: %w", err)
	}
	pe.Path, pe.Sid = obj.Path, obj.Sid
	return nil
}

// Column describes a parameter or a result column of an action.
type Column struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Default interface{} `json:"default,omitempty"`
	Editor  string      `json:"editor,omitempty"`
}

// Meta of an invoke response. From announces a replace-from-row update.
type Meta struct {
	From *int `json:"from,omitempty"`
}

// Response record.
type Response struct {
	RID     int32         `json:"rid"`
	Stream  StreamState   `json:"stream,omitempty"`
	Updates []interface{} `json:"updates,omitempty"`
	Columns []Column      `json:"columns,omitempty"`
	Meta    *Meta         `json:"meta,omitempty"`
	Error   *RemoteError  `json:"error,omitempty"`
}

// State of this response, StreamInitialized if absent or unknown.
func (r *Response) State() StreamState {
	if state, err := ParseStreamState(string(r.Stream)); err == nil {
		return state
	}
	return StreamInitialized
}

// SetState stores a StreamState, omitting StreamInitialized.
func (r *Response) SetState(state StreamState) {
	r.Stream = StreamState(state.Wire())
}

// Closed checks if this response terminates its stream.
func (r *Response) Closed() bool {
	return r.State() == StreamClosed
}

// NewErrorResponse creates a closing response carrying an error.
func NewErrorResponse(rid int32, msg, detail string) *Response {
	return &Response{
		RID:    rid,
		Stream: StreamClosed,
		Error:  &RemoteError{Msg: msg, Detail: detail},
	}
}

// Encode an Envelope into a JSON text frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a JSON text frame. Numbers are kept as json.Number.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
