// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

type batchRecorder struct {
	batches []Batch
}

func (r *batchRecorder) SendBatch(batch Batch) error {
	r.batches = append(r.batches, batch)
	return nil
}

func streamingNode(t *testing.T) *Node {
	n := New("stream")
	action := NewAction(PermissionRead, func(*ActionResult) error { return nil })
	action.SetInvokeMode(InvokeStreaming).SetResultType(ResultStream)
	require.NoError(t, action.AddResult(Parameter{Name: "c", Type: value.Number}))
	n.SetAction(action)
	return n
}

func TestActionResultOneShot(t *testing.T) {
	n := New("add")
	n.SetAction(NewAction(PermissionRead, func(*ActionResult) error { return nil }))

	result := NewActionResult(n, map[string]interface{}{"count": float64(3)})
	require.Equal(t, int64(3), result.Parameter("count", value.NewInt(1)).Int())
	require.Equal(t, int64(1), result.Parameter("missing", value.NewInt(1)).Int())

	result.SetStreamState(protocol.StreamOpen)
	require.NoError(t, result.AddRow(value.NewInt(3)))

	batch := result.Flush()
	require.Equal(t, protocol.StreamClosed, batch.State)
	require.Equal(t, [][]interface{}{{int64(3)}}, batch.Rows)

	closed := false
	result.OnClose(func() { closed = true })
	result.Attach(&batchRecorder{})
	require.True(t, closed)
	require.True(t, result.Closed())
}

func TestActionResultStreaming(t *testing.T) {
	n := streamingNode(t)
	result := NewActionResult(n, nil)
	require.Equal(t, protocol.StreamOpen, result.StreamState())

	require.NoError(t, result.AddRow(value.NewInt(1)))
	require.NoError(t, result.AddRow(value.NewInt(2)))

	err := result.AddRow(value.NewInt(1), value.NewInt(2))
	require.True(t, errors.Is(err, protocol.ErrColumnMismatch))

	batch := result.Flush()
	require.Equal(t, protocol.StreamOpen, batch.State)
	require.Equal(t, []protocol.Column{{Name: "c", Type: "number"}}, batch.Columns)
	require.Equal(t, [][]interface{}{{int64(1)}, {int64(2)}}, batch.Rows)

	sink := &batchRecorder{}
	result.Attach(sink)

	closed := 0
	result.OnClose(func() { closed++ })

	require.NoError(t, result.Replace(1, []*value.Value{value.NewInt(9)}))
	require.NoError(t, result.Close())
	require.NoError(t, result.Close())
	require.True(t, errors.Is(result.AddRow(value.NewInt(3)), protocol.ErrStreamClosed))

	require.Len(t, sink.batches, 2)
	require.Equal(t, 1, *sink.batches[0].From)
	require.Equal(t, [][]interface{}{{int64(9)}}, sink.batches[0].Rows)
	require.Equal(t, protocol.StreamClosed, sink.batches[1].State)
	require.Equal(t, 1, closed)
}

func TestActionResultCancel(t *testing.T) {
	result := NewActionResult(streamingNode(t), nil)
	result.Flush()

	sink := &batchRecorder{}
	result.Attach(sink)

	closed := false
	result.OnClose(func() { closed = true })
	result.Cancel()

	require.True(t, closed)
	require.Error(t, result.AddRow(value.NewInt(1)))
	require.Empty(t, sink.batches)
}

func TestActionPermission(t *testing.T) {
	called := false
	action := NewAction(PermissionNone, func(*ActionResult) error {
		called = true
		return nil
	})

	require.False(t, action.HasPermission())
	require.True(t, errors.Is(action.Invoke(nil), protocol.ErrNotInvokable))
	require.False(t, called)

	action.SetPermission(PermissionWrite)
	require.NoError(t, action.Invoke(nil))
	require.True(t, called)
}
