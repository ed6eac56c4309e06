// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

func TestListUpdates(t *testing.T) {
	_, x := buildTree(t)
	x.SetDisplayName("X")
	x.SetConfig("count", value.NewInt(2))

	updates := x.ListUpdates()
	require.Equal(t, []interface{}{
		[]interface{}{"$is", "node"},
		[]interface{}{"$name", "X"},
		[]interface{}{"$count", int64(2)},
		[]interface{}{"a", map[string]interface{}{"$is": "node", "$type": "number"}},
		[]interface{}{"b", map[string]interface{}{"$is": "node", "$type": "string"}},
	}, updates)
}

func TestListUpdatesAction(t *testing.T) {
	n := New("add")
	action := NewAction(PermissionRead, func(*ActionResult) error { return nil })
	action.AddParameter(Parameter{Name: "count", Type: value.Number, Default: value.NewInt(1)})
	require.NoError(t, action.AddResult(Parameter{Name: "count", Type: value.Number}))
	n.SetAction(action)

	require.Equal(t, []interface{}{
		[]interface{}{"$is", "node"},
		[]interface{}{"$invokable", "read"},
		[]interface{}{"$result", "values"},
		[]interface{}{"$params", []protocol.Column{{Name: "count", Type: "number", Default: int64(1)}}},
		[]interface{}{"$columns", []protocol.Column{{Name: "count", Type: "number"}}},
	}, n.ListUpdates())

	require.Error(t, action.AddResult(Parameter{Name: "x", Type: value.String, Default: value.NewString("")}))
	require.Error(t, action.AddResult(Parameter{Name: "x", Type: value.String, Editor: EditorTextArea}))
}

func TestApplyListUpdate(t *testing.T) {
	_, x := buildTree(t)
	x.AddInterface("sensor")
	x.AddInterface("thing")
	x.SetWritable(WritableWrite)
	x.SetAttribute("color", value.NewString("red"))

	snapshot := New("x")
	for _, update := range x.ListUpdates() {
		require.NoError(t, ApplyListUpdate(snapshot, update))
	}

	require.Equal(t, []string{"sensor", "thing"}, snapshot.Interfaces())
	require.Equal(t, WritableWrite, snapshot.Writable())
	require.Equal(t, "red", snapshot.Attribute("color").Str())
	require.Len(t, snapshot.Children(), 2)
	require.Equal(t, value.Number, snapshot.Child("a").ValueType())

	require.NoError(t, ApplyListUpdate(snapshot, map[string]interface{}{"name": "a", "change": "remove"}))
	require.NoError(t, ApplyListUpdate(snapshot, map[string]interface{}{"name": "@color", "change": "remove"}))
	require.Nil(t, snapshot.Child("a"))
	require.Nil(t, snapshot.Attribute("color"))

	require.Error(t, ApplyListUpdate(snapshot, []interface{}{"lonely"}))
	require.Error(t, ApplyListUpdate(snapshot, 42))
}
