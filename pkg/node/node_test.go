// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

func buildTree(t *testing.T) (*Manager, *Node) {
	m := NewManager()

	x, err := m.CreateRoot("x").Build()
	require.NoError(t, err)

	_, err = x.CreateChild("a").SetValueType(value.Number).SetValue(value.NewInt(1)).Build()
	require.NoError(t, err)
	_, err = x.CreateChild("b").SetValueType(value.String).SetValue(value.NewString("hi")).Build()
	require.NoError(t, err)

	return m, x
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in      string
		leading bool
		out     string
	}{
		{"", true, "/"},
		{"/", true, "/"},
		{"x/a", true, "/x/a"},
		{"/x/a/", true, "/x/a"},
		{"/x/a", false, "x/a"},
		{"/", false, ""},
	}

	for _, test := range tests {
		out := NormalizePath(test.in, test.leading)
		require.Equal(t, test.out, out, test.in)
		require.Equal(t, out, NormalizePath(out, test.leading), "not idempotent for %q", test.in)
	}
}

func TestGetNodeRoundTrip(t *testing.T) {
	m, x := buildTree(t)

	var walk func(n *Node)
	walk = func(n *Node) {
		found, tail, err := m.GetNode(n.Path())
		require.NoError(t, err)
		require.Empty(t, tail)
		require.Same(t, n, found)

		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(m.SuperRoot())

	n, tail, err := m.GetNode("/x/a/$type")
	require.NoError(t, err)
	require.Equal(t, "$type", tail)
	require.Same(t, x.Child("a"), n)

	n, tail, err = m.GetNode("/x/@color")
	require.NoError(t, err)
	require.Equal(t, "@color", tail)
	require.Same(t, x, n)

	_, _, err = m.GetNode("/x/q/a")
	require.True(t, errors.Is(err, protocol.ErrNotFound))
	require.Equal(t, "No such path: /x/q/a", err.Error())

	_, _, err = m.GetNode("/x/$is/a")
	require.True(t, errors.Is(err, protocol.ErrNotFound))
}

func TestChildrenInsertionOrder(t *testing.T) {
	m := NewManager()
	root, err := m.CreateRoot("root").Build()
	require.NoError(t, err)

	for _, name := range []string{"c", "a", "b"} {
		_, err := root.CreateChild(name).Build()
		require.NoError(t, err)
	}

	var names []string
	for _, child := range root.Children() {
		names = append(names, child.Name())
	}
	require.Equal(t, []string{"c", "a", "b"}, names)

	require.NotNil(t, root.RemoveChild("a"))
	require.Nil(t, root.RemoveChild("a"))
	require.Len(t, root.Children(), 2)
}

func TestCreateChildInvalidName(t *testing.T) {
	m := NewManager()

	for _, name := range []string{"", "a/b", "$a", "@a"} {
		_, err := m.CreateRoot(name).Build()
		require.Error(t, err, name)
	}
}

func TestCreateChildExisting(t *testing.T) {
	_, x := buildTree(t)

	b := x.CreateChild("a")
	require.True(t, b.Exists())

	n, err := b.SetConfig("unit", value.NewString("°C")).Build()
	require.NoError(t, err)
	require.Same(t, x.Child("a"), n)
	require.Equal(t, "°C", n.Config("unit").Str())
}

func TestSetValueTypeMismatch(t *testing.T) {
	_, x := buildTree(t)
	a := x.Child("a")

	err := a.SetValue(value.NewString("hello"))
	require.True(t, errors.Is(err, protocol.ErrTypeMismatch))
	require.Equal(t, "Type mismatch (got: string, expected: number)", err.Error())
	require.Equal(t, int64(1), a.Value().Int())

	require.NoError(t, a.SetValue(value.NewFloat(2.5)))
	require.Equal(t, 2.5, a.Value().Float())

	require.NoError(t, a.SetValue(nil))
	require.Nil(t, a.Value())
	require.Equal(t, value.Number, a.ValueType())
}

func TestSetValueMonotonicTimestamp(t *testing.T) {
	n := New("n")

	now := time.Now()
	require.NoError(t, n.SetValue(value.NewInt(1).WithTimestamp(now)))
	require.NoError(t, n.SetValue(value.NewInt(2).WithTimestamp(now.Add(-time.Hour))))

	require.Equal(t, int64(2), n.Value().Int())
	require.True(t, n.Value().Timestamp().Equal(now))
}

func TestUpdateConfig(t *testing.T) {
	n := New("rng")
	n.SetConfig("count", value.NewInt(0))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				n.UpdateConfig("count", func(prev *value.Value) *value.Value {
					return value.NewInt(prev.Int() + 1)
				})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	require.Equal(t, int64(800), n.Config("count").Int())
}

func TestEvents(t *testing.T) {
	m, x := buildTree(t)
	a := x.Child("a")

	events, cancel := a.Listen()
	defer cancel()

	m.Subscriptions().AddValueSub(a, 0)
	require.NoError(t, a.SetValue(value.NewInt(2)))
	m.Subscriptions().RemoveValueSub(0)

	for _, kind := range []EventKind{EventSubscribed, EventValueUpdated, EventUnsubscribed} {
		select {
		case e := <-events:
			require.Equal(t, kind, e.Kind)
			require.Same(t, a, e.Node)
		case <-time.After(time.Second):
			t.Fatalf("missing %v event", kind)
		}
	}

	parentEvents, parentCancel := x.Listen()
	_, err := x.CreateChild("c").Build()
	require.NoError(t, err)

	select {
	case e := <-parentEvents:
		require.Equal(t, EventChildAdded, e.Kind)
		require.Equal(t, "c", e.Child.Name())
	case <-time.After(time.Second):
		t.Fatal("missing child added event")
	}

	parentCancel()
	for range parentEvents {
	}
}
