// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package responder

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/protocol"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// envelopeRecorder stores each call as one envelope, like the connection's writer.
type envelopeRecorder struct {
	mutex     sync.Mutex
	envelopes [][]*protocol.Response
}

func (er *envelopeRecorder) WriteResponses(resps ...*protocol.Response) {
	er.mutex.Lock()
	er.envelopes = append(er.envelopes, resps)
	er.mutex.Unlock()
}

func (er *envelopeRecorder) WriteResponse(resp *protocol.Response) {
	er.WriteResponses(resp)
}

func (er *envelopeRecorder) all() [][]*protocol.Response {
	er.mutex.Lock()
	defer er.mutex.Unlock()
	return append([][]*protocol.Response(nil), er.envelopes...)
}

func (er *envelopeRecorder) last() []*protocol.Response {
	all := er.all()
	return all[len(all)-1]
}

func (er *envelopeRecorder) reset() {
	er.mutex.Lock()
	er.envelopes = nil
	er.mutex.Unlock()
}

func setup(t *testing.T) (*Responder, *envelopeRecorder, *node.Node) {
	manager := node.NewManager()

	x, err := manager.CreateRoot("x").Build()
	require.NoError(t, err)
	_, err = x.CreateChild("a").
		SetValueType(value.Number).
		SetValue(value.NewInt(1)).
		SetWritable(node.WritableWrite).
		Build()
	require.NoError(t, err)
	_, err = x.CreateChild("b").SetValueType(value.String).SetValue(value.NewString("hi")).Build()
	require.NoError(t, err)

	rec := &envelopeRecorder{}
	r := New(manager)
	r.SetWriter(rec)
	manager.Subscriptions().SetWriter(rec)

	return r, rec, x
}

func decodeRequests(t *testing.T, frame string) []*protocol.Request {
	env, err := protocol.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	return env.Requests
}

func TestListTwoChildren(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"list","path":"/x"}]}`))

	resps := rec.last()
	require.Len(t, resps, 1)
	require.Equal(t, protocol.StreamOpen, resps[0].State())
	require.Contains(t, resps[0].Updates, []interface{}{"a", map[string]interface{}{"$is": "node", "$type": "number", "$writable": "write"}})
	require.Contains(t, resps[0].Updates, []interface{}{"b", map[string]interface{}{"$is": "node", "$type": "string"}})
	require.True(t, r.Tracker().IsTracking(1))

	_, err := x.CreateChild("c").Build()
	require.NoError(t, err)

	resps = rec.last()
	require.Len(t, resps, 1)
	require.Equal(t, int32(1), resps[0].RID)
	require.Equal(t, []interface{}{[]interface{}{"c", map[string]interface{}{"$is": "node"}}}, resps[0].Updates)

	x.RemoveChild("c")
	require.Equal(t, []interface{}{map[string]interface{}{"name": "c", "change": "remove"}}, rec.last()[0].Updates)
}

func TestListUnknownPath(t *testing.T) {
	r, rec, _ := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"list","path":"/nope"}]}`))

	resp := rec.last()[0]
	require.True(t, resp.Closed())
	require.Equal(t, "No such path: /nope", resp.Error.Msg)
	require.False(t, r.Tracker().IsTracking(1))
}

func TestCloseListStream(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":5,"method":"list","path":"/x"}]}`))
	r.Handle(decodeRequests(t, `{"requests":[{"rid":5,"method":"close"}]}`))

	data, err := json.Marshal(rec.last())
	require.NoError(t, err)
	require.JSONEq(t, `[{"rid":5,"stream":"closed"}]`, string(data))
	require.False(t, r.Tracker().IsTracking(5))
	require.Equal(t, 0, r.Manager().Subscriptions().PathSubCount())

	// No further frames for rid 5.
	rec.reset()
	_, err = x.CreateChild("late").Build()
	require.NoError(t, err)
	require.Empty(t, rec.all())

	// Closing an unknown stream is a no-op.
	r.Handle(decodeRequests(t, `{"requests":[{"rid":5,"method":"close"}]}`))
	require.Empty(t, rec.all())
}

func TestRemovedNodeClosesListStream(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":2,"method":"list","path":"/x/b"}]}`))
	x.RemoveChild("b")

	found := false
	for _, env := range rec.all() {
		for _, resp := range env {
			if resp.RID == 2 && resp.Closed() {
				found = true
			}
		}
	}
	require.True(t, found)
	require.False(t, r.Tracker().IsTracking(2))
}

func TestSetValue(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":3,"method":"set","path":"/x/a","value":2}]}`))
	require.True(t, rec.last()[0].Closed())
	require.Nil(t, rec.last()[0].Error)
	require.Equal(t, int64(2), x.Child("a").Value().Int())

	r.Handle(decodeRequests(t, `{"requests":[{"rid":4,"method":"set","path":"/x/a/@unit","value":"°C"}]}`))
	require.Equal(t, "°C", x.Child("a").Attribute("unit").Str())

	r.Handle(decodeRequests(t, `{"requests":[{"rid":5,"method":"remove","path":"/x/a/@unit"}]}`))
	require.Nil(t, rec.last()[0].Error)
	require.Nil(t, x.Child("a").Attribute("unit"))
}

func TestSetTypeMismatch(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":7,"method":"set","path":"/x/a","value":"hello"}]}`))

	resp := rec.last()[0]
	require.Equal(t, int32(7), resp.RID)
	require.True(t, resp.Closed())
	require.Equal(t, "Type mismatch (got: string, expected: number)", resp.Error.Msg)
	require.Equal(t, int64(1), x.Child("a").Value().Int())
}

func TestSetNotWritable(t *testing.T) {
	r, rec, _ := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"set","path":"/x/b","value":"ho"}]}`))
	require.Equal(t, "Not writable", rec.last()[0].Error.Msg)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":2,"method":"remove","path":"/x/a"}]}`))
	require.Equal(t, "Not a valid reference", rec.last()[0].Error.Msg)
}

func TestUnknownMethodKeepsEnvelope(t *testing.T) {
	r, rec, _ := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[
		{"rid":1,"method":"poke","path":"/x"},
		{"rid":2,"method":"set","path":"/x/a","value":3}]}`))

	resps := rec.last()
	require.Len(t, resps, 2)
	require.Equal(t, int32(1), resps[0].RID)
	require.Equal(t, "Unknown method: poke", resps[0].Error.Msg)
	require.Equal(t, int32(2), resps[1].RID)
	require.Nil(t, resps[1].Error)
}

func TestInvokePanic(t *testing.T) {
	r, rec, x := setup(t)

	_, err := x.CreateChild("boom").
		SetAction(node.NewAction(node.PermissionRead, func(*node.ActionResult) error { panic("kaboom") })).
		Build()
	require.NoError(t, err)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"invoke","path":"/x/boom"}]}`))

	resp := rec.last()[0]
	require.True(t, resp.Closed())
	require.Equal(t, "kaboom", resp.Error.Msg)
	require.NotEmpty(t, resp.Error.Detail)
}

func TestInvokeNotInvokable(t *testing.T) {
	r, rec, x := setup(t)

	_, err := x.CreateChild("locked").
		SetAction(node.NewAction(node.PermissionNone, func(*node.ActionResult) error { return nil })).
		Build()
	require.NoError(t, err)

	r.Handle(decodeRequests(t, `{"requests":[
		{"rid":1,"method":"invoke","path":"/x/locked"},
		{"rid":2,"method":"invoke","path":"/x/a"}]}`))

	for _, resp := range rec.last() {
		require.Equal(t, "Not invokable", resp.Error.Msg)
	}
}

func TestInvokeOneShot(t *testing.T) {
	r, rec, x := setup(t)

	action := node.NewAction(node.PermissionRead, func(result *node.ActionResult) error {
		count := result.Parameter("count", value.NewInt(1))
		return result.AddRow(value.NewInt(count.Int() * 2))
	})
	action.AddParameter(node.Parameter{Name: "count", Type: value.Number, Default: value.NewInt(1)})
	require.NoError(t, action.AddResult(node.Parameter{Name: "count", Type: value.Number}))

	_, err := x.CreateChild("double").SetAction(action).Build()
	require.NoError(t, err)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":9,"method":"invoke","path":"/x/double","params":{"count":21}}]}`))

	data, err := json.Marshal(rec.last())
	require.NoError(t, err)
	require.JSONEq(t, `[{"rid":9,"stream":"closed","columns":[{"name":"count","type":"number"}],"updates":[[42]]}]`, string(data))
	require.False(t, r.Tracker().IsTracking(9))
}

func TestInvokeStreamingReplace(t *testing.T) {
	r, rec, x := setup(t)

	var streamed *node.ActionResult
	action := node.NewAction(node.PermissionRead, func(result *node.ActionResult) error {
		streamed = result
		return result.Update([]*value.Value{value.NewInt(1)}, []*value.Value{value.NewInt(2)})
	})
	action.SetInvokeMode(node.InvokeStreaming)
	require.NoError(t, action.AddResult(node.Parameter{Name: "c", Type: value.Number}))

	_, err := x.CreateChild("stream").SetAction(action).Build()
	require.NoError(t, err)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":4,"method":"invoke","path":"/x/stream"}]}`))

	data, err := json.Marshal(rec.last())
	require.NoError(t, err)
	require.JSONEq(t, `[{"rid":4,"stream":"open","columns":[{"name":"c","type":"number"}],"updates":[[1],[2]]}]`, string(data))
	require.True(t, r.Tracker().IsTracking(4))

	require.NoError(t, streamed.Replace(1, []*value.Value{value.NewInt(9)}))
	data, err = json.Marshal(rec.last())
	require.NoError(t, err)
	require.JSONEq(t, `[{"rid":4,"stream":"open","meta":{"from":1},"updates":[[9]]}]`, string(data))

	closed := make(chan struct{})
	streamed.OnClose(func() { close(closed) })

	r.Handle(decodeRequests(t, `{"requests":[{"rid":4,"method":"close"}]}`))
	<-closed

	rec.reset()
	require.Error(t, streamed.AddRow(value.NewInt(3)))
	require.Empty(t, rec.all())
}

func TestSubscribe(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"subscribe","paths":["/x/a","/x/nope","/x/b"]}]}`))

	envs := rec.all()
	require.Len(t, envs, 3)
	require.True(t, envs[0][0].Closed())

	update := envs[1][0].Updates[0].([]interface{})
	require.Equal(t, protocol.ValueSubRID, envs[1][0].RID)
	require.Equal(t, int32(0), update[0])
	require.Equal(t, int64(1), update[1])

	// The unresolvable path consumed sid 1.
	update = envs[2][0].Updates[0].([]interface{})
	require.Equal(t, int32(2), update[0])
	require.Equal(t, "hi", update[1])

	require.NoError(t, x.Child("a").SetValue(value.NewInt(2)))
	update = rec.last()[0].Updates[0].([]interface{})
	require.Equal(t, []interface{}{int32(0), int64(2)}, update[:2])

	r.Handle(decodeRequests(t, `{"requests":[{"rid":2,"method":"unsubscribe","paths":["/x/a"]}]}`))
	rec.reset()
	require.NoError(t, x.Child("a").SetValue(value.NewInt(3)))
	require.Empty(t, rec.all())
}

func TestReset(t *testing.T) {
	r, rec, _ := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[
		{"rid":1,"method":"list","path":"/x"},
		{"rid":2,"method":"subscribe","paths":["/x/a"]}]}`))
	require.Equal(t, 1, r.Tracker().Count())

	r.Reset()
	require.Equal(t, 0, r.Tracker().Count())
	require.Equal(t, 0, r.Manager().Subscriptions().ValueSubCount())
	require.Equal(t, 0, r.Manager().Subscriptions().PathSubCount())

	rec.reset()
	r.SetWriter(rec)
	r.Handle(decodeRequests(t, `{"requests":[{"rid":3,"method":"subscribe","paths":["/x/b"]}]}`))
	require.Equal(t, int32(0), rec.last()[0].Updates[0].([]interface{})[0])
}

// closedOnce checks that no frame of a RID follows its closed frame.
func closedOnce(t *testing.T, envs [][]*protocol.Response, rid int32) {
	t.Helper()

	closed := false
	for i, env := range envs {
		for _, resp := range env {
			if resp.RID != rid {
				continue
			}
			require.False(t, closed, "frame for rid %d in envelope %d follows its closed frame", rid, i)
			closed = resp.Closed()
		}
	}
	require.True(t, closed, "rid %d was never closed", rid)
}

func TestListNodeRemovedWithinEnvelope(t *testing.T) {
	r, rec, x := setup(t)

	_, err := x.CreateChild("drop").
		SetAction(node.NewAction(node.PermissionRead, func(*node.ActionResult) error {
			x.RemoveChild("a")
			return nil
		})).
		Build()
	require.NoError(t, err)

	r.Handle(decodeRequests(t, `{"requests":[
		{"rid":1,"method":"list","path":"/x/a"},
		{"rid":2,"method":"invoke","path":"/x/drop"}]}`))

	closedOnce(t, rec.all(), 1)
	require.False(t, r.Tracker().IsTracking(1))

	last := rec.last()
	require.Len(t, last, 1)
	require.Equal(t, int32(2), last[0].RID)
}

func TestListTwiceClosesFormerStream(t *testing.T) {
	r, rec, x := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[{"rid":1,"method":"list","path":"/x"}]}`))
	r.Handle(decodeRequests(t, `{"requests":[{"rid":2,"method":"list","path":"/x"}]}`))

	closedOnce(t, rec.all(), 1)
	require.False(t, r.Tracker().IsTracking(1))
	require.True(t, r.Tracker().IsTracking(2))
	require.Equal(t, 1, r.Manager().Subscriptions().PathSubCount())

	rec.reset()
	_, err := x.CreateChild("c").Build()
	require.NoError(t, err)

	resps := rec.last()
	require.Len(t, resps, 1)
	require.Equal(t, int32(2), resps[0].RID)
}

func TestInvalidRequests(t *testing.T) {
	r, rec, _ := setup(t)

	r.Handle(decodeRequests(t, `{"requests":[
		{"rid":0,"method":"list","path":"/x"},
		{"rid":1,"method":"list"},
		{"rid":2,"method":"set","value":1}]}`))

	resps := rec.last()
	require.Len(t, resps, 2)
	for i, resp := range resps {
		require.Equal(t, int32(i+1), resp.RID)
		require.True(t, resp.Closed())
		require.Contains(t, resp.Error.Msg, protocol.ErrInvalidRequest.Error())
	}
	require.Equal(t, 0, r.Tracker().Count())
}

func TestTrackerAdvance(t *testing.T) {
	rt := NewResponseTracker()

	cancelled := false
	rt.Track(7, func() { cancelled = true })

	require.Error(t, rt.Advance(7, protocol.StreamInitialized, func(func()) {}))
	require.NoError(t, rt.Advance(7, protocol.StreamOpen, func(func()) {}))

	var cancel func()
	require.NoError(t, rt.Advance(7, protocol.StreamClosed, func(c func()) { cancel = c }))
	require.False(t, rt.IsTracking(7))
	cancel()
	require.True(t, cancelled)

	require.ErrorIs(t, rt.Advance(7, protocol.StreamOpen, func(func()) {}), protocol.ErrStreamClosed)
}
