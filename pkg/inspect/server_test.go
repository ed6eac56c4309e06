// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inspect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

func newTestServer(t *testing.T) *Server {
	tree := node.NewManager()
	x, err := tree.CreateRoot("x").SetConfig("count", value.NewInt(2)).Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := x.CreateChild("a").SetValueType(value.Number).SetValue(value.NewInt(1)).Build(); err != nil {
		t.Fatal(err)
	}
	if _, err := x.CreateChild("b").SetValueType(value.String).SetValue(value.NewString("hi")).Build(); err != nil {
		t.Fatal(err)
	}

	return NewServer(mux.NewRouter(), tree, func() Status {
		return Status{DsID: "test-abc", State: "CONNECTED", IsResponder: true}
	})
}

func get(t *testing.T, s *Server, path string, out interface{}) int {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s failed: %v", path, err)
		}
	}
	return rec.Code
}

func TestTree(t *testing.T) {
	s := newTestServer(t)

	var root nodeView
	if code := get(t, s, "/nodes", &root); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(root.Children) != 1 || root.Children[0].Path != "/x" {
		t.Fatalf("unexpected roots %v", root.Children)
	}
	if x := root.Children[0]; len(x.Children) != 2 || x.Children[1].Value != "hi" {
		t.Fatalf("unexpected children %v", x.Children)
	}
}

func TestNode(t *testing.T) {
	s := newTestServer(t)

	var a nodeView
	if code := get(t, s, "/nodes/x/a", &a); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	} else if a.Path != "/x/a" || a.Value != 1.0 || a.Ts == "" {
		t.Fatalf("unexpected node %v", a)
	} else if a.Metadata["$type"] != "number" {
		t.Fatalf("unexpected metadata %v", a.Metadata)
	}

	var count interface{}
	if code := get(t, s, "/nodes/x/$count", &count); code != http.StatusOK || count != 2.0 {
		t.Fatalf("unexpected config %d %v", code, count)
	}

	for _, path := range []string{"/nodes/x/c", "/nodes/x/$nope"} {
		var e errorView
		if code := get(t, s, path, &e); code != http.StatusNotFound {
			t.Fatalf("%s: unexpected status %d", path, code)
		} else if e.Error == "" {
			t.Fatalf("%s: missing error", path)
		}
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	s.tree.Subscriptions().AddValueSub(s.tree.SuperRoot().Child("x").Child("a"), 0)

	var status Status
	if code := get(t, s, "/status", &status); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if status.DsID != "test-abc" || status.State != "CONNECTED" || status.ValueSubs != 1 {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestStartClose(t *testing.T) {
	s := newTestServer(t)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/status", s.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
