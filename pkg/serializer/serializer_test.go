// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serializer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

func buildTree(t *testing.T) *node.Manager {
	m := node.NewManager()

	x, err := m.CreateRoot("x").
		SetDisplayName("The X").
		AddInterface("a").
		AddInterface("b").
		SetConfig("count", value.NewInt(3)).
		SetAttribute("unit", value.NewString("°C")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := x.CreateChild(name).
			SetValueType(value.Number).
			SetValue(value.NewFloat(1.5)).
			SetWritable(node.WritableWrite).
			Build(); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := x.CreateChild("secret").
		SetPassword([]byte("hunter2")).
		SetRoConfig("ro", value.NewBool(true)).
		SetProfile("broker").
		SetValueType(value.Map).
		SetValue(value.NewMap(map[string]interface{}{"k": "v"})).
		Build(); err != nil {
		t.Fatal(err)
	}

	if _, err := x.CreateChild("volatile").SetSerializable(false).Build(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateRoot("defs").SetSerializable(false).Build(); err != nil {
		t.Fatal(err)
	}

	return m
}

func names(nodes []*node.Node) (out []string) {
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return
}

func compareNodes(t *testing.T, a, b *node.Node) {
	t.Helper()

	if a.DisplayName() != b.DisplayName() || a.Profile() != b.Profile() || a.Writable() != b.Writable() {
		t.Fatalf("%v: metadata differs", a)
	}
	if a.ValueType() != b.ValueType() || !a.Value().Equal(b.Value()) {
		t.Fatalf("%v: value differs, %v != %v", a, a.Value(), b.Value())
	}
	if !bytes.Equal(a.Password(), b.Password()) {
		t.Fatalf("%v: password differs", a)
	}
	if !reflect.DeepEqual(a.Interfaces(), b.Interfaces()) || !reflect.DeepEqual(a.Mixins(), b.Mixins()) {
		t.Fatalf("%v: interfaces or mixins differ", a)
	}

	for _, pair := range [][2]map[string]*value.Value{
		{a.Configs(), b.Configs()},
		{a.RoConfigs(), b.RoConfigs()},
		{a.Attributes(), b.Attributes()},
	} {
		if len(pair[0]) != len(pair[1]) {
			t.Fatalf("%v: metadata maps differ, %v != %v", a, pair[0], pair[1])
		}
		for k, v := range pair[0] {
			if !v.Equal(pair[1][k]) {
				t.Fatalf("%v: %s differs", a, k)
			}
		}
	}

	var serializable []*node.Node
	for _, child := range a.Children() {
		if child.Serializable() {
			serializable = append(serializable, child)
		}
	}
	if !reflect.DeepEqual(names(serializable), names(b.Children())) {
		t.Fatalf("%v: children differ, %v != %v", a, names(serializable), names(b.Children()))
	}
	for _, child := range serializable {
		compareNodes(t, child, b.Child(child.Name()))
	}
}

func TestRoundTrip(t *testing.T) {
	orig := buildTree(t)

	data, err := Serialize(orig)
	if err != nil {
		t.Fatal(err)
	}

	restored := node.NewManager()
	if err := Deserialize(restored, data); err != nil {
		t.Fatal(err)
	}

	if roots := names(restored.SuperRoot().Children()); !reflect.DeepEqual(roots, []string{"x"}) {
		t.Fatalf("unexpected roots %v", roots)
	}
	compareNodes(t, orig.SuperRoot().Child("x"), restored.SuperRoot().Child("x"))

	again, err := Serialize(restored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Fatalf("serialization is not stable:\n%s\n%s", data, again)
	}
}

func TestSerializeFormat(t *testing.T) {
	data, err := Serialize(buildTree(t))
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	x := doc["x"]
	if x["$name"] != "The X" || x["$interface"] != "a|b" || x["$count"] != 3.0 || x["@unit"] != "°C" {
		t.Fatalf("unexpected metadata %v", x)
	}
	if _, ok := x["volatile"]; ok {
		t.Fatal("non-serializable child was serialized")
	}

	alpha := x["alpha"].(map[string]interface{})
	if alpha["$type"] != "number" || alpha[ValueKey] != 1.5 || alpha["$writable"] != "write" {
		t.Fatalf("unexpected child %v", alpha)
	}

	secret := x["secret"].(map[string]interface{})
	if secret["$$password"] != "hunter2" || secret["$$ro"] != true || secret["$is"] != "broker" {
		t.Fatalf("unexpected child %v", secret)
	}
}

func TestDeserializeMerges(t *testing.T) {
	m := node.NewManager()
	x, err := m.CreateRoot("x").Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := x.CreateChild("kept").Build(); err != nil {
		t.Fatal(err)
	}

	doc := `{"x":{"$count":1,"new":{"$type":"string","?value":"hi"}}}`
	if err := Deserialize(m, []byte(doc)); err != nil {
		t.Fatal(err)
	}

	if x.Child("kept") == nil || x.Child("new") == nil {
		t.Fatalf("unexpected children %v", names(x.Children()))
	}
	if v := x.Child("new").Value(); v == nil || v.Str() != "hi" {
		t.Fatalf("unexpected value %v", v)
	}
	if v := x.Config("count"); v == nil || v.Int() != 1 {
		t.Fatalf("unexpected config %v", v)
	}

	if err := Deserialize(m, []byte(`{"x":{"$type":"nope"}}`)); err == nil {
		t.Fatal("invalid type was accepted")
	}
	if err := Deserialize(m, []byte(`[]`)); err == nil {
		t.Fatal("array document was accepted")
	}
}

func TestFileStoreBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.json")
	fs := NewFileStore(path)

	if _, err := fs.Load(); !os.IsNotExist(err) {
		t.Fatalf("expected a missing file, got %v", err)
	}

	if err := fs.Save([]byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := fs.Save([]byte(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}

	if data, err := fs.Load(); err != nil {
		t.Fatal(err)
	} else if string(data) != `{"v":2}` {
		t.Fatalf("unexpected document %s", data)
	}

	// The backup holds the previous version.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if data, err := fs.Load(); err != nil {
		t.Fatal(err)
	} else if string(data) != `{"v":1}` {
		t.Fatalf("unexpected backup %s", data)
	}
}

type fakeCron struct {
	jobs map[string]func()
}

func (fc *fakeCron) Register(name string, task func(), _ time.Duration) error {
	fc.jobs[name] = task
	return nil
}

func (fc *fakeCron) Unregister(name string) {
	delete(fc.jobs, name)
}

type memorySnapshots struct {
	docs [][]byte
}

func (ms *memorySnapshots) Push(data []byte) error {
	ms.docs = append(ms.docs, append([]byte(nil), data...))
	return nil
}

func (ms *memorySnapshots) Latest() ([]byte, error) {
	if len(ms.docs) == 0 {
		return nil, os.ErrNotExist
	}
	return ms.docs[len(ms.docs)-1], nil
}

func TestManager(t *testing.T) {
	dir := t.TempDir()
	tree := buildTree(t)
	tree.TakeChanged()

	snapshots := &memorySnapshots{}
	m := NewManager(tree, NewFileStore(filepath.Join(dir, "nodes.json")), snapshots)

	cron := &fakeCron{jobs: make(map[string]func())}
	if err := m.Start(cron); err != nil {
		t.Fatal(err)
	}

	// Unchanged trees are not saved.
	cron.jobs[jobName]()
	if _, err := os.Stat(m.Store().Path()); !os.IsNotExist(err) {
		t.Fatal("unchanged tree was saved")
	}

	tree.SuperRoot().Child("x").SetConfig("count", value.NewInt(4))
	cron.jobs[jobName]()
	if len(snapshots.docs) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snapshots.docs))
	}

	tree.SuperRoot().Child("x").SetConfig("count", value.NewInt(5))
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, ok := cron.jobs[jobName]; ok {
		t.Fatal("job is still registered")
	}

	restored := node.NewManager()
	if err := NewManager(restored, NewFileStore(m.Store().Path()), nil).Restore(); err != nil {
		t.Fatal(err)
	}
	if v := restored.SuperRoot().Child("x").Config("count"); v == nil || v.Int() != 5 {
		t.Fatalf("unexpected restored config %v", v)
	}
	if restored.TakeChanged() {
		t.Fatal("restoring marked the tree as changed")
	}

	// Without any file, the latest snapshot is used.
	fromSnapshot := node.NewManager()
	if err := NewManager(fromSnapshot, NewFileStore(filepath.Join(dir, "other.json")), snapshots).Restore(); err != nil {
		t.Fatal(err)
	}
	if v := fromSnapshot.SuperRoot().Child("x").Config("count"); v == nil || v.Int() != 5 {
		t.Fatalf("unexpected snapshot config %v", v)
	}
}

func TestWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.json")
	store := NewFileStore(path)
	if err := store.Save([]byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	tree := node.NewManager()
	reloaded := make(chan error, 8)
	w, err := newWatcher(store, tree, func(err error) { reloaded <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"edited":{"$name":"Edited"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-reloaded:
			if err != nil {
				continue
			}
			if n := tree.SuperRoot().Child("edited"); n != nil && n.DisplayName() == "Edited" {
				return
			}
		case <-deadline:
			t.Fatal("edited nodes file was not reloaded")
		}
	}
}
