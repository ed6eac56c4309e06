// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

// emitInterval between two random values of a subscribed node.
const emitInterval = 2 * time.Second

var errNegativeCount = errors.New("count < 0")

// cron runs the value emitters.
type cron interface {
	Register(name string, task func(), interval time.Duration) error
	Unregister(name string)
}

// rng manages the random number nodes below a parent node.
type rng struct {
	parent *node.Node
	cron   cron

	mutex     sync.Mutex
	listeners map[string]func()
}

// initRNG creates or extends the "rng" root with its actions and sets up
// the emitters of restored children.
func initRNG(tree *node.Manager, cron cron) (*rng, error) {
	parent, err := tree.CreateRoot("rng").Build()
	if err != nil {
		return nil, err
	}
	if parent.Config("count") == nil {
		parent.SetConfig("count", value.NewInt(0))
	}

	r := &rng{
		parent:    parent,
		cron:      cron,
		listeners: make(map[string]func()),
	}

	if _, err := parent.CreateChild("addRNG").
		SetSerializable(false).
		SetAction(r.countAction(r.add)).
		Build(); err != nil {
		return nil, err
	}
	if _, err := parent.CreateChild("removeRNG").
		SetSerializable(false).
		SetAction(r.countAction(r.remove)).
		Build(); err != nil {
		return nil, err
	}

	for _, child := range parent.Children() {
		if child.Action() == nil {
			r.setup(child)
		}
	}
	return r, nil
}

// countAction invokes f with the "count" parameter and returns its result.
func (r *rng) countAction(f func(count int) int) *node.Action {
	action := node.NewAction(node.PermissionRead, func(result *node.ActionResult) error {
		count := int(result.Parameter("count", value.NewInt(1)).Int())
		if count < 0 {
			return errNegativeCount
		}
		return result.AddRow(value.NewInt(int64(f(count))))
	})

	action.AddParameter(node.Parameter{Name: "count", Type: value.Number, Default: value.NewInt(1)})
	if err := action.AddResult(node.Parameter{Name: "count", Type: value.Number}); err != nil {
		panic(err)
	}
	return action
}

func childName(i int) string {
	return fmt.Sprintf("rng_%d", i)
}

// add creates count new children and returns the new total.
func (r *rng) add(count int) int {
	max := int(r.parent.UpdateConfig("count", func(prev *value.Value) *value.Value {
		return value.NewInt(prev.Int() + int64(count))
	}).Int())

	for i := max - count; i < max; i++ {
		child, err := r.parent.CreateChild(childName(i)).
			SetValueType(value.Number).
			SetValue(value.NewInt(0)).
			Build()
		if err != nil {
			log.WithError(err).WithField("name", childName(i)).Warn("Creating RNG child errored")
			continue
		}

		r.setup(child)
		log.WithField("path", child.Path()).Info("Created RNG child")
	}
	return max
}

// remove deletes up to count children, starting with the highest, and
// returns the new total.
func (r *rng) remove(count int) int {
	var max int
	min := int(r.parent.UpdateConfig("count", func(prev *value.Value) *value.Value {
		max = int(prev.Int())
		if next := max - count; next > 0 {
			return value.NewInt(int64(next))
		}
		return value.NewInt(0)
	}).Int())

	for ; max > min; max-- {
		path := node.JoinPath(r.parent.Path(), childName(max-1))
		if child := r.parent.RemoveChild(childName(max - 1)); child == nil {
			continue
		}

		r.teardown(path)
		log.WithField("path", path).Info("Removed RNG child")
	}
	return min
}

// setup starts an emitter for child while it is subscribed.
func (r *rng) setup(child *node.Node) {
	// Removed children have no path anymore.
	path := child.Path()
	events, cancel := child.Listen()

	r.mutex.Lock()
	r.listeners[path] = cancel
	r.mutex.Unlock()

	go func() {
		for e := range events {
			switch e.Kind {
			case node.EventSubscribed:
				r.subscribed(path, e.Node)
			case node.EventUnsubscribed:
				r.cron.Unregister(path)
				log.WithField("path", path).Info("Unsubscribed")
			}
		}
	}()
}

func (r *rng) subscribed(path string, n *node.Node) {
	logger := log.WithField("path", path)
	logger.Info("Subscribed")

	emit := func() {
		v := value.NewInt(int64(rand.Int31()))
		if err := n.SetValue(v); err != nil {
			logger.WithError(err).Warn("Setting random value errored")
			return
		}
		logger.WithField("value", v.Int()).Debug("New random value")
	}

	emit()
	if err := r.cron.Register(path, emit, emitInterval); err != nil {
		logger.WithError(err).Debug("Emitter is already running")
	}
}

// teardown stops listening to a removed child and its emitter.
func (r *rng) teardown(path string) {
	r.mutex.Lock()
	cancel, ok := r.listeners[path]
	delete(r.listeners, path)
	r.mutex.Unlock()

	if ok {
		cancel()
	}
	r.cron.Unregister(path)
}

// Count of children as stored in the parent's configuration.
func (r *rng) Count() int {
	return int(r.parent.Config("count").Int())
}
