// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iot-dsa/dslink-go/pkg/node"
	"github.com/iot-dsa/dslink-go/pkg/scheduler"
	"github.com/iot-dsa/dslink-go/pkg/value"
)

func invoke(t *testing.T, n *node.Node, count int) (int64, error) {
	result := node.NewActionResult(n, map[string]interface{}{"count": count})
	if err := n.Action().Invoke(result); err != nil {
		return 0, err
	}

	batch := result.Flush()
	require.Len(t, batch.Rows, 1)
	return batch.Rows[0][0].(int64), nil
}

func TestAddRemove(t *testing.T) {
	sched := scheduler.New(1)
	defer sched.Stop()

	tree := node.NewManager()
	r, err := initRNG(tree, sched)
	require.NoError(t, err)

	parent := tree.SuperRoot().Child("rng")
	total, err := invoke(t, parent.Child("addRNG"), 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, 3, r.Count())
	for _, name := range []string{"rng_0", "rng_1", "rng_2"} {
		require.NotNil(t, parent.Child(name), name)
	}

	total, err = invoke(t, parent.Child("removeRNG"), 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.NotNil(t, parent.Child("rng_0"))
	require.Nil(t, parent.Child("rng_1"))
	require.Nil(t, parent.Child("rng_2"))

	// Removing more than exists stops at zero.
	total, err = invoke(t, parent.Child("removeRNG"), 5)
	require.NoError(t, err)
	require.EqualValues(t, 0, total)
	require.Nil(t, parent.Child("rng_0"))

	_, err = invoke(t, parent.Child("addRNG"), -1)
	require.ErrorIs(t, err, errNegativeCount)
}

func TestEmitterFollowsSubscription(t *testing.T) {
	sched := scheduler.New(1)
	defer sched.Stop()

	tree := node.NewManager()
	_, err := initRNG(tree, sched)
	require.NoError(t, err)

	parent := tree.SuperRoot().Child("rng")
	_, err = invoke(t, parent.Child("addRNG"), 1)
	require.NoError(t, err)

	child := parent.Child("rng_0")
	tree.Subscriptions().AddValueSub(child, 0)

	require.Eventually(t, func() bool {
		return sched.Registered("/rng/rng_0")
	}, time.Second, 10*time.Millisecond)

	tree.Subscriptions().RemoveValueSub(0)
	require.Eventually(t, func() bool {
		return !sched.Registered("/rng/rng_0")
	}, time.Second, 10*time.Millisecond)
}

func TestRestoredChildren(t *testing.T) {
	sched := scheduler.New(1)
	defer sched.Stop()

	tree := node.NewManager()
	parent, err := tree.CreateRoot("rng").SetConfig("count", value.NewInt(1)).Build()
	require.NoError(t, err)
	child, err := parent.CreateChild("rng_0").SetValueType(value.Number).SetValue(value.NewInt(7)).Build()
	require.NoError(t, err)

	r, err := initRNG(tree, sched)
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	tree.Subscriptions().AddValueSub(child, 0)
	require.Eventually(t, func() bool {
		return sched.Registered("/rng/rng_0")
	}, time.Second, 10*time.Millisecond)

	// The emitter's first value replaces the restored one.
	require.Eventually(t, func() bool {
		return !child.Value().Equal(value.NewInt(7))
	}, time.Second, 10*time.Millisecond)

	_, err = invoke(t, parent.Child("removeRNG"), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !sched.Registered("/rng/rng_0")
	}, time.Second, 10*time.Millisecond)
}
