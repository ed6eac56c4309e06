// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package node contains the local node tree of a DSLink.
//
// A Manager owns a synthetic super root whose children are the user defined
// roots. Each Node carries an optional typed value, configurations ($),
// read only configurations ($$), attributes (@) and an optional Action.
// Mutations of attached nodes are forwarded synchronously to the
// SubscriptionManager, which produces list stream and value subscription
// updates, and to the node's event listeners.
package node
