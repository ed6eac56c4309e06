// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package requester issues requests to the remote responder.
//
// One-shot requests, set, remove, subscribe and unsubscribe, return a Future.
// List and invoke return a Stream delivering each response in order until the
// stream was closed by either side. Value subscriptions are multiplexed by
// their SID on the rid 0 stream and delivered per Subscription.
package requester
