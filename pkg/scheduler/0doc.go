// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler executes a link's background work: immediate tasks on a
// bounded worker pool, delayed tasks and named periodic jobs, e.g., value
// emitters or the serializer's save cycle.
package scheduler
