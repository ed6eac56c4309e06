// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package serializer persists the serializable part of a node tree as one
// JSON document.
//
// Each node is an object of its metadata, keyed by the sigils "$", "$$" and
// "@", its value as "?value" and its children keyed by their names. Children
// keep their insertion order in both directions.
//
// A FileStore writes the document and keeps an xz compressed backup of the
// previous version, a Manager saves changed trees periodically and a Watcher
// reloads the file after external edits.
package serializer
