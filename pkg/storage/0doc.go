// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage persists versioned snapshots of serialized node trees in a
// badgerhold database. A Store can back the serializer's restore fallback.
package storage
