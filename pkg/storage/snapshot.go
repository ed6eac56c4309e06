// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import "time"

// Snapshot is one stored version of a serialized node tree.
type Snapshot struct {
	Id string `badgerhold:"key"`

	Created time.Time `badgerholdIndex:"Created"`
	Digest  string

	Data []byte
}
