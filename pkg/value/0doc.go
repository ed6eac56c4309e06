// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package value provides the typed Value carried by nodes, parameters and
// subscription updates, together with its conversion from and to the
// dynamic JSON representation used on the wire.
//
// A Value is one of the five Types: Number, String, Bool, Map or Array.
// Numbers keep an integer and a floating point representation. Each Value is
// stamped with a creation time which is rendered as ISO-8601 with
// millisecond precision and the local timezone offset.
//
//	v := value.NewInt(23)
//	w, err := value.FromJSON(json.Number("4.2"))
package value
