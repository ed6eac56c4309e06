// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package protocol describes the JSON records exchanged between a DSLink and
// its broker: the envelope with its "requests" and "responses" arrays, the
// request and response records, stream states and the error kinds.
//
// A single frame might look like this:
//
//	{"requests":[{"rid":1,"method":"list","path":"/"}],
//	 "responses":[{"rid":0,"updates":[[0,23,"2026-10-18T12:30:15.123+02:00"]]}]}
package protocol
