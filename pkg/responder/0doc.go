// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package responder serves requests of a remote requester against the local
// node tree.
//
// Each envelope of requests results in exactly one envelope of responses,
// holding one response per request in the request order. Errors and panics
// inside a method are converted into a closed response carrying the error.
// Streams left open, list and streaming invoke, are tracked by their RID
// until either side closes them; afterwards no further frame bearing this
// RID is written.
package responder
