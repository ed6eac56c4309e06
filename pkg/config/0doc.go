// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config holds a DSLink's Configuration and assembles it from
// command line flags, an optional TOML link file and the dslink.json
// descriptor's defaults.
//
// A TOML link file might look like this:
//
//	[link]
//	name      = "rng"
//	broker    = "http://localhost:8080/conn"
//	key       = ".key"
//	nodes     = "nodes.json"
//	zone      = "default"
//	watch     = true
//
//	[logging]
//	level         = "debug"
//	report-caller = false
//	format        = "text"
//
//	[storage]
//	dir  = "store"
//	keep = 16
//
//	[inspect]
//	listen = "127.0.0.1:8081"
package config
