// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// File describes the TOML link file.
type File struct {
	Link    linkConf
	Logging logConf
	Storage storageConf
	Inspect inspectConf
}

// linkConf describes the Link-configuration block.
type linkConf struct {
	Name   string
	Broker string
	Key    string
	Nodes  string
	Zone   string
	Watch  bool

	// Data is sent as the handshake's linkData.
	Data map[string]interface{}
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// storageConf describes the snapshot store.
type storageConf struct {
	Dir  string
	Keep int
}

// inspectConf describes the inspection server.
type inspectConf struct {
	Listen string
}

// LoadFile parses a TOML link file. Unknown keys are an error.
func LoadFile(filename string) (conf File, err error) {
	md, err := toml.DecodeFile(filename, &conf)
	if err != nil {
		return
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		err = fmt.Errorf("unknown keys in %s: %v", filename, undecoded)
	}
	return
}
