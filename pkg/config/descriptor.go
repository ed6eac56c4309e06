// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// param of the descriptor's configs object, e.g., {"type": "path", "default": ".key"}.
type param struct {
	Type    string  `json:"type,omitempty"`
	Desc    string  `json:"desc,omitempty"`
	Default *string `json:"default,omitempty"`
}

// Descriptor is the dslink.json file shipped with a link.
type Descriptor struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Main    string           `json:"main"`
	Configs map[string]param `json:"configs"`
}

// LoadDescriptor reads and validates a dslink.json file.
func LoadDescriptor(filename string) (*Descriptor, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseDescriptor(data)
}

// ParseDescriptor parses and validates a dslink.json document. The configs
// object must name a broker and carry defaults for log, key and nodes.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw["configs"]; !ok {
		return nil, fmt.Errorf("%w: missing `configs` field", protocol.ErrConfigInvalid)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}

	var errs *multierror.Error
	if _, ok := d.Configs["broker"]; !ok {
		errs = multierror.Append(errs, fmt.Errorf("%w: missing config field of broker", protocol.ErrConfigInvalid))
	}
	for _, name := range []string{"log", "key", "nodes"} {
		if p, ok := d.Configs[name]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("%w: missing config field of %s", protocol.ErrConfigInvalid, name))
		} else if p.Default == nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: missing default value in config of %s", protocol.ErrConfigInvalid, name))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Default value of a config field or an empty string.
func (d *Descriptor) Default(field string) string {
	if p, ok := d.Configs[field]; ok && p.Default != nil {
		return *p.Default
	}
	return ""
}
