// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"
	"strings"
)

// Writable describes who may change a node's value.
type Writable uint8

const (
	WritableNever Writable = iota
	WritableConfig
	WritableRead
	WritableWrite
)

var writableNames = []string{"never", "config", "read", "write"}

func (w Writable) String() string {
	if int(w) < len(writableNames) {
		return writableNames[w]
	}
	return fmt.Sprintf("writable(%d)", uint8(w))
}

// ParseWritable maps a name, case insensitive, to a Writable.
func ParseWritable(name string) (Writable, error) {
	for i, n := range writableNames {
		if strings.EqualFold(n, name) {
			return Writable(i), nil
		}
	}
	return WritableNever, fmt.Errorf("unknown writable %q", name)
}

// Permission required to invoke an Action.
type Permission uint8

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionConfig
	PermissionNever
)

var permissionNames = []string{"none", "read", "write", "config", "never"}

func (p Permission) String() string {
	if int(p) < len(permissionNames) {
		return permissionNames[p]
	}
	return fmt.Sprintf("permission(%d)", uint8(p))
}

// ParsePermission maps a name, case insensitive, to a Permission.
func ParsePermission(name string) (Permission, error) {
	for i, n := range permissionNames {
		if strings.EqualFold(n, name) {
			return Permission(i), nil
		}
	}
	return PermissionNone, fmt.Errorf("unknown permission %q", name)
}
