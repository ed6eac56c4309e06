// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"fmt"
	"strings"
)

// NormalizePath strips trailing slashes and adds or removes the leading one.
// The root is "/" if a leading slash is required, an empty string otherwise.
func NormalizePath(path string, leadingSlash bool) string {
	path = strings.TrimRight(path, "/")

	if leadingSlash {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
	} else {
		path = strings.TrimLeft(path, "/")
	}

	return path
}

// IsReference checks if a path segment addresses a configuration or an attribute.
func IsReference(segment string) bool {
	return strings.HasPrefix(segment, "$") || strings.HasPrefix(segment, "@")
}

// JoinPath appends a child name to a parent's path.
func JoinPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// ValidateName checks a child's name. Names must be non-empty, must not
// contain slashes and must not start with a reference sigil.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty node name")
	case strings.Contains(name, "/"):
		return fmt.Errorf("node name %q contains a slash", name)
	case IsReference(name):
		return fmt.Errorf("node name %q starts with a reference sigil", name)
	default:
		return nil
	}
}
