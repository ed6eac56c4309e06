// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// ParseLogLevel maps a link's log level, e.g., "INFO" from a descriptor, to a
// logrus level. "none" and "off" keep only panics.
func ParseLogLevel(level string) (log.Level, error) {
	switch lower := strings.ToLower(strings.TrimSpace(level)); lower {
	case "none", "off":
		return log.PanicLevel, nil
	case "warning":
		return log.WarnLevel, nil
	default:
		lvl, err := log.ParseLevel(lower)
		if err != nil {
			return lvl, fmt.Errorf("%w: log level %q, expected one of none,error,warn,info,debug,trace", protocol.ErrConfigInvalid, level)
		}
		return lvl, nil
	}
}

// SetupLogging configures the global logger. An empty level or format keeps
// the current one; invalid values are reported and change nothing.
func SetupLogging(level, format string, reportCaller bool) error {
	var formatter log.Formatter
	switch format {
	case "":
	case "text":
		formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"}
	case "json":
		formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	default:
		return fmt.Errorf("%w: log format %q, expected text or json", protocol.ErrConfigInvalid, format)
	}

	if level != "" {
		lvl, err := ParseLogLevel(level)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
	}
	if formatter != nil {
		log.SetFormatter(formatter)
	}
	log.SetReportCaller(reportCaller)

	return nil
}
