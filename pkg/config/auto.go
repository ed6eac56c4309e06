// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iot-dsa/dslink-go/pkg/handshake"
	"github.com/iot-dsa/dslink-go/pkg/storage"
)

// DefaultDescriptor is the dslink.json path used if none was given.
const DefaultDescriptor = "dslink.json"

// Arguments from the command line. Empty fields were not set.
type Arguments struct {
	Broker string
	Log    string
	Key    string
	Nodes  string
	DSLink string
	Config string
}

// BindFlags registers the common link flags as persistent flags of a command.
func BindFlags(cmd *cobra.Command, args *Arguments) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&args.Broker, "broker", "b", "", "broker's handshake endpoint, e.g., http://localhost:8080/conn")
	flags.StringVarP(&args.Log, "log", "l", "", "log level")
	flags.StringVarP(&args.Key, "key", "k", "", "key file, created if missing")
	flags.StringVarP(&args.Nodes, "nodes", "n", "", "nodes file")
	flags.StringVarP(&args.DSLink, "dslink", "d", DefaultDescriptor, "dslink.json descriptor")
	flags.StringVarP(&args.Config, "config", "c", "", "TOML link file")
}

// first non empty string.
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AutoConfigure builds a validated Configuration. Each field is taken from
// the command line, the TOML link file or the descriptor's default, in this
// order. The logger is set up and keys are loaded or generated.
func AutoConfigure(name string, args Arguments, requester, responder bool) (*Configuration, error) {
	var file File
	if args.Config != "" {
		var err error
		if file, err = LoadFile(args.Config); err != nil {
			return nil, err
		}
	}

	desc := &Descriptor{}
	if d, err := LoadDescriptor(first(args.DSLink, DefaultDescriptor)); err == nil {
		desc = d
	} else if !errors.Is(err, os.ErrNotExist) || args.Config == "" {
		return nil, err
	}

	conf := &Configuration{
		DsID:           first(file.Link.Name, name),
		ConnectionType: WebSocket,
		IsRequester:    requester,
		IsResponder:    responder,
		Zone:           file.Link.Zone,
		LinkData:       file.Link.Data,

		LogLevel:     first(args.Log, file.Logging.Level, desc.Default("log")),
		LogFormat:    file.Logging.Format,
		ReportCaller: file.Logging.ReportCaller,

		SerializationPath: first(args.Nodes, file.Link.Nodes, desc.Default("nodes")),
		StoreDir:          file.Storage.Dir,
		SnapshotKeep:      file.Storage.Keep,
		InspectListen:     file.Inspect.Listen,
		WatchNodes:        file.Link.Watch,
	}
	if conf.StoreDir != "" && conf.SnapshotKeep == 0 {
		conf.SnapshotKeep = storage.DefaultKeep
	}

	if err := SetupLogging(conf.LogLevel, conf.LogFormat, conf.ReportCaller); err != nil {
		return nil, err
	}

	if broker := first(args.Broker, file.Link.Broker, desc.Default("broker")); broker != "" {
		if err := conf.SetAuthEndpoint(broker); err != nil {
			return nil, err
		}
	}

	if keyPath := first(args.Key, file.Link.Key, desc.Default("key")); keyPath != "" {
		keys, err := handshake.LoadOrGenerateKeys(keyPath)
		if err != nil {
			return nil, err
		}
		conf.Keys = keys
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dsId":   conf.DsIDWithHash(),
		"broker": conf.AuthEndpoint.String(),
		"nodes":  conf.SerializationPath,
	}).Debug("Configured link")
	return conf, nil
}
