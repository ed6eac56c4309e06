// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dslink-lister is a requester listing the broker's whole tree, starting at
// "/". The link stops after the last node was listed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iot-dsa/dslink-go/pkg/config"
	"github.com/iot-dsa/dslink-go/pkg/connection"
	"github.com/iot-dsa/dslink-go/pkg/link"
)

var args config.Arguments

var rootCmd = &cobra.Command{
	Use:   "dslink-lister",
	Short: "Requester recursively listing the broker's tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.AutoConfigure("requester", args, true, false)
		if err != nil {
			return err
		}

		dl, err := link.New(conf, link.Options{})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		return dl.Run(ctx, func(cc *connection.ClientConnected) {
			log.WithField("broker", cc.Session.DsID).Info("Requester connected")
			newLister(dl.Requester(), cancel).list("/")
		})
	},
}

func init() {
	config.BindFlags(rootCmd, &args)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Fatal("dslink-lister errored")
	}
}
