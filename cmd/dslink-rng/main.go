// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dslink-rng is a responder offering random number generator nodes. Children
// of /rng are added and removed by invoking /rng/addRNG and /rng/removeRNG;
// each subscribed child receives a new random value every two seconds.
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
	Use:   "dslink-rng",
	Short: "Responder serving random number generator nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := config.AutoConfigure("rng", args, false, true)
		if err != nil {
			return err
		}

		dl, err := link.New(conf, link.Options{})
		if err != nil {
			return err
		}

		// The tree is restored first so restored children get their emitters.
		if err := dl.Restore(); err != nil {
			return err
		}
		r, err := initRNG(dl.Tree(), dl.Scheduler())
		if err != nil {
			return err
		}
		log.WithField("count", r.Count()).Info("Initialized RNG")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return dl.Run(ctx, func(cc *connection.ClientConnected) {
			log.WithField("path", cc.Session.Path).Info("Responder connected")
		})
	},
}

func init() {
	config.BindFlags(rootCmd, &args)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Fatal("dslink-rng errored")
	}
}
