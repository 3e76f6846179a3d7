// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

const remoteRmGuard = "i-realise-this-may-break-other-peoples-builds-in-the-future"

var remoteRmConfirmed bool

// remoteRmCmd represents the remote-rm command
var remoteRmCmd = &cobra.Command{
	Use:   "remote-rm <id>",
	Short: "Delete an artifact from the repository by exact identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remoteRmConfirmed {
			return errors.New("refusing to delete without --" + remoteRmGuard)
		}
		c, err := buildClient()
		if err != nil {
			return err
		}
		return c.RemoteRemove(args[0])
	},
}

func init() {
	remoteRmCmd.Flags().BoolVar(&remoteRmConfirmed, remoteRmGuard, false,
		"acknowledge that removal is permanent and affects every consumer")
	rootCmd.AddCommand(remoteRmCmd)
}
