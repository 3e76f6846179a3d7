// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var envAttrs []string

// envCmd represents the env command
var envCmd = &cobra.Command{
	Use:   "env <id-or-type>",
	Short: "Resolve an artifact and print its env exports for sourcing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		script, err := c.Env(args[0], envAttrs)
		if err != nil {
			return err
		}
		fmt.Print(script)
		return nil
	},
}

func init() {
	envCmd.Flags().StringArrayVarP(&envAttrs, "attr", "a", nil, "attribute constraint k=v (repeatable)")
	rootCmd.AddCommand(envCmd)
}
