// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getAttrs []string

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id-or-type>",
	Short: "Resolve an artifact and print its local payload path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		path, err := c.Get(args[0], getAttrs)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	getCmd.Flags().StringArrayVarP(&getAttrs, "attr", "a", nil, "attribute constraint k=v (repeatable)")
	rootCmd.AddCommand(getCmd)
}
