// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

const defaultUpdateScript = "/opt/ampm/update.sh"

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the installer's update script",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		script := os.Getenv("AMPM_UPDATE_SCRIPT")
		if script == "" {
			script = defaultUpdateScript
		}
		run := exec.Command(script)
		run.Stdin = os.Stdin
		run.Stdout = os.Stdout
		run.Stderr = os.Stderr
		return run.Run()
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
