// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Wazzaps/ampm/cache"
	"github.com/Wazzaps/ampm/client"
	"github.com/Wazzaps/ampm/config"
	"github.com/Wazzaps/ampm/record"
	"github.com/Wazzaps/ampm/repo"
)

var (
	serverFlag  string
	offlineFlag bool
	verboseFlag bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ampm",
	Short: "Artifact store and fetcher for shared network filesystems",
	Long: `ampm stores immutable artifacts (files or directory trees) on a shared
filesystem, each identified by a content-addressed fingerprint of its
metadata record. Clients resolve artifacts by exact identifier or by
attribute queries, download payloads on demand and cache them locally.
Exact-identifier lookups are answered from pre-materialized side-files
without touching the network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logrus.WarnLevel
		if verboseFlag {
			level = logrus.DebugLevel
		} else if parsed, err := logrus.ParseLevel(config.Load().LogLevel); err == nil {
			level = parsed
		}
		record.SetLevel(level)
		repo.SetLevel(level)
		cache.SetLevel(level)
		client.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "repository uri, overriding the repo_uri file")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "resolve from the local cache only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
}

// buildClient wires a client from config and the global flags.
func buildClient() (*client.Client, error) {
	cfg := config.Load()
	opts := client.Options{
		CacheDir: cfg.CacheDir,
		Offline:  offlineFlag,
	}
	if !offlineFlag {
		server, err := cfg.ServerURI(serverFlag)
		if err != nil {
			return nil, err
		}
		opts.Server = server
	}
	return client.New(opts)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by realMain().
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ampm:", err)
	}
	return err
}
