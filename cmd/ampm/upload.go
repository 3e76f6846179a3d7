// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Wazzaps/ampm/client"
)

var (
	uploadType         string
	uploadRemotePath   string
	uploadName         string
	uploadUncompressed bool
	uploadAttrs        []string
	uploadEnv          []string
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Publish a file or directory tree as a new artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := parsePairs(uploadAttrs)
		if err != nil {
			return err
		}
		env, err := parsePairs(uploadEnv)
		if err != nil {
			return err
		}
		c, err := buildClient()
		if err != nil {
			return err
		}
		id, err := c.Upload(client.UploadOptions{
			Path:         args[0],
			Type:         uploadType,
			Name:         uploadName,
			RemotePath:   uploadRemotePath,
			Uncompressed: uploadUncompressed,
			Attributes:   attrs,
			Env:          env,
		})
		if err != nil {
			return err
		}
		fmt.Println(id.String())
		return nil
	},
}

func parsePairs(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, r := range raw {
		k, v, ok := strings.Cut(r, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", r)
		}
		out[k] = v
	}
	return out, nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadType, "type", "", "artifact type path (required)")
	uploadCmd.Flags().StringVar(&uploadRemotePath, "remote-path", "", "payload location on the share (computed if omitted)")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "artifact name (basename of <path> if omitted)")
	uploadCmd.Flags().BoolVar(&uploadUncompressed, "uncompressed", false, "store the payload without packing")
	uploadCmd.Flags().StringArrayVarP(&uploadAttrs, "attr", "a", nil, "attribute k=v (repeatable)")
	uploadCmd.Flags().StringArrayVarP(&uploadEnv, "env", "e", nil, "env binding K=v (repeatable)")
	uploadCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(uploadCmd)
}
