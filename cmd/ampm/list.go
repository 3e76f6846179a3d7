// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/Wazzaps/ampm/record"
)

var (
	listAttrs      []string
	listFormat     string
	listFilePrefix string
)

// listEntry is the externally visible shape of one listed record.
type listEntry struct {
	Identifier  string            `json:"identifier" yaml:"identifier"`
	Type        string            `json:"type" yaml:"type"`
	Name        string            `json:"name" yaml:"name"`
	PathType    string            `json:"path_type" yaml:"path_type"`
	Compression string            `json:"compression" yaml:"compression"`
	Attributes  map[string]string `json:"attributes" yaml:"attributes"`
	Env         map[string]string `json:"env" yaml:"env"`
	Pubdate     string            `json:"pubdate" yaml:"pubdate"`
	RemotePath  string            `json:"remote_path" yaml:"remote_path"`
}

func toListEntry(e record.Entry) listEntry {
	return listEntry{
		Identifier:  e.ID.String(),
		Type:        e.Record.Type,
		Name:        e.Record.Name,
		PathType:    string(e.Record.PathType),
		Compression: string(e.Record.Compression),
		Attributes:  e.Record.Attributes,
		Env:         e.Record.Env,
		Pubdate:     e.Record.Pubdate,
		RemotePath:  e.Record.RemotePath,
	}
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [<type-prefix>]",
	Short: "List artifacts matching a type prefix and constraints",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typePrefix := ""
		if len(args) == 1 {
			typePrefix = args[0]
		}
		c, err := buildClient()
		if err != nil {
			return err
		}
		entries, err := c.List(typePrefix, listAttrs)
		if err != nil {
			return err
		}
		switch listFormat {
		case "pretty":
			return printPretty(entries)
		case "json":
			return printJSON(entries)
		case "index-file":
			return printIndexFile(entries, listFilePrefix)
		}
		return fmt.Errorf("unknown list format %q", listFormat)
	},
}

func printPretty(entries []record.Entry) error {
	for _, e := range entries {
		fmt.Println("---")
		data, err := yaml.Marshal(toListEntry(e))
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	}
	return nil
}

func printJSON(entries []record.Entry) error {
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(toListEntry(e)); err != nil {
			return err
		}
	}
	return nil
}

// printIndexFile emits the machine-readable index format:
// type:fingerprint, the attribute pairs, and the payload url.
func printIndexFile(entries []record.Entry, prefix string) error {
	for _, e := range entries {
		keys := make([]string, 0, len(e.Record.Attributes))
		for k := range e.Record.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+e.Record.Attributes[k])
		}
		url := e.Record.RemotePath
		if prefix != "" {
			url = strings.TrimSuffix(prefix, "/") + "/" + e.Record.RemotePath
		}
		fmt.Printf("%s  %s  %s\n", e.ID.String(), strings.Join(pairs, " "), url)
	}
	return nil
}

func init() {
	listCmd.Flags().StringArrayVarP(&listAttrs, "attr", "a", nil, "attribute constraint k=v (repeatable)")
	listCmd.Flags().StringVar(&listFormat, "format", "pretty", "output format: pretty, json or index-file")
	listCmd.Flags().StringVar(&listFilePrefix, "index-file-prefix", "", "url prefix for index-file payload paths")
	rootCmd.AddCommand(listCmd)
}
