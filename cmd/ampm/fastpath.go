// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// fastIDFormat gates the launcher fast path. It is the only parsing the
// fast path does.
var fastIDFormat = regexp.MustCompile(`^(.+):([a-z0-9]{32})$`)

// fastPath serves `get <id>` and `env <id>` for exact identifiers
// straight from the cache's side-files: the .target link text for get,
// the .env file for env. No locks, no record parsing, no network. Any
// miss reports handled=false and the full resolver takes over with the
// original arguments.
func fastPath(args []string) (code int, handled bool) {
	if len(args) != 2 {
		return 0, false
	}
	verb := args[0]
	if verb != "get" && verb != "env" {
		return 0, false
	}
	m := fastIDFormat.FindStringSubmatch(args[1])
	if m == nil {
		return 0, false
	}

	cacheDir := os.Getenv("AMPM_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "/var/ampm"
	}
	base := filepath.Join(cacheDir, "metadata", filepath.FromSlash(m[1]), m[2])

	switch verb {
	case "get":
		// read the link text, never resolve it: liveness is the full
		// resolver's business
		text, err := os.Readlink(base + ".target")
		if err != nil {
			return 0, false
		}
		fmt.Println(text)
		return 0, true
	case "env":
		data, err := os.ReadFile(base + ".env")
		if err != nil {
			return 0, false
		}
		os.Stdout.Write(data)
		return 0, true
	}
	return 0, false
}
