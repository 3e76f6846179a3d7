// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package cache

import (
	"bytes"
	"sort"
	"strings"
)

// RenderEnvFile renders a record's env bindings as a shell script of
// `export KEY='value'` lines. The output is pure text: values are
// single-quoted so sourcing the file sets variables and nothing else.
// Keys are sorted so the file is deterministic.
func RenderEnvFile(env map[string]string) []byte {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString("export ")
		buf.WriteString(k)
		buf.WriteString("=")
		buf.WriteString(quoteSingle(env[k]))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// quoteSingle wraps s in single quotes, escaping embedded single quotes as
// '\'' per POSIX shell rules.
func quoteSingle(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
