// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFP = "mbf5qxqli76zx7btc5n7fkq47tjs6cl2"

// captureStdout runs fn with stdout redirected to a pipe and returns what
// it printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()
	fn()
	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func setupFastPathCache(t *testing.T) (string, string) {
	t.Helper()
	cacheDir := t.TempDir()
	t.Setenv("AMPM_CACHE_DIR", cacheDir)
	metaDir := filepath.Join(cacheDir, "metadata", "foobar")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))

	payload := filepath.Join(cacheDir, "artifacts", "foobar", testFP, "hello.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(payload), 0o755))
	require.NoError(t, os.WriteFile(payload, []byte("hi\n"), 0o644))
	require.NoError(t, os.Symlink(payload, filepath.Join(metaDir, testFP+".target")))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, testFP+".env"), []byte("export HELLO='world'\n"), 0o644))
	return cacheDir, payload
}

func TestFastPathGet(t *testing.T) {
	_, payload := setupFastPathCache(t)

	var code int
	var handled bool
	out := captureStdout(t, func() {
		code, handled = fastPath([]string{"get", "foobar:" + testFP})
	})
	assert.True(t, handled)
	assert.Equal(t, 0, code)
	assert.Equal(t, payload+"\n", out)
}

func TestFastPathEnv(t *testing.T) {
	setupFastPathCache(t)

	var handled bool
	out := captureStdout(t, func() {
		_, handled = fastPath([]string{"env", "foobar:" + testFP})
	})
	assert.True(t, handled)
	assert.Equal(t, "export HELLO='world'\n", out)
}

func TestFastPathPrintsLinkTextWithoutResolving(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("AMPM_CACHE_DIR", cacheDir)
	metaDir := filepath.Join(cacheDir, "metadata", "foobar")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	// the link text is returned verbatim even though nothing sits there;
	// liveness checks belong to the full resolver
	require.NoError(t, os.Symlink("/var/ampm/artifacts/foobar/"+testFP+"/hello.txt", filepath.Join(metaDir, testFP+".target")))

	var handled bool
	out := captureStdout(t, func() {
		_, handled = fastPath([]string{"get", "foobar:" + testFP})
	})
	assert.True(t, handled)
	assert.Equal(t, "/var/ampm/artifacts/foobar/"+testFP+"/hello.txt\n", out)
}

func TestFastPathMisses(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("AMPM_CACHE_DIR", cacheDir)

	cases := [][]string{
		{"get", "foobar:" + testFP},              // nothing cached
		{"get", "foobar"},                        // not an identifier
		{"get", "foobar:TOOSHORT"},               // malformed fingerprint
		{"list", "foobar:" + testFP},             // wrong verb
		{"get", "foobar:" + testFP, "--offline"}, // extra args go to the full parser
		{"get"},
		{},
	}
	for _, args := range cases {
		_, handled := fastPath(args)
		assert.False(t, handled, "args %v", args)
	}
}

func TestFastPathNotASymlink(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("AMPM_CACHE_DIR", cacheDir)
	metaDir := filepath.Join(cacheDir, "metadata", "foobar")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, testFP+".target"), []byte("/plain/file"), 0o644))

	_, handled := fastPath([]string{"get", "foobar:" + testFP})
	assert.False(t, handled)
}
