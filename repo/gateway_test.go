// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wazzaps/ampm/record"
)

func testRecord(name string) *record.Record {
	return &record.Record{
		Type:        "foobar",
		Name:        name,
		PathType:    record.PathTypeFile,
		RemotePath:  "artifacts/foobar/" + name,
		Compression: record.CompressionNone,
		Attributes:  map[string]string{"arch": "x86_64"},
		Env:         map[string]string{},
		Pubdate:     "2024-01-01T00:00:00Z",
	}
}

func writePayload(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPublishListLoadRemove(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	rec := testRecord("hello.txt")
	payload := writePayload(t, t.TempDir(), "hello.txt", "hello world\n")

	created, err := g.Publish(rec, payload)
	require.NoError(t, err)
	assert.True(t, created)

	id, err := rec.Identifier()
	require.NoError(t, err)

	// metadata bytes on disk are the canonical bytes
	data, err := os.ReadFile(filepath.Join(root, "metadata", "foobar", id.Fingerprint.String()+".toml"))
	require.NoError(t, err)
	canonical, err := rec.Canonical()
	require.NoError(t, err)
	assert.Equal(t, canonical, data)

	entries, err := g.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, rec, entries[0].Record)

	loaded, err := g.Load(id)
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)

	require.NoError(t, g.Remove(id))
	_, err = g.Load(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(filepath.Join(root, "artifacts", "foobar", "hello.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestPublishIdempotent(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	rec := testRecord("hello.txt")
	payload := writePayload(t, t.TempDir(), "hello.txt", "hello world\n")

	created, err := g.Publish(rec, payload)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = g.Publish(rec, payload)
	require.NoError(t, err)
	assert.False(t, created)

	entries, err := g.List("foobar")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListSkipsBadRecords(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	rec := testRecord("good.txt")
	payload := writePayload(t, t.TempDir(), "good.txt", "ok\n")
	_, err = g.Publish(rec, payload)
	require.NoError(t, err)

	metaDir := filepath.Join(root, "metadata", "foobar")
	// unparseable record under a well-formed fingerprint name
	bad := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, bad+".toml"), []byte("not toml ["), 0o644))
	// fingerprint in the name does not match the content
	other := testRecord("other.txt")
	data, err := other.Canonical()
	require.NoError(t, err)
	wrong := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, wrong+".toml"), data, 0o644))
	// not a fingerprint-shaped name at all
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "README.toml"), data, 0o644))

	entries, err := g.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good.txt", entries[0].Record.Name)
}

func TestListTypePrefix(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	stage := t.TempDir()
	for _, typ := range []string{"foo", "foo/bar", "foobar"} {
		rec := testRecord("p.txt")
		rec.Type = typ
		rec.RemotePath = "artifacts/" + typ + "/p.txt"
		payload := writePayload(t, stage, "p.txt", "payload for "+typ)
		// distinct payload content; the fingerprints differ through type
		// and remote_path, since payload bytes are not part of the record
		require.NoError(t, os.WriteFile(payload, []byte(typ), 0o644))
		_, err := g.Publish(rec, payload)
		require.NoError(t, err)
	}

	entries, err := g.List("foo")
	require.NoError(t, err)
	types := map[string]bool{}
	for _, e := range entries {
		types[e.Record.Type] = true
	}
	assert.Equal(t, map[string]bool{"foo": true, "foo/bar": true}, types)

	entries, err = g.List("does/not/exist")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchPayloadPlainFile(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	rec := testRecord("hello.txt")
	payload := writePayload(t, t.TempDir(), "hello.txt", "hello world\n")
	_, err = g.Publish(rec, payload)
	require.NoError(t, err)

	dest := t.TempDir()
	got, err := g.FetchPayload(rec, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "hello.txt"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(data))
}

func TestFetchPayloadGzip(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	src := writePayload(t, t.TempDir(), "hello.txt", "compressed content\n")
	packed := filepath.Join(t.TempDir(), "hello.txt.gz")
	require.NoError(t, PackGzip(src, packed))

	rec := testRecord("hello.txt")
	rec.Compression = record.CompressionGzip
	rec.RemotePath = "artifacts/foobar/hello.txt.gz"
	_, err = g.Publish(rec, packed)
	require.NoError(t, err)

	dest := t.TempDir()
	got, err := g.FetchPayload(rec, dest)
	require.NoError(t, err)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "compressed content\n", string(data))
}

func TestFetchPayloadTarGzip(t *testing.T) {
	root := t.TempDir()
	g, err := Open(root)
	require.NoError(t, err)

	// build a tree with a nested dir, an executable and a symlink
	tree := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "bin", "run"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "data.txt"), []byte("data\n"), 0o644))
	require.NoError(t, os.Symlink("bin/run", filepath.Join(tree, "run")))

	packed := filepath.Join(t.TempDir(), "tool.tar.gz")
	require.NoError(t, PackTarGzip(tree, packed))

	rec := testRecord("tool")
	rec.PathType = record.PathTypeDir
	rec.Compression = record.CompressionTarGzip
	rec.RemotePath = "artifacts/foobar/tool.tar.gz"
	_, err = g.Publish(rec, packed)
	require.NoError(t, err)

	dest := t.TempDir()
	got, err := g.FetchPayload(rec, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "tool"), got)

	data, err := os.ReadFile(filepath.Join(got, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data\n", string(data))

	info, err := os.Stat(filepath.Join(got, "bin", "run"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(got, "run"))
	require.NoError(t, err)
	assert.Equal(t, "bin/run", link)
}

func TestParseURI(t *testing.T) {
	u, err := ParseURI("nfs://fileserver/exports/ampm#prod")
	require.NoError(t, err)
	assert.Equal(t, "nfs", u.Scheme)
	assert.Equal(t, "fileserver", u.Host)
	assert.Equal(t, "/exports/ampm", u.Path)
	assert.Equal(t, "prod", u.Subdir)
	assert.Equal(t, "nfs://fileserver/exports/ampm#prod", u.String())

	u, err = ParseURI("file:///srv/ampm")
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "/srv/ampm", u.Path)
	root, err := u.Root("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/ampm", root)

	u, err = ParseURI("file:///srv/ampm#sub")
	require.NoError(t, err)
	root, err = u.Root("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/ampm/sub", root)

	for _, bad := range []string{"", "http://x/y", "nfs://", "nfs://host", "file://"} {
		_, err := ParseURI(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
