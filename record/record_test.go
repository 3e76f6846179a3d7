// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	return &Record{
		Type:        "foo/bar",
		Name:        "hello.txt",
		PathType:    PathTypeFile,
		RemotePath:  "artifacts/foo/bar/abc/hello.txt.gz",
		Compression: CompressionGzip,
		Attributes:  map[string]string{"arch": "x86_64", "version": "1.2.3"},
		Env:         map[string]string{"HELLO_PATH": "/opt/hello"},
		Pubdate:     "2024-01-01T00:00:00Z",
	}
}

func TestCanonicalDeterministic(t *testing.T) {
	r := sampleRecord()
	a, err := r.Canonical()
	require.NoError(t, err)
	b, err := r.Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// table order is fixed and keys are sorted within each table
	text := string(a)
	assert.Less(t, strings.Index(text, "[artifact]"), strings.Index(text, "[attributes]"))
	assert.Less(t, strings.Index(text, "[attributes]"), strings.Index(text, "[env]"))
	assert.Less(t, strings.Index(text, "arch ="), strings.Index(text, "version ="))
	assert.Less(t, strings.Index(text, "compression ="), strings.Index(text, "name ="))
}

func TestParseRoundTripFingerprintStable(t *testing.T) {
	r := sampleRecord()
	data, err := r.Canonical()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, r, parsed)

	fp1, err := r.Fingerprint()
	require.NoError(t, err)
	fp2, err := parsed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	r := sampleRecord()
	fp1, err := r.Fingerprint()
	require.NoError(t, err)

	other := sampleRecord()
	other.Attributes["arch"] = "i386"
	fp2, err := other.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)

	third := sampleRecord()
	third.Pubdate = "2024-06-01T00:00:00Z"
	fp3, err := third.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	r := sampleRecord()
	data, err := r.Canonical()
	require.NoError(t, err)
	mangled := strings.Replace(string(data), "[env]", "[bogus]\nx = \"y\"\n\n[env]", 1)

	_, err = Parse([]byte(mangled))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("this is not toml ["))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mangle func(*Record)
	}{
		{"uppercase type", func(r *Record) { r.Type = "Foo" }},
		{"empty type", func(r *Record) { r.Type = "" }},
		{"slashed name", func(r *Record) { r.Name = "a/b" }},
		{"empty name", func(r *Record) { r.Name = "" }},
		{"bad path_type", func(r *Record) { r.PathType = "symlink" }},
		{"bad compression", func(r *Record) { r.Compression = "zstd" }},
		{"missing remote_path", func(r *Record) { r.RemotePath = "" }},
		{"bad attr key", func(r *Record) { r.Attributes = map[string]string{"a b": "c"} }},
		{"bad env key", func(r *Record) { r.Env = map[string]string{"1BAD": "x"} }},
		{"bad pubdate", func(r *Record) { r.Pubdate = "yesterday" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := sampleRecord()
			tc.mangle(r)
			assert.Error(t, r.Validate())
		})
	}
	assert.NoError(t, sampleRecord().Validate())
}

func TestIdentifier(t *testing.T) {
	r := sampleRecord()
	id, err := r.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "foo/bar", id.Type)
	assert.Regexp(t, `^foo/bar:[a-z0-9]{32}$`, id.String())

	parsed, err := ParseIdentifier(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("foobar:mbf5qxqli76zx7btc5n7fkq47tjs6cl2"))
	assert.True(t, IsIdentifier("foo/bar:mbf5qxqli76zx7btc5n7fkq47tjs6cl2"))
	assert.False(t, IsIdentifier("foobar"))
	assert.False(t, IsIdentifier(":mbf5qxqli76zx7btc5n7fkq47tjs6cl2"))
	assert.False(t, IsIdentifier("foobar:tooshort"))
	assert.False(t, IsIdentifier("foobar:MBF5QXQLI76ZX7BTC5N7FKQ47TJS6CL2"))
}

func TestTypeMatches(t *testing.T) {
	assert.True(t, TypeMatches("foo", ""))
	assert.True(t, TypeMatches("foo", "foo"))
	assert.True(t, TypeMatches("foo/bar", "foo"))
	assert.True(t, TypeMatches("foo/bar/baz", "foo/bar"))
	assert.False(t, TypeMatches("foobar", "foo"))
	assert.False(t, TypeMatches("foo", "foo/bar"))
}
