// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestOf(t *testing.T) {
	d := DigestOf([]byte("hello"))
	assert.False(t, d.IsZero())
	assert.Len(t, d.String(), DigestLen)
	assert.Regexp(t, "^[a-z2-7]{32}$", d.String())

	// stable across calls
	assert.Equal(t, d, DigestOf([]byte("hello")))
	// any byte change produces a different digest
	assert.NotEqual(t, d, DigestOf([]byte("hellp")))
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := DigestOf([]byte("some payload"))
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseDigestRejects(t *testing.T) {
	for _, s := range []string{
		"",
		"short",
		"MBF5QXQLI76ZX7BTC5N7FKQ47TJS6CL2",  // uppercase
		"mbf5qxqli76zx7btc5n7fkq47tjs6cl",   // 31 chars
		"mbf5qxqli76zx7btc5n7fkq47tjs6cl2x", // 33 chars
		"mbf5qxqli76zx7btc5n7fkq47tjs6c!2",  // bad char
		"0bf5qxqli76zx7btc5n7fkq47tjs6cl2",  // 0 is outside the base32 alphabet
	} {
		_, err := ParseDigest(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestIsDigest(t *testing.T) {
	assert.True(t, IsDigest("mbf5qxqli76zx7btc5n7fkq47tjs6cl2"))
	assert.False(t, IsDigest("mbf5qxqli76zx7btc5n7fkq47tjs6cl2/"))
	assert.False(t, IsDigest("not-a-digest"))
}
