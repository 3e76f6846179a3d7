// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package hash

import (
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"regexp"
	"strings"
)

// Digest is a finalized 160-bit checksum: the first 20 bytes of a SHA-256
// sum. Its textual form is 32 lowercase base32 characters, which is what
// appears in artifact identifiers and metadata file names.
type Digest [160 / 8]byte

// DigestLen is the length of the textual form of a Digest.
const DigestLen = 32

var zero Digest

// digestFormat matches the textual form of a Digest. The base32 alphabet
// never produces 0, 1, 8 or 9, but identifiers are validated with the wider
// class so that a bad character fails in the decoder with a useful error
// rather than silently not matching.
var digestFormat = regexp.MustCompile("^[a-z0-9]{32}$")

// DigestOf returns the Digest of the given bytes.
func DigestOf(data []byte) Digest {
	sum := sha256.Sum256(data)
	var d Digest
	copy(d[:], sum[:len(d)])
	return d
}

// IsZero returns true for Digests that are the zero-value of their type.
func (d Digest) IsZero() bool {
	return d == zero
}

// Bytes returns the finalized checksum bytes.
func (d Digest) Bytes() []byte {
	return d[:]
}

// String returns the 32-character lowercase base32 form. 160 bits encode to
// exactly 32 characters, so there is never padding.
func (d Digest) String() string {
	return strings.ToLower(base32.StdEncoding.EncodeToString(d[:]))
}

// IsDigest reports whether s is shaped like the textual form of a Digest.
// It does not verify that s decodes; use ParseDigest for that.
func IsDigest(s string) bool {
	return digestFormat.MatchString(s)
}

// ParseDigest decodes the 32-character lowercase base32 form back into a
// Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if !digestFormat.MatchString(s) {
		return d, errors.New("invalid digest: " + s)
	}
	raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return d, errors.New("invalid digest: " + s)
	}
	copy(d[:], raw)
	return d, nil
}
