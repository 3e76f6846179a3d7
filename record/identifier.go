// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package record

import (
	"errors"
	"regexp"
	"strings"

	"github.com/Wazzaps/ampm/hash"
)

// Identifier is the external handle for an artifact: <type>:<fingerprint>.
type Identifier struct {
	Type        string
	Fingerprint hash.Digest
}

// identifierFormat is the gate for exact-identifier handling; the launcher
// fast path keeps its own copy of the same pattern. Anything that does not
// match is treated as a type for attribute queries instead.
var identifierFormat = regexp.MustCompile(`^(.+):([a-z0-9]{32})$`)

func (id Identifier) String() string {
	return id.Type + ":" + id.Fingerprint.String()
}

// IsIdentifier reports whether s is shaped like an exact identifier.
func IsIdentifier(s string) bool {
	return identifierFormat.MatchString(s)
}

// ParseIdentifier splits and validates a <type>:<fingerprint> handle.
func ParseIdentifier(s string) (Identifier, error) {
	m := identifierFormat.FindStringSubmatch(s)
	if m == nil {
		return Identifier{}, errors.New("not an artifact identifier: " + s)
	}
	if !typeFormat.MatchString(m[1]) {
		return Identifier{}, errors.New("bad artifact type in identifier: " + s)
	}
	fp, err := hash.ParseDigest(m[2])
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Type: m[1], Fingerprint: fp}, nil
}

// TypeMatches reports whether an artifact type falls under a requested type
// prefix. The empty prefix matches everything; otherwise the prefix matches
// its exact type and any type below it ("foo" matches "foo" and "foo/bar"
// but not "foobar").
func TypeMatches(artifactType, prefix string) bool {
	if prefix == "" {
		return true
	}
	return artifactType == prefix || strings.HasPrefix(artifactType, prefix+"/")
}
