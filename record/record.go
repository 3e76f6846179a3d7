// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package record

import (
	"bytes"
	"fmt"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Wazzaps/ampm/hash"
)

// PathType says whether an artifact's payload is a single file or a
// directory tree.
type PathType string

// Valid PathType values.
const (
	PathTypeFile PathType = "file"
	PathTypeDir  PathType = "dir"
)

// Compression names how the payload is stored on the remote share.
type Compression string

// Valid Compression values. Single files are gzipped, directory trees are
// tarred then gzipped, and either can be stored as-is.
const (
	CompressionNone    Compression = "none"
	CompressionGzip    Compression = "gzip"
	CompressionTarGzip Compression = "tar+gzip"
)

// Record is the canonical descriptor of one artifact. It is immutable after
// publication; its identity is the fingerprint of its canonical bytes, so
// there is deliberately no fingerprint field inside it.
type Record struct {
	Type        string
	Name        string
	PathType    PathType
	RemotePath  string
	Compression Compression
	Attributes  map[string]string
	Env         map[string]string
	Pubdate     string
}

// artifactTable is the serialized [artifact] table. Fields are declared in
// lexicographic key order because the toml encoder emits struct fields in
// declaration order and the canonical form requires sorted keys.
type artifactTable struct {
	Compression string `toml:"compression"`
	Name        string `toml:"name"`
	PathType    string `toml:"path_type"`
	Pubdate     string `toml:"pubdate"`
	RemotePath  string `toml:"remote_path"`
	Type        string `toml:"type"`
}

type recordDoc struct {
	Artifact   artifactTable     `toml:"artifact"`
	Attributes map[string]string `toml:"attributes"`
	Env        map[string]string `toml:"env"`
}

// FormatError is returned when record bytes cannot be parsed or the parsed
// record is not valid.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return "malformed record: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed record: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// IntegrityError is returned when the fingerprint encoded in a metadata
// file name does not match the fingerprint of the bytes it holds.
type IntegrityError struct {
	Path string
	Want hash.Digest
	Got  hash.Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("fingerprint mismatch at %s: file says %s, content is %s", e.Path, e.Want, e.Got)
}

var typeFormat = regexp.MustCompile(`^[a-z0-9_.-]+(/[a-z0-9_.-]+)*$`)
var attrKeyFormat = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
var envKeyFormat = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks field shapes and enum domains. It does not touch the
// filesystem.
func (r *Record) Validate() error {
	if !typeFormat.MatchString(r.Type) {
		return &FormatError{Reason: "bad artifact type " + fmt.Sprintf("%q", r.Type)}
	}
	if r.Name == "" || r.Name == "." || r.Name == ".." || bytes.ContainsRune([]byte(r.Name), '/') {
		return &FormatError{Reason: "bad artifact name " + fmt.Sprintf("%q", r.Name)}
	}
	switch r.PathType {
	case PathTypeFile, PathTypeDir:
	default:
		return &FormatError{Reason: "bad path_type " + fmt.Sprintf("%q", r.PathType)}
	}
	switch r.Compression {
	case CompressionNone, CompressionGzip, CompressionTarGzip:
	default:
		return &FormatError{Reason: "bad compression " + fmt.Sprintf("%q", r.Compression)}
	}
	if r.RemotePath == "" {
		return &FormatError{Reason: "missing remote_path"}
	}
	for k := range r.Attributes {
		if !attrKeyFormat.MatchString(k) {
			return &FormatError{Reason: "bad attribute key " + fmt.Sprintf("%q", k)}
		}
	}
	for k := range r.Env {
		if !envKeyFormat.MatchString(k) {
			return &FormatError{Reason: "bad env key " + fmt.Sprintf("%q", k)}
		}
	}
	if _, err := time.Parse(time.RFC3339, r.Pubdate); err != nil {
		return &FormatError{Reason: "bad pubdate " + fmt.Sprintf("%q", r.Pubdate), Err: err}
	}
	return nil
}

// Canonical returns the canonical serialized form of the record: a TOML
// document with the [artifact], [attributes] and [env] tables in that
// order and keys sorted within each table. The same record always produces
// the same bytes; these are the exact bytes written to
// metadata/<type>/<fingerprint>.toml and the input to Fingerprint.
func (r *Record) Canonical() ([]byte, error) {
	doc := recordDoc{
		Artifact: artifactTable{
			Compression: string(r.Compression),
			Name:        r.Name,
			PathType:    string(r.PathType),
			Pubdate:     r.Pubdate,
			RemotePath:  r.RemotePath,
			Type:        r.Type,
		},
		Attributes: r.Attributes,
		Env:        r.Env,
	}
	if doc.Attributes == nil {
		doc.Attributes = map[string]string{}
	}
	if doc.Env == nil {
		doc.Env = map[string]string{}
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(doc); err != nil {
		return nil, &FormatError{Reason: "encoding record", Err: err}
	}
	return buf.Bytes(), nil
}

// Fingerprint derives the record's content-addressed identity from its
// canonical bytes.
func (r *Record) Fingerprint() (hash.Digest, error) {
	data, err := r.Canonical()
	if err != nil {
		return hash.Digest{}, err
	}
	return hash.DigestOf(data), nil
}

// Identifier returns the record's external handle.
func (r *Record) Identifier() (Identifier, error) {
	fp, err := r.Fingerprint()
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Type: r.Type, Fingerprint: fp}, nil
}

// Parse decodes record bytes. Unknown keys and bad enum values are
// FormatErrors; parse is strict because the bytes are also the fingerprint
// domain and anything we silently dropped would not survive a round trip.
func Parse(data []byte) (*Record, error) {
	var doc recordDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, &FormatError{Reason: "decoding record", Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("unknown key %q", undecoded[0].String())}
	}
	r := &Record{
		Type:        doc.Artifact.Type,
		Name:        doc.Artifact.Name,
		PathType:    PathType(doc.Artifact.PathType),
		RemotePath:  doc.Artifact.RemotePath,
		Compression: Compression(doc.Artifact.Compression),
		Attributes:  doc.Attributes,
		Env:         doc.Env,
		Pubdate:     doc.Artifact.Pubdate,
	}
	if r.Attributes == nil {
		r.Attributes = map[string]string{}
	}
	if r.Env == nil {
		r.Env = map[string]string{}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Entry pairs an identifier with its record, as yielded by repository and
// cache listings.
type Entry struct {
	ID     Identifier
	Record *Record
}
