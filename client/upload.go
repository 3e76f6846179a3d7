// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Wazzaps/ampm/record"
	"github.com/Wazzaps/ampm/repo"
)

// UploadOptions are the inputs to Upload. Path and Type are required;
// everything else has a computed default.
type UploadOptions struct {
	Path         string
	Type         string
	Name         string
	RemotePath   string
	Uncompressed bool
	Attributes   map[string]string
	Env          map[string]string
}

// Upload validates the inputs, packs the payload when its compression
// calls for it, and publishes payload and metadata atomically. Uploading
// an identical record twice is a no-op; both invocations succeed with the
// same identifier.
func (c *Client) Upload(opts UploadOptions) (record.Identifier, error) {
	info, err := os.Stat(opts.Path)
	if err != nil {
		return record.Identifier{}, err
	}

	rec := &record.Record{
		Type:       opts.Type,
		Name:       opts.Name,
		RemotePath: opts.RemotePath,
		Attributes: opts.Attributes,
		Env:        opts.Env,
		Pubdate:    time.Now().UTC().Format(time.RFC3339),
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(opts.Path)
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]string{}
	}
	if rec.Env == nil {
		rec.Env = map[string]string{}
	}
	if info.IsDir() {
		rec.PathType = record.PathTypeDir
		rec.Compression = record.CompressionTarGzip
	} else {
		rec.PathType = record.PathTypeFile
		rec.Compression = record.CompressionGzip
	}
	if opts.Uncompressed {
		rec.Compression = record.CompressionNone
	}
	if rec.RemotePath == "" {
		if rec.RemotePath, err = defaultRemotePath(rec); err != nil {
			return record.Identifier{}, err
		}
	}
	if err := rec.Validate(); err != nil {
		return record.Identifier{}, err
	}

	g, err := c.remote()
	if err != nil {
		return record.Identifier{}, err
	}

	// pubdate is stamped at upload time, so a byte-equal re-upload can
	// only be recognized by comparing everything else. An existing record
	// identical modulo pubdate makes the upload a no-op with the existing
	// identifier.
	if existing, err := findEquivalent(g, rec); err != nil {
		return record.Identifier{}, err
	} else if existing != nil {
		log.WithField("id", existing.ID.String()).Info("already published, nothing to do")
		return existing.ID, nil
	}

	payload, cleanup, err := packPayload(rec, opts.Path)
	if err != nil {
		return record.Identifier{}, err
	}
	defer cleanup()
	created, err := g.Publish(rec, payload)
	if err != nil {
		return record.Identifier{}, err
	}
	id, err := rec.Identifier()
	if err != nil {
		return record.Identifier{}, err
	}
	if !created {
		log.WithField("id", id.String()).Info("already published, nothing to do")
	}
	return id, nil
}

// defaultRemotePath places the payload under artifacts/ by type,
// fingerprint and name. The fingerprint used here is the record's before
// remote_path is filled in; it keys the payload's location, while the
// identifier is always the fingerprint of the final canonical bytes.
func defaultRemotePath(rec *record.Record) (string, error) {
	// pubdate is zeroed too so that re-uploading identical content
	// computes an identical location
	provisional := *rec
	provisional.RemotePath = ""
	provisional.Pubdate = ""
	fp, err := provisional.Fingerprint()
	if err != nil {
		return "", err
	}
	name := rec.Name
	switch rec.Compression {
	case record.CompressionGzip:
		name += ".gz"
	case record.CompressionTarGzip:
		name += ".tar.gz"
	}
	return repo.ArtifactsDirName + "/" + rec.Type + "/" + fp.String() + "/" + name, nil
}

// findEquivalent scans the record's exact type for an already published
// record that differs only in pubdate.
func findEquivalent(g *repo.Gateway, rec *record.Record) (*record.Entry, error) {
	entries, err := g.List(rec.Type)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := entries[i]
		if e.Record.Type != rec.Type {
			continue
		}
		a := *e.Record
		b := *rec
		a.Pubdate = ""
		b.Pubdate = ""
		ac, err := a.Canonical()
		if err != nil {
			return nil, err
		}
		bc, err := b.Canonical()
		if err != nil {
			return nil, err
		}
		if string(ac) == string(bc) {
			return &e, nil
		}
	}
	return nil, nil
}

// packPayload produces the blob Publish will copy: the path itself for
// uncompressed payloads, or a packed temp file otherwise. cleanup removes
// any temp state.
func packPayload(rec *record.Record, path string) (string, func(), error) {
	if rec.Compression == record.CompressionNone {
		return path, func() {}, nil
	}
	tmpDir, err := os.MkdirTemp("", "ampm-pack-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	var packed string
	switch rec.Compression {
	case record.CompressionGzip:
		packed = filepath.Join(tmpDir, rec.Name+".gz")
		err = repo.PackGzip(path, packed)
	case record.CompressionTarGzip:
		packed = filepath.Join(tmpDir, rec.Name+".tar.gz")
		err = repo.PackTarGzip(path, packed)
	default:
		err = fmt.Errorf("unsupported compression %q", rec.Compression)
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return packed, cleanup, nil
}
