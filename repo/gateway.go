// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/Wazzaps/ampm/hash"
	"github.com/Wazzaps/ampm/record"
)

// MetadataDirName is the directory under the repository root that holds
// metadata records.
const MetadataDirName = "metadata"

// ArtifactsDirName is the default directory under the repository root that
// holds payloads.
const ArtifactsDirName = "artifacts"

// ErrNotFound is returned by Load and Remove for an identifier with no
// metadata record on the share.
var ErrNotFound = errors.New("artifact not on remote")

// parseCacheSize bounds the per-invocation record parse cache. A record is
// re-read whenever its size or mtime changes, so the cache can never serve
// bytes that drifted from the share.
const parseCacheSize = 4096

// Gateway presents a mounted repository share as an iterable of records.
type Gateway struct {
	root   string
	parsed *lru.Cache
}

// Open returns a Gateway over a repository root directory (the mounted
// share plus any #subdir fragment).
func Open(root string) (*Gateway, error) {
	if root == "" {
		return nil, errors.New("empty repository root")
	}
	parsed, err := lru.New(parseCacheSize)
	if err != nil {
		return nil, err
	}
	return &Gateway{root: root, parsed: parsed}, nil
}

// Root returns the directory the gateway reads from.
func (g *Gateway) Root() string { return g.root }

func (g *Gateway) metaPath(id record.Identifier) string {
	return filepath.Join(g.root, MetadataDirName, filepath.FromSlash(id.Type), id.Fingerprint.String()+".toml")
}

// readRecord loads and verifies one metadata file, through the parse
// cache.
func (g *Gateway) readRecord(path string, want hash.Digest) (*record.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if cached, ok := g.parsed.Get(key); ok {
		return cached.(*record.Record), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if got := hash.DigestOf(data); got != want {
		return nil, &record.IntegrityError{Path: path, Want: want, Got: got}
	}
	rec, err := record.Parse(data)
	if err != nil {
		return nil, err
	}
	g.parsed.Add(key, rec)
	return rec, nil
}

// List walks metadata/<typePrefix> recursively and yields every record
// that parses. Records that fail to parse, fail their fingerprint check,
// or sit in a directory that disagrees with their type field are skipped
// with a warning; they never abort the scan.
func (g *Gateway) List(typePrefix string) ([]record.Entry, error) {
	return listMetadataDir(filepath.Join(g.root, MetadataDirName), typePrefix, g.readRecord)
}

// listMetadataDir is the shared scan over a metadata tree; the local cache
// reuses it for offline listings.
func listMetadataDir(metaRoot, typePrefix string, read func(string, hash.Digest) (*record.Record, error)) ([]record.Entry, error) {
	start := metaRoot
	if typePrefix != "" {
		start = filepath.Join(metaRoot, filepath.FromSlash(typePrefix))
	}
	var entries []record.Entry
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == start {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".toml") {
			return nil
		}
		fpText := strings.TrimSuffix(d.Name(), ".toml")
		fp, err := hash.ParseDigest(fpText)
		if err != nil {
			log.WithField("path", path).Warn("skipping metadata file with malformed fingerprint name")
			return nil
		}
		relDir, err := filepath.Rel(metaRoot, filepath.Dir(path))
		if err != nil {
			return err
		}
		artifactType := filepath.ToSlash(relDir)
		rec, err := read(path, fp)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping unreadable metadata record")
			return nil
		}
		if rec.Type != artifactType {
			log.WithField("path", path).Warnf("skipping record whose type %q disagrees with its location", rec.Type)
			return nil
		}
		entries = append(entries, record.Entry{
			ID:     record.Identifier{Type: artifactType, Fingerprint: fp},
			Record: rec,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListLocalMetadata scans a metadata tree that is not behind a gateway,
// such as the local cache's metadata directory in offline mode. Same skip
// semantics as List, without the parse cache.
func ListLocalMetadata(metaRoot, typePrefix string) ([]record.Entry, error) {
	return listMetadataDir(metaRoot, typePrefix, func(path string, want hash.Digest) (*record.Record, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if got := hash.DigestOf(data); got != want {
			return nil, &record.IntegrityError{Path: path, Want: want, Got: got}
		}
		return record.Parse(data)
	})
}

// Load fetches and verifies the record for an exact identifier.
func (g *Gateway) Load(id record.Identifier) (*record.Record, error) {
	rec, err := g.readRecord(g.metaPath(id), id.Fingerprint)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// FetchPayload materializes the record's payload as destDir/<name>,
// decompressing according to the record's compression, and returns the
// materialized path.
func (g *Gateway) FetchPayload(rec *record.Record, destDir string) (string, error) {
	src := filepath.Join(g.root, filepath.FromSlash(rec.RemotePath))
	dest := filepath.Join(destDir, rec.Name)
	log.WithField("src", src).Debug("fetching payload")

	switch rec.Compression {
	case record.CompressionNone:
		if rec.PathType == record.PathTypeDir {
			if err := copyTree(src, dest); err != nil {
				return "", err
			}
			return dest, nil
		}
		if err := copyFile(src, dest, true); err != nil {
			return "", err
		}
		return dest, nil
	case record.CompressionGzip:
		if rec.PathType != record.PathTypeFile {
			return "", fmt.Errorf("record %s: gzip payload must be a file", rec.Name)
		}
		if err := unpackGzip(src, dest); err != nil {
			return "", err
		}
		return dest, nil
	case record.CompressionTarGzip:
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", err
		}
		if err := unpackTarGzip(src, dest); err != nil {
			return "", err
		}
		return dest, nil
	}
	return "", fmt.Errorf("record %s: unsupported compression %q", rec.Name, rec.Compression)
}

// Publish stores a payload and its metadata record on the share. The
// metadata rename is the publication point; readers either see the whole
// artifact or nothing. Publishing a fingerprint that already exists is a
// no-op and reports created=false. Partial writes stay behind .tmp names
// and are cleaned on error.
func (g *Gateway) Publish(rec *record.Record, payloadPath string) (created bool, err error) {
	id, err := rec.Identifier()
	if err != nil {
		return false, err
	}
	metaPath := g.metaPath(id)
	if _, err := os.Stat(metaPath); err == nil {
		log.WithField("id", id.String()).Debug("already published")
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	token := uuid.NewString()

	// payload first so the metadata rename can be the publication point
	payloadDest := filepath.Join(g.root, filepath.FromSlash(rec.RemotePath))
	if err := os.MkdirAll(filepath.Dir(payloadDest), 0o755); err != nil {
		return false, err
	}
	payloadTmp := tmpSibling(payloadDest, token)
	info, err := os.Stat(payloadPath)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		err = copyTree(payloadPath, payloadTmp)
	} else {
		err = copyFile(payloadPath, payloadTmp, true)
	}
	if err != nil {
		return false, cleanupTmp(payloadTmp, err)
	}
	if err := os.Rename(payloadTmp, payloadDest); err != nil {
		return false, cleanupTmp(payloadTmp, err)
	}

	data, err := rec.Canonical()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return false, err
	}
	metaTmp := tmpSibling(metaPath, token)
	if err := os.WriteFile(metaTmp, data, 0o644); err != nil {
		return false, cleanupTmp(metaTmp, err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		return false, cleanupTmp(metaTmp, err)
	}
	log.WithField("id", id.String()).Info("published")
	return true, nil
}

// Remove deletes the metadata record and the payload it references. The
// identifier must match exactly; the record is verified against its
// fingerprint before anything is deleted.
func (g *Gateway) Remove(id record.Identifier) error {
	rec, err := g.Load(id)
	if err != nil {
		return err
	}
	payload := filepath.Join(g.root, filepath.FromSlash(rec.RemotePath))
	if err := os.RemoveAll(payload); err != nil {
		return err
	}
	if err := os.Remove(g.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	log.WithField("id", id.String()).Info("removed")
	return nil
}
