// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Wazzaps/ampm/record"
	"github.com/Wazzaps/ampm/repo"
)

// ErrOfflineMiss is returned when offline mode needs a payload that was
// never materialized locally.
var ErrOfflineMiss = errors.New("artifact not in local cache (offline)")

// Fetcher materializes a record's payload into a staging directory. The
// remote gateway implements it; tests substitute fakes.
type Fetcher interface {
	FetchPayload(rec *record.Record, destDir string) (string, error)
}

// Cache is the local content-addressed materialization of records and
// payloads. All mutating operations are write-once and committed by
// rename, so concurrent readers never observe partial state.
type Cache struct {
	root string
}

// New returns a Cache rooted at dir (typically /var/ampm).
func New(dir string) *Cache {
	return &Cache{root: dir}
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// MountBase is where the cache keeps nfs mountpoints.
func (c *Cache) MountBase() string { return filepath.Join(c.root, "mounts") }

func (c *Cache) metaDir(id record.Identifier) string {
	return filepath.Join(c.root, "metadata", filepath.FromSlash(id.Type))
}

// RecordPath is the cached copy of the canonical record.
func (c *Cache) RecordPath(id record.Identifier) string {
	return filepath.Join(c.metaDir(id), id.Fingerprint.String()+".toml")
}

// TargetPath is the symlink whose text is the absolute payload path.
func (c *Cache) TargetPath(id record.Identifier) string {
	return filepath.Join(c.metaDir(id), id.Fingerprint.String()+".target")
}

// EnvPath is the pre-rendered shell script exporting the record's env.
func (c *Cache) EnvPath(id record.Identifier) string {
	return filepath.Join(c.metaDir(id), id.Fingerprint.String()+".env")
}

func (c *Cache) payloadDir(id record.Identifier) string {
	return filepath.Join(c.root, "artifacts", filepath.FromSlash(id.Type), id.Fingerprint.String())
}

func (c *Cache) lockPath(id record.Identifier) string {
	return filepath.Join(c.root, "locks", filepath.FromSlash(id.Type), id.Fingerprint.String()+".lock")
}

// ReadTarget returns the link text of the .target symlink without
// resolving it. Callers that need a usable path must check the text
// themselves; a broken link here must fall through to a full fetch, never
// be handed out.
func (c *Cache) ReadTarget(id record.Identifier) (string, error) {
	return os.Readlink(c.TargetPath(id))
}

// checkTarget returns the payload path when the .target link exists and
// its text points at something that exists.
func (c *Cache) checkTarget(id record.Identifier) (string, bool) {
	text, err := c.ReadTarget(id)
	if err != nil {
		return "", false
	}
	if _, err := os.Lstat(text); err != nil {
		return "", false
	}
	return text, true
}

// LoadRecord reads and verifies the cached record for an identifier.
func (c *Cache) LoadRecord(id record.Identifier) (*record.Record, error) {
	data, err := os.ReadFile(c.RecordPath(id))
	if err != nil {
		return nil, err
	}
	rec, err := record.Parse(data)
	if err != nil {
		return nil, err
	}
	fp, err := rec.Fingerprint()
	if err != nil {
		return nil, err
	}
	if fp != id.Fingerprint {
		return nil, &record.IntegrityError{Path: c.RecordPath(id), Want: id.Fingerprint, Got: fp}
	}
	return rec, nil
}

// List enumerates cached metadata records, the offline substitute for the
// remote gateway's listing.
func (c *Cache) List(typePrefix string) ([]record.Entry, error) {
	return repo.ListLocalMetadata(filepath.Join(c.root, "metadata"), typePrefix)
}

// staging tracks .partial directories owned by in-flight fetches so an
// interrupt can clean them up before the process dies.
var staging = struct {
	sync.Mutex
	dirs map[string]struct{}
}{dirs: map[string]struct{}{}}

func registerStaging(dir string) {
	staging.Lock()
	staging.dirs[dir] = struct{}{}
	staging.Unlock()
}

func unregisterStaging(dir string) {
	staging.Lock()
	delete(staging.dirs, dir)
	staging.Unlock()
}

// CleanupStaging removes every staging directory owned by this process.
// Called from the interrupt handler; partial state is never published.
func CleanupStaging() {
	staging.Lock()
	defer staging.Unlock()
	for dir := range staging.dirs {
		os.RemoveAll(dir)
		delete(staging.dirs, dir)
	}
}

// EnsureLocal materializes the payload for id exactly once per host, even
// under concurrent callers, and returns its absolute path.
//
// The fast path is a lock-free .target check. On a miss it takes an
// exclusive flock on locks/<type>/<fingerprint>.lock, re-checks, fetches
// into a .partial staging directory, renames it into place, writes the
// side-files, and publishes the entry by renaming the .target link last.
func (c *Cache) EnsureLocal(fetcher Fetcher, id record.Identifier, rec *record.Record) (string, error) {
	if path, ok := c.checkTarget(id); ok {
		return path, nil
	}

	lockPath := c.lockPath(id)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return "", err
	}
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", err
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return "", fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	// somebody else may have fetched while we waited
	if path, ok := c.checkTarget(id); ok {
		return path, nil
	}

	finalDir := c.payloadDir(id)
	partial := finalDir + ".partial"
	if err := os.RemoveAll(partial); err != nil {
		return "", err
	}
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return "", err
	}
	registerStaging(partial)
	defer unregisterStaging(partial)

	if _, err := fetcher.FetchPayload(rec, partial); err != nil {
		os.RemoveAll(partial)
		return "", err
	}

	if err := os.RemoveAll(finalDir); err != nil {
		os.RemoveAll(partial)
		return "", err
	}
	if err := os.Rename(partial, finalDir); err != nil {
		os.RemoveAll(partial)
		return "", err
	}

	payload := filepath.Join(finalDir, rec.Name)
	if err := c.writeSideFiles(id, rec, payload); err != nil {
		return "", err
	}
	log.WithField("id", id.String()).Debug("materialized")
	return payload, nil
}

// writeSideFiles publishes the .toml, .env and .target side-files for a
// materialized payload. The .target link goes last, through a rename, and
// is the point where the completed entry becomes visible.
func (c *Cache) writeSideFiles(id record.Identifier, rec *record.Record, payload string) error {
	if err := os.MkdirAll(c.metaDir(id), 0o755); err != nil {
		return err
	}
	data, err := rec.Canonical()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(c.RecordPath(id), data); err != nil {
		return err
	}
	if err := writeFileAtomic(c.EnvPath(id), RenderEnvFile(rec.Env)); err != nil {
		return err
	}

	targetPath := c.TargetPath(id)
	targetTmp := targetPath + ".tmp"
	if err := os.RemoveAll(targetTmp); err != nil {
		return err
	}
	if err := os.Symlink(payload, targetTmp); err != nil {
		return err
	}
	if err := os.Rename(targetTmp, targetPath); err != nil {
		os.Remove(targetTmp)
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadEnvFile returns the pre-rendered env script for an identifier.
func (c *Cache) ReadEnvFile(id record.Identifier) (string, error) {
	data, err := os.ReadFile(c.EnvPath(id))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
