// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package repo

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// URI locates a repository. Two schemes are understood:
//
//	nfs://<host><export>#<subdir>
//	file://<path>#<subdir>
//
// The fragment, when present, always names a subdirectory beneath the
// mount root, never a sibling of it.
type URI struct {
	Scheme string
	Host   string
	Path   string
	Subdir string
}

// ParseURI parses a repository URI string.
func ParseURI(s string) (URI, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return URI{}, fmt.Errorf("bad repository uri %q: %w", s, err)
	}
	switch u.Scheme {
	case "nfs":
		if u.Host == "" || u.Path == "" {
			return URI{}, fmt.Errorf("bad repository uri %q: nfs needs host and export path", s)
		}
		return URI{Scheme: "nfs", Host: u.Host, Path: u.Path, Subdir: u.Fragment}, nil
	case "file":
		p := u.Path
		if u.Host != "" {
			// tolerate file://relative/style paths
			p = u.Host + u.Path
		}
		if p == "" {
			return URI{}, fmt.Errorf("bad repository uri %q: file needs a path", s)
		}
		return URI{Scheme: "file", Path: p, Subdir: u.Fragment}, nil
	}
	return URI{}, fmt.Errorf("bad repository uri %q: unsupported scheme %q", s, u.Scheme)
}

func (u URI) String() string {
	var s string
	switch u.Scheme {
	case "nfs":
		s = "nfs://" + u.Host + u.Path
	default:
		s = "file://" + u.Path
	}
	if u.Subdir != "" {
		s += "#" + u.Subdir
	}
	return s
}

// Root resolves the URI to a local directory, mounting the share first if
// it is not already mounted. mountBase is where nfs mountpoints live
// (typically <cache>/mounts).
func (u URI) Root(mountBase string) (string, error) {
	switch u.Scheme {
	case "file":
		return filepath.Join(u.Path, u.Subdir), nil
	case "nfs":
		mountpoint, err := u.ensureMounted(mountBase)
		if err != nil {
			return "", err
		}
		return filepath.Join(mountpoint, u.Subdir), nil
	}
	return "", errors.New("unsupported scheme " + u.Scheme)
}

// ensureMounted checks /proc/mounts for the export and invokes mount(8)
// when absent. The mountpoint is derived from the host and a short hash of
// the export path so distinct exports never collide.
func (u URI) ensureMounted(mountBase string) (string, error) {
	sum := sha256.Sum256([]byte(u.Path))
	mountpoint := filepath.Join(mountBase, u.Host, hex.EncodeToString(sum[:4]))
	device := u.Host + ":" + u.Path

	mounted, err := isMounted(mountpoint)
	if err != nil {
		return "", err
	}
	if mounted {
		return mountpoint, nil
	}
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return "", err
	}
	log.WithField("device", device).Info("mounting repository share")
	cmd := exec.Command("mount", "-t", "nfs", "-o", "ro,nolock", device, mountpoint)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mounting %s at %s: %w", device, mountpoint, err)
	}
	return mountpoint, nil
}

func isMounted(mountpoint string) (bool, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == mountpoint {
			return true, nil
		}
	}
	return false, scanner.Err()
}
