// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package repo

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pb "gopkg.in/cheggaaa/pb.v1"
)

// progressReader wraps r in a byte progress bar on stderr when stderr is a
// terminal. The returned func must be called when the copy is done.
func progressReader(r io.Reader, size int64) (io.Reader, func()) {
	stat, err := os.Stderr.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 || size <= 0 {
		return r, func() {}
	}
	bar := pb.New64(size).SetUnits(pb.U_BYTES)
	bar.Output = os.Stderr
	bar.Start()
	return bar.NewProxyReader(r), bar.Finish
}

func copyFile(src, dst string, withProgress bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	var r io.Reader = in
	if withProgress {
		var done func()
		r, done = progressReader(in, info.Size())
		defer done()
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// copyTree mirrors a directory, preserving mode bits and symlinks.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(p, target, false)
		}
	})
}

// unpackGzip decompresses a single gzipped file.
func unpackGzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	r, done := progressReader(in, info.Size())
	defer done()
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", src, err)
	}
	defer gz.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		return fmt.Errorf("decompressing %s: %w", src, err)
	}
	return out.Close()
}

// unpackTarGzip extracts a gzipped tarball into destDir. Relative paths,
// symlinks and mode bits are preserved; entries that would escape destDir
// are rejected.
func unpackTarGzip(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	r, done := progressReader(in, info.Size())
	defer done()
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", src, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", src, err)
		}
		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive %s: entry %q escapes destination", src, hdr.Name)
		}
		target := filepath.Join(destDir, name)
		mode := hdr.FileInfo().Mode().Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode); err != nil {
				return err
			}
			// MkdirAll only applies the mode to dirs it creates
			if err := os.Chmod(target, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("extracting %s from %s: %w", hdr.Name, src, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			log.WithField("entry", hdr.Name).Warnf("skipping unsupported archive entry type %d", hdr.Typeflag)
		}
	}
	return nil
}

// PackGzip compresses a single file.
func PackGzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	r, done := progressReader(in, info.Size())
	if _, err := io.Copy(gz, r); err != nil {
		done()
		out.Close()
		return fmt.Errorf("compressing %s: %w", src, err)
	}
	done()
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PackTarGzip archives a directory tree into a gzipped tarball. Entries are
// written parents-first with slash-separated relative paths.
func PackTarGzip(srcDir, dst string) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(srcDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			in, err := os.Open(p)
			if err != nil {
				return err
			}
			defer in.Close()
			if _, err := io.Copy(tw, in); err != nil {
				return fmt.Errorf("archiving %s: %w", p, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		tw.Close()
		gz.Close()
		out.Close()
		return walkErr
	}
	if err := tw.Close(); err != nil {
		gz.Close()
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// cleanupTmp removes a partially written temp file, keeping the original
// error.
func cleanupTmp(path string, err error) error {
	if rmErr := os.RemoveAll(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		log.WithError(rmErr).WithField("path", path).Warn("leaving stale temp file behind")
	}
	return err
}

// tmpSibling builds a temp name next to path so the final rename stays
// within one directory.
func tmpSibling(path, token string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, strings.TrimSuffix(base, "/")+".tmp."+token)
}
