// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `yaml:"root_path"`
	CreateDirs bool   `yaml:"create_dirs"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath   string
	createDirs bool
}

var _ storage.Backend = (*LocalBackend)(nil)

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, errors.NotValidf("empty root_path")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, errors.Annotatef(mkErr, "create root path %s", cfg.RootPath)
			}
		} else {
			return nil, errors.Annotatef(err, "stat root path %s", cfg.RootPath)
		}
	} else if !info.IsDir() {
		return nil, errors.NotValidf("root path %s (not a directory)", cfg.RootPath)
	}

	return &LocalBackend{
		rootPath:   cfg.RootPath,
		createDirs: cfg.CreateDirs,
	}, nil
}

// fullPath resolves key under the root. Keys that are absolute or climb out
// of the root with ".." are rejected; the empty key names the root itself.
func (b *LocalBackend) fullPath(key string) (string, error) {
	if key == "" {
		return b.rootPath, nil
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", errors.NotValidf("key %q (outside storage root)", key)
	}
	return filepath.Join(b.rootPath, rel), nil
}

// Get reads a file from the local filesystem.
func (b *LocalBackend) Get(_ context.Context, key string) (data []byte, err error) {
	defer observe("get", time.Now(), &err)

	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("key %q", key)
		}
		return nil, errors.Annotatef(err, "read %s", key)
	}
	return data, nil
}

// List walks the directory named by all but the last segment of prefix and
// returns the names of files containing the last segment. A prefix without a
// slash names a directory and matches every file under it.
func (b *LocalBackend) List(_ context.Context, prefix string) (listing storage.Listing, err error) {
	defer observe("list", time.Now(), &err)

	prefix = strings.TrimRight(prefix, "/")
	dir, filter := prefix, ""
	if idx := strings.LastIndexByte(prefix, '/'); idx >= 0 {
		dir, filter = prefix[:idx], prefix[idx+1:]
	}

	root, err := b.fullPath(dir)
	if err != nil {
		return storage.Listing{}, err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root && os.IsNotExist(walkErr) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if filter == "" || strings.Contains(d.Name(), filter) {
			listing.Keys = append(listing.Keys, d.Name())
		}
		return nil
	})
	if err != nil {
		return storage.Listing{}, errors.Annotatef(err, "list %s", prefix)
	}
	return listing, nil
}

// Exists reports whether a regular file exists at key.
func (b *LocalBackend) Exists(_ context.Context, key string) (ok bool, err error) {
	defer observe("exists", time.Now(), &err)

	path, err := b.fullPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Annotatef(err, "stat %s", key)
	}
	return info.Mode().IsRegular(), nil
}

// Remove deletes a file. Unlike the remote backends, removing a missing key
// is reported as NotFound.
func (b *LocalBackend) Remove(_ context.Context, key string) (err error) {
	defer observe("remove", time.Now(), &err)

	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundf("key %q", key)
		}
		return errors.Annotatef(err, "stat %s", key)
	}
	if !info.Mode().IsRegular() {
		return errors.NotValidf("key %q (not a file)", key)
	}
	if err := os.Remove(path); err != nil {
		return errors.Annotatef(err, "delete %s", key)
	}
	return nil
}

// Put writes content to the local filesystem atomically.
func (b *LocalBackend) Put(_ context.Context, key string, data []byte) (err error) {
	defer observe("put", time.Now(), &err)

	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	if b.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Annotatef(err, "create dirs for %s", key)
		}
	}

	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, ".pqai-*.tmp")
	if err != nil {
		return errors.Annotatef(err, "create temp for %s", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Annotatef(err, "write %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Annotatef(err, "close temp for %s", key)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Annotatef(err, "rename temp to %s", key)
	}

	return nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// Root returns the directory keys are resolved against.
func (b *LocalBackend) Root() string { return b.rootPath }

func observe(op string, start time.Time, err *error) {
	success := *err == nil || storage.IsNotFound(*err)
	metrics.RecordStorageOperation("local", op, time.Since(start), success)
}
