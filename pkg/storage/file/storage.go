// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-vault.
//
// go-vault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package file provides a filesystem implementation of storage.Backend on
// top of afero, so the same code runs against the OS filesystem in
// production and an in-memory filesystem in tests.
package file

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-vault/pkg/storage"
	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/jeremyhahn/go-vault/pkg/validation"
	"github.com/spf13/afero"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Default file permissions (owner rw only)
	defaultPerms = 0600

	// tempMarker tags in-flight writes; List skips such files
	tempMarker = ".tmp-"
)

// FileStorage is an afero-backed implementation of storage.Backend.
// It stores each key as a file below rootDir and is thread-safe.
type FileStorage struct {
	mu      sync.RWMutex
	fs      afero.Fs
	rootDir string
	closed  bool
}

// New creates a FileStorage rooted at rootDir on fs, creating the directory
// with 0700 permissions if needed.
func New(fs afero.Fs, rootDir string) (*FileStorage, error) {
	if fs == nil {
		return nil, fmt.Errorf("file storage: filesystem cannot be nil")
	}
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	if err := fs.MkdirAll(rootDir, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("%w: file storage: failed to create root directory: %v", types.ErrIO, err)
	}
	return &FileStorage{
		fs:      fs,
		rootDir: filepath.Clean(rootDir),
	}, nil
}

// Get retrieves the value for the given key.
func (f *FileStorage) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, storage.ErrClosed
	}
	path, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("%w: file storage: failed to read key %q: %v", types.ErrIO, key, err)
	}
	return data, nil
}

// Put writes value to the file for key, creating parent directories.
func (f *FileStorage) Put(key string, value []byte, opts *storage.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}
	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(path), defaultDirPerms); err != nil {
		return fmt.Errorf("%w: file storage: failed to create directory for key %q: %v", types.ErrIO, key, err)
	}

	perms := fs.FileMode(defaultPerms)
	if opts != nil && opts.Permissions != 0 {
		perms = opts.Permissions
	}
	if err := f.writeAtomic(path, value, perms); err != nil {
		return fmt.Errorf("%w: file storage: failed to write key %q: %v", types.ErrIO, key, err)
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so readers see either the old or the new value.
func (f *FileStorage) writeAtomic(path string, data []byte, perms fs.FileMode) error {
	tmp, err := afero.TempFile(f.fs, filepath.Dir(path), "."+filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = f.fs.Chmod(name, perms)
	}
	if err == nil {
		err = f.fs.Rename(name, path)
	}
	if err != nil {
		_ = f.fs.Remove(name)
	}
	return err
}

// Delete removes the file for key.
func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}
	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if _, err := f.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return notFound(key)
		}
		return fmt.Errorf("%w: file storage: failed to stat key %q: %v", types.ErrIO, key, err)
	}
	if err := f.fs.Remove(path); err != nil {
		return fmt.Errorf("%w: file storage: failed to delete key %q: %v", types.ErrIO, key, err)
	}
	return nil
}

// List returns all keys with the given prefix in sorted order.
func (f *FileStorage) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, storage.ErrClosed
	}

	keys := make([]string, 0)
	err := afero.Walk(f.fs, f.rootDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || isTemp(info.Name()) {
			return nil
		}
		key, err := f.pathToKey(path)
		if err != nil {
			return err
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: file storage: failed to list keys: %v", types.ErrIO, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (f *FileStorage) Exists(key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return false, storage.ErrClosed
	}
	path, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	ok, err := afero.Exists(f.fs, path)
	if err != nil {
		return false, fmt.Errorf("%w: file storage: failed to check key %q: %v", types.ErrIO, key, err)
	}
	return ok, nil
}

// Close marks the storage closed. Subsequent calls return storage.ErrClosed.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// keyToPath validates key and maps it below the root directory.
func (f *FileStorage) keyToPath(key string) (string, error) {
	if err := validation.ValidateStorageKey(key); err != nil {
		return "", fmt.Errorf("%w: %q: %v", storage.ErrInvalidKey, key, err)
	}
	return filepath.Join(f.rootDir, filepath.FromSlash(key)), nil
}

// pathToKey converts a file path back to a slash separated key.
func (f *FileStorage) pathToKey(path string) (string, error) {
	rel, err := filepath.Rel(f.rootDir, path)
	if err != nil {
		return "", fmt.Errorf("file storage: failed to convert path to key: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempMarker)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %w: %q", storage.ErrNotFound, types.ErrIO, key)
}
