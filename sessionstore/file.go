// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/courier/lib/secret"
)

// FileStore keeps the record as JSON at Path, mode 0600, in a
// directory created with mode 0700.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading %s: %w", s.Path, err)
	}
	defer secret.Zero(data)
	return decodeRecord(data, s.Path)
}

func (s *FileStore) Save(record *Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	defer secret.Zero(data)
	return writeFileAtomic(s.Path, data)
}

func (s *FileStore) Delete() error {
	return removeIfExists(s.Path)
}

// writeFileAtomic writes data to path through a temporary file in the
// same directory: write, sync, close, rename. The directory is created
// owner-only if missing.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sessionstore: creating directory for %s: %w", path, err)
	}

	// A leftover temporary file from a crashed write may carry wider
	// permissions; start from a fresh owner-only file.
	temporaryPath := path + ".tmp"
	if err := removeIfExists(temporaryPath); err != nil {
		return err
	}
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("sessionstore: creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("sessionstore: writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("sessionstore: syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("sessionstore: closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("sessionstore: renaming %s: %w", temporaryPath, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sessionstore: removing %s: %w", path, err)
	}
	return nil
}
