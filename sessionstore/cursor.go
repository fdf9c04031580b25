// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bureau-foundation/courier/lib/codec"
)

// CursorVersion is the Cursor layout written by this package.
const CursorVersion = 1

// Cursor is the resumable position in the sync stream.
type Cursor struct {
	Version int `cbor:"version"`
	// UserID is the account the cursor belongs to. A cursor is only
	// resumed by the same user.
	UserID    string `cbor:"user_id"`
	NextBatch string `cbor:"next_batch"`
	// Rooms maps room id to the room's end token.
	Rooms map[string]string `cbor:"rooms"`
}

// CursorFile keeps a Cursor as CBOR at Path.
type CursorFile struct {
	Path string
}

// Load returns the saved cursor, or ErrNotFound.
func (f *CursorFile) Load() (*Cursor, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading %s: %w", f.Path, err)
	}
	var cursor Cursor
	if err := codec.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("sessionstore: parsing %s: %w", f.Path, err)
	}
	if cursor.Version != CursorVersion {
		return nil, fmt.Errorf("sessionstore: %s has cursor version %d, want %d", f.Path, cursor.Version, CursorVersion)
	}
	if cursor.NextBatch == "" {
		return nil, fmt.Errorf("sessionstore: %s has empty next_batch", f.Path)
	}
	return &cursor, nil
}

// Save replaces the saved cursor.
func (f *CursorFile) Save(cursor *Cursor) error {
	stamped := *cursor
	stamped.Version = CursorVersion
	data, err := codec.Marshal(&stamped)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding cursor: %w", err)
	}
	return writeFileAtomic(f.Path, data)
}

// Delete removes the saved cursor.
func (f *CursorFile) Delete() error {
	return removeIfExists(f.Path)
}
