// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/courier/lib/ref"
)

// RecordVersion is the Record layout written by this package.
const RecordVersion = 1

// ErrNotFound is returned by Load when nothing has been saved.
var ErrNotFound = errors.New("sessionstore: no saved session")

// Record is a saved login.
type Record struct {
	Version     int        `json:"version"`
	UserID      ref.UserID `json:"user_id"`
	Homeserver  string     `json:"homeserver"`
	AccessToken string     `json:"access_token"`

	// TransactionCounter is the last transaction counter used with
	// AccessToken. Transaction ids are scoped to the token, so resuming
	// must continue past it.
	TransactionCounter int64 `json:"txn_id"`
}

// Matches reports whether the record belongs to user on homeserver.
// A zero user matches any saved user.
func (r *Record) Matches(user ref.UserID, homeserver string) bool {
	if !user.IsZero() && r.UserID != user {
		return false
	}
	return homeserver == "" || r.Homeserver == homeserver
}

// Store persists a single Record.
type Store interface {
	// Load returns the saved record, or ErrNotFound.
	Load() (*Record, error)
	// Save replaces the saved record.
	Save(record *Record) error
	// Delete removes the saved record. Deleting nothing is not an error.
	Delete() error
}

func encodeRecord(record *Record) ([]byte, error) {
	if record.UserID.IsZero() {
		return nil, fmt.Errorf("sessionstore: record has no user_id")
	}
	if record.AccessToken == "" {
		return nil, fmt.Errorf("sessionstore: record for %s has no access token", record.UserID)
	}
	stamped := *record
	stamped.Version = RecordVersion
	return json.Marshal(&stamped)
}

// decodeRecord parses and validates record JSON. The caller zeroes data.
// Version 0 is the unversioned layout, which has the same fields.
func decodeRecord(data []byte, source string) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("sessionstore: parsing %s: %w", source, err)
	}
	if record.Version > RecordVersion {
		return nil, fmt.Errorf("sessionstore: %s has version %d, newest supported is %d", source, record.Version, RecordVersion)
	}
	if record.AccessToken == "" {
		return nil, fmt.Errorf("sessionstore: %s has empty access token", source)
	}
	if record.UserID.IsZero() {
		return nil, fmt.Errorf("sessionstore: %s has no user_id", source)
	}
	record.Version = RecordVersion
	return &record, nil
}
