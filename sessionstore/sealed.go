// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bureau-foundation/courier/lib/sealed"
	"github.com/bureau-foundation/courier/lib/secret"
)

// SealedStore keeps the record encrypted to an age identity. The file
// is useless without the identity's private key.
type SealedStore struct {
	Path     string
	Identity *sealed.Keypair
}

// NewSealedStore loads the age identity at identityPath and returns a
// store writing to path. Close the returned store to release the
// private key memory.
func NewSealedStore(path, identityPath string) (*SealedStore, error) {
	identity, err := sealed.LoadIdentityFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: loading identity: %w", err)
	}
	return &SealedStore{Path: path, Identity: identity}, nil
}

func (s *SealedStore) Load() (*Record, error) {
	ciphertext, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading %s: %w", s.Path, err)
	}
	plaintext, err := sealed.Decrypt(ciphertext, s.Identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: decrypting %s: %w", s.Path, err)
	}
	defer plaintext.Close()
	return decodeRecord(plaintext.Bytes(), s.Path)
}

func (s *SealedStore) Save(record *Record) error {
	plaintext, err := encodeRecord(record)
	if err != nil {
		return err
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Encrypt(plaintext, s.Identity.PublicKey)
	if err != nil {
		return fmt.Errorf("sessionstore: encrypting record: %w", err)
	}
	return writeFileAtomic(s.Path, ciphertext)
}

func (s *SealedStore) Delete() error {
	return removeIfExists(s.Path)
}

// Close releases the identity's private key.
func (s *SealedStore) Close() error {
	if s.Identity == nil {
		return nil
	}
	return s.Identity.Close()
}
