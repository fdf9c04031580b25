// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists what courier needs to resume a Matrix
// session without asking for a password: the credential [Record] and
// the sync [Cursor].
//
// A [Store] loads, saves and deletes one Record. [FileStore] keeps it
// as JSON in an owner-only file; [SealedStore] encrypts the same JSON
// to an age identity so the token is unreadable without the identity
// file. Both write through a temporary file and rename, so a crash
// mid-write leaves the previous record intact.
//
// [CursorFile] keeps the stream cursor and per-room end tokens as
// deterministic CBOR.
package sessionstore
