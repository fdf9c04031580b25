// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers.
//
// Room IDs, user IDs, and event IDs arrive from the homeserver as plain
// strings. They are parsed into these value types at the boundary
// (JSON decoding, configuration, command-line arguments) so the rest of
// courier never has to re-validate them or confuse one kind of string
// for another.
//
// All types implement encoding.TextMarshaler and
// encoding.TextUnmarshaler, so they work as JSON values, JSON object
// keys (the rooms map of a /sync response), and CBOR text strings.
package ref
