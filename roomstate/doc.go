// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstate holds the client-side state of one joined Matrix
// room: display metadata, membership with display-name resolution, the
// typing set, the end token (the last event id dispatched for the room,
// used as the read-receipt watermark), server unread counters, the
// backfill boundary, and the append-only message history.
//
// A [Room] is written only by the sync loop that owns it. Readers on
// other goroutines (the render layer, focus changes) go through the
// room's read lock, so every accessor returns copies.
package roomstate
