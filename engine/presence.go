// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"maps"
	"sync"

	"github.com/bureau-foundation/courier/lib/ref"
)

// Presence is one user's last reported presence.
type Presence struct {
	// State is "online", "unavailable" or "offline".
	State           string
	StatusMessage   string
	CurrentlyActive bool

	// LastActiveAgo is milliseconds before Updated that the user was
	// last active, as reported by the server.
	LastActiveAgo int64

	// Updated is the corrected time of the presence event, in seconds.
	Updated float64
}

// presenceTable is the session-wide user → presence map. Presence is
// not scoped to rooms.
type presenceTable struct {
	mu    sync.RWMutex
	users map[ref.UserID]Presence
}

func newPresenceTable() *presenceTable {
	return &presenceTable{users: make(map[ref.UserID]Presence)}
}

func (t *presenceTable) set(user ref.UserID, presence Presence) (previous Presence, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, existed = t.users[user]
	t.users[user] = presence
	return previous, existed
}

func (t *presenceTable) get(user ref.UserID) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	presence, ok := t.users[user]
	return presence, ok
}

func (t *presenceTable) snapshot() map[ref.UserID]Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.users)
}

func (t *presenceTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.users)
}
