// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/courier/lib/ref"
)

// DefaultCapacity is the number of notifications the ledger remembers.
const DefaultCapacity = 20

// Entry maps a notification id to the event it announced.
type Entry struct {
	ID      string
	RoomID  ref.RoomID
	EventID ref.EventID
}

// Ledger is a bounded list of recent notifications, newest first.
// All methods are safe for concurrent use.
type Ledger struct {
	mutex    sync.Mutex
	entries  []Entry
	capacity int
}

// NewLedger creates a ledger holding at most capacity entries. A
// capacity of zero or less selects DefaultCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Insert records entry as the newest notification. An existing entry
// with the same id is replaced. When the ledger is full the oldest
// inserted entry is evicted.
func (ledger *Ledger) Insert(entry Entry) {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	ledger.entries = slices.DeleteFunc(ledger.entries, func(existing Entry) bool {
		return existing.ID == entry.ID
	})
	ledger.entries = slices.Insert(ledger.entries, 0, entry)
	if len(ledger.entries) > ledger.capacity {
		ledger.entries = ledger.entries[:ledger.capacity]
	}
}

// Lookup returns the entry for a notification id. Evicted and unknown
// ids report false.
func (ledger *Ledger) Lookup(id string) (Entry, bool) {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	for _, entry := range ledger.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// ContainsEvent reports whether a notification for the event is still
// in the ledger.
func (ledger *Ledger) ContainsEvent(roomID ref.RoomID, eventID ref.EventID) bool {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	for _, entry := range ledger.entries {
		if entry.RoomID == roomID && entry.EventID == eventID {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (ledger *Ledger) Len() int {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	return len(ledger.entries)
}

// Entries returns a copy of the entries, newest first.
func (ledger *Ledger) Entries() []Entry {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	return slices.Clone(ledger.entries)
}
