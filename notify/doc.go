// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify correlates delivered notifications with the room
// events that caused them.
//
// [Ledger] is a bounded, newest-first record of notification ids and
// the room and event each one refers to. The sync engine consults it
// to avoid notifying twice for the same event, and resolves a user's
// "show" action on a notification back to a room. Entries are evicted
// oldest-inserted first once [DefaultCapacity] is exceeded, so action
// callbacks on long-dismissed notifications resolve to nothing.
//
// [Notifier] is the delivery contract: given a title and body it
// returns an opaque notification id. Bodies pass through [Sanitize]
// before delivery. [LogNotifier] is the backend selected by
// notify.backend "log": it writes each notification as a structured
// log record and derives its id from the room and event.
package notify
