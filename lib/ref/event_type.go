// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type. It is a named string type
// rather than a struct wrapper: event types need no validation, and
// the type exists only so an event type cannot be passed where a state
// key or message body is expected.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// Event types handled by the sync engine.
const (
	EventTypeMember         EventType = "m.room.member"
	EventTypeMessage        EventType = "m.room.message"
	EventTypeName           EventType = "m.room.name"
	EventTypeTopic          EventType = "m.room.topic"
	EventTypeCanonicalAlias EventType = "m.room.canonical_alias"
	EventTypeRedaction      EventType = "m.room.redaction"
	EventTypePresence       EventType = "m.presence"
	EventTypeTyping         EventType = "m.typing"
	EventTypeReceipt        EventType = "m.receipt"
	EventTypeFullyRead      EventType = "m.fully_read"
)
