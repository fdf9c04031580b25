// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/courier/lib/ref"
)

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               *UserIdentifier `json:"identifier,omitempty"`
	Password                 string          `json:"password"`
	DeviceID                 string          `json:"device_id,omitempty"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// UserIdentifier identifies the account in a LoginRequest. User may be
// a bare localpart or a full user ID.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// MessageContent is the content body of an m.room.message event.
// Format and FormattedBody carry the HTML rendering when the body
// contains markup (see NewMarkdownMessage).
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// HTMLFormat is the only formatted_body format defined by Matrix.
const HTMLFormat = "org.matrix.custom.html"

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// Event represents a Matrix event from the server.
//
// Ephemeral events (m.typing, m.receipt) and account data carry only
// Type and Content. RoomID is absent inside per-room sync sections; the
// consumer fills it in from the enclosing room key.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id"`
	StateKey       *string        `json:"state_key,omitempty"`
	Redacts        ref.EventID    `json:"redacts"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`

	// malformed names the identifier fields that did not parse.
	malformed []string
}

// wireEvent is Event with its identifiers left as strings.
type wireEvent struct {
	EventID        string         `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         string         `json:"room_id"`
	StateKey       *string        `json:"state_key,omitempty"`
	Redacts        string         `json:"redacts"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// UnmarshalJSON decodes an event without failing on a malformed
// identifier. Such a field is left zero and reported by Malformed, so a
// single bad event cannot fail the sync batch around it.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Event{
		Type:           wire.Type,
		OriginServerTS: wire.OriginServerTS,
		Content:        wire.Content,
		StateKey:       wire.StateKey,
		Unsigned:       wire.Unsigned,
	}
	e.EventID = parseField(wire.EventID, "event_id", ref.ParseEventID, &e.malformed)
	e.Sender = parseField(wire.Sender, "sender", ref.ParseUserID, &e.malformed)
	e.RoomID = parseField(wire.RoomID, "room_id", ref.ParseRoomID, &e.malformed)
	e.Redacts = parseField(wire.Redacts, "redacts", ref.ParseEventID, &e.malformed)
	return nil
}

func parseField[T any](raw, field string, parse func(string) (T, error), malformed *[]string) T {
	var zero T
	if raw == "" {
		return zero
	}
	value, err := parse(raw)
	if err != nil {
		*malformed = append(*malformed, field)
		return zero
	}
	return value
}

// Malformed returns the JSON names of identifier fields that were
// present but invalid. Handlers must not act on such an event.
func (e *Event) Malformed() []string {
	return e.malformed
}

// Age returns unsigned.age, or zero when the server omitted it.
func (e *Event) Age() int64 {
	if e.Unsigned == nil {
		return 0
	}
	return e.Unsigned.Age
}

// ContentString returns content[key] when it is a string.
func (e *Event) ContentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages. With dir=b, Chunk
// is newest first and End is the token for the next older page; End is
// empty when there is no more history.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
	FullState  bool   // return all state events even when Since is set
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string          `json:"next_batch"`
	Presence  PresenceSection `json:"presence"`
	Rooms     RoomsSection    `json:"rooms"`
}

// PresenceSection contains presence events from the /sync response.
type PresenceSection struct {
	Events []Event `json:"events"`
}

// PresenceContent is the content of an m.presence event.
type PresenceContent struct {
	// Presence is "online", "unavailable", or "offline".
	Presence string `json:"presence"`

	// LastActiveAgo is milliseconds since the user was last active.
	LastActiveAgo int64 `json:"last_active_ago,omitempty"`

	CurrentlyActive bool   `json:"currently_active,omitempty"`
	StatusMsg       string `json:"status_msg,omitempty"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Invite and Leave keep their keys as sent; the consumer parses them so
// that one malformed room ID skips one room instead of the batch.
type RoomsSection struct {
	Join   JoinedRooms            `json:"join"`
	Invite map[string]InvitedRoom `json:"invite,omitempty"`
	Leave  map[string]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	State               StateSection             `json:"state"`
	Timeline            TimelineSection          `json:"timeline"`
	Ephemeral           EventsSection            `json:"ephemeral"`
	AccountData         EventsSection            `json:"account_data"`
	UnreadNotifications UnreadNotificationCounts `json:"unread_notifications"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
// PrevBatch is the /messages token for history older than Events.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// EventsSection is the shape of the ephemeral and account_data sections.
type EventsSection struct {
	Events []Event `json:"events"`
}

// UnreadNotificationCounts are the server-side unread counters for a room.
type UnreadNotificationCounts struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

// SendEventResponse is returned by SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
