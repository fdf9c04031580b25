// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/courier/lib/eventtime"
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/roomstate"
)

func handleMember(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil || event.StateKey == nil {
		return
	}
	user, err := ref.ParseUserID(*event.StateKey)
	if err != nil {
		session.logger.Debug("member event with invalid state key",
			"room_id", room.ID(), "state_key", *event.StateKey)
		return
	}
	membership, ok := roomstate.ParseMembership(event.ContentString("membership"))
	if !ok {
		return
	}
	current := roomstate.Member{
		Membership:  membership,
		DisplayName: event.ContentString("displayname"),
	}
	previous, existed := room.SetMembership(user, current.Membership, current.DisplayName)
	if session.Toggles().Membership {
		session.sink.MembershipChanged(room, user, previous, existed, current)
	}
}

func handlePresence(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if event.Sender.IsZero() {
		return
	}
	state := event.ContentString("presence")
	if state == "" {
		return
	}
	lastActiveAgo, _ := event.Content["last_active_ago"].(float64)
	currentlyActive, _ := event.Content["currently_active"].(bool)
	presence := Presence{
		State:           state,
		StatusMessage:   event.ContentString("status_msg"),
		CurrentlyActive: currentlyActive,
		LastActiveAgo:   int64(lastActiveAgo),
		Updated:         eventtime.Corrected(event.OriginServerTS, event.Age()),
	}
	session.presence.set(event.Sender, presence)
	if session.Toggles().Presence {
		session.sink.PresenceChanged(event.Sender, presence)
	}
}

func handleMessage(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil {
		return
	}
	entry := roomstate.Entry{
		Event:     event,
		Timestamp: eventtime.Corrected(event.OriginServerTS, event.Age()),
	}
	room.Append(entry)
	session.sink.MessageAppended(room, entry)
	session.notifyMessage(ctx, room, event)
}

func handleTyping(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil {
		return
	}
	raw, _ := event.Content["user_ids"].([]any)
	users := make([]ref.UserID, 0, len(raw))
	for _, value := range raw {
		text, _ := value.(string)
		user, err := ref.ParseUserID(text)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	room.SetTyping(users)
	session.sink.TypingChanged(room, room.Typing())
}

// handleReceipt moves the end token forward to the newest event the
// user has read on another device. Receipts from other users are
// ignored.
func handleReceipt(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil {
		return
	}
	own := session.UserID().String()
	for rawEventID, value := range event.Content {
		receipts, _ := value.(map[string]any)
		if !receiptIncludes(receipts, own) {
			continue
		}
		eventID, err := ref.ParseEventID(rawEventID)
		if err != nil {
			continue
		}
		room.AdvanceEndTokenTo(eventID)
	}
}

func receiptIncludes(receipts map[string]any, user string) bool {
	for _, receiptType := range []string{"m.read", "m.read.private"} {
		readers, _ := receipts[receiptType].(map[string]any)
		if _, ok := readers[user]; ok {
			return true
		}
	}
	return false
}

func handleFullyRead(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil {
		return
	}
	eventID, err := ref.ParseEventID(event.ContentString("event_id"))
	if err != nil {
		return
	}
	room.AdvanceEndTokenTo(eventID)
}

func handleName(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room != nil {
		room.SetName(event.ContentString("name"))
	}
}

func handleTopic(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room != nil {
		room.SetTopic(event.ContentString("topic"))
	}
}

func handleCanonicalAlias(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room != nil {
		room.SetCanonicalAlias(event.ContentString("alias"))
	}
}

// handleRedaction accepts the target in the top-level redacts field or,
// for newer room versions, in content.
func handleRedaction(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) {
	if room == nil {
		return
	}
	target := event.Redacts
	if target.IsZero() {
		parsed, err := ref.ParseEventID(event.ContentString("redacts"))
		if err != nil {
			return
		}
		target = parsed
	}
	room.Redact(target)
}
