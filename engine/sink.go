// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/roomstate"
)

// RenderSink receives state changes for display. Calls for room events
// come from the sync loop goroutine in dispatch order; RoomSurfaced
// comes from whichever goroutine called ShowNotification.
//
// A sink may see the same message event id twice (a reconnect that
// re-fetches a window overlapping what it already rendered) and should
// treat repeats as no-ops.
type RenderSink interface {
	RoomCreated(room *roomstate.Room)

	// MembershipChanged is called only while membership rendering is
	// enabled. existed is false for a user new to the room.
	MembershipChanged(room *roomstate.Room, user ref.UserID, previous roomstate.Member, existed bool, current roomstate.Member)

	// PresenceChanged is called only while presence rendering is
	// enabled.
	PresenceChanged(user ref.UserID, presence Presence)

	TypingChanged(room *roomstate.Room, users []ref.UserID)
	MessageAppended(room *roomstate.Room, entry roomstate.Entry)

	// RoomSurfaced asks the presentation layer to bring room forward,
	// in response to a notification action.
	RoomSurfaced(room *roomstate.Room)

	// Status reports loop conditions the user should know about: a
	// retry in progress, or the loop stopping.
	Status(message string)
}

// FocusFunc reports whether the presentation layer is showing roomID.
type FocusFunc func(roomID ref.RoomID) bool

// NopSink discards everything. Embed it to implement part of
// RenderSink.
type NopSink struct{}

func (NopSink) RoomCreated(*roomstate.Room) {}
func (NopSink) MembershipChanged(*roomstate.Room, ref.UserID, roomstate.Member, bool, roomstate.Member) {
}
func (NopSink) PresenceChanged(ref.UserID, Presence)             {}
func (NopSink) TypingChanged(*roomstate.Room, []ref.UserID)      {}
func (NopSink) MessageAppended(*roomstate.Room, roomstate.Entry) {}
func (NopSink) RoomSurfaced(*roomstate.Room)                     {}
func (NopSink) Status(string)                                    {}
