// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/roomstate"
)

func TestDispatchUnknownTypeIgnored(t *testing.T) {
	transport := newFakeTransport(alice)
	session, _ := newTestSession(t, transport, Options{})
	room := session.ensureRoom(ref.MustParseRoomID(roomOne))

	event := messaging.Event{
		EventID: ref.MustParseEventID("$reaction:example.org"),
		Type:    ref.EventType("m.reaction"),
		Content: map[string]any{},
	}
	if session.dispatcher.Dispatch(context.Background(), session, room, event) {
		t.Error("Dispatch reported a handler for m.reaction")
	}
	if room.EndToken() != event.EventID {
		t.Errorf("end token = %q, want the unknown event's id", room.EndToken())
	}
}

func TestRegisterAfterStartPanics(t *testing.T) {
	transport := newFakeTransport(alice)
	session, _ := newTestSession(t, transport, Options{})

	defer func() {
		if recover() == nil {
			t.Error("Register after initial sync did not panic")
		}
	}()
	session.dispatcher.Register(ref.EventType("org.example.late"), func(context.Context, *Session, *roomstate.Room, messaging.Event) {})
}

func TestRegisterDuplicatePanics(t *testing.T) {
	dispatcher := NewDefaultDispatcher(nil)
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	dispatcher.Register(ref.EventTypeMessage, func(context.Context, *Session, *roomstate.Room, messaging.Event) {})
}

func TestEndTokenIsLastEventOfBatch(t *testing.T) {
	transport := newFakeTransport(alice)
	session, _ := startTestSession(t, transport, Options{})

	transport.nextPoll(t).respond(syncResponse("T1",
		roomBatch{
			roomID: roomOne,
			timeline: []messaging.Event{
				messageEvent("$a1:example.org", bob, "one", 1000, 0),
				memberEvent("$a2:example.org", "@carol:example.org", "join"),
				messageEvent("$a3:example.org", bob, "three", 3000, 0),
			},
			ephemeral: []messaging.Event{typingEvent(bob)},
		},
		roomBatch{
			roomID: roomTwo,
			timeline: []messaging.Event{
				messageEvent("$b1:example.org", bob, "one", 1000, 0),
				{
					EventID: ref.MustParseEventID("$b2:example.org"),
					Type:    ref.EventType("m.reaction"),
					Content: map[string]any{},
				},
			},
		},
	))
	transport.nextPoll(t)

	tests := map[string]string{roomOne: "$a3:example.org", roomTwo: "$b2:example.org"}
	for roomID, want := range tests {
		room, ok := session.Room(ref.MustParseRoomID(roomID))
		if !ok {
			t.Fatalf("room %s missing", roomID)
		}
		if got := room.EndToken().String(); got != want {
			t.Errorf("%s end token = %q, want %q", roomID, got, want)
		}
	}
}

func TestCorrectedTimestampsNonDecreasing(t *testing.T) {
	transport := newFakeTransport(alice)
	var timeline []messaging.Event
	for index, ts := range []int64{1000, 1000, 1001, 1500, 1500, 2999, 3000} {
		timeline = append(timeline, messageEvent(
			"$"+string(rune('a'+index))+":example.org", bob, "x", ts, 0))
	}
	transport.initial = syncResponse("T0", roomBatch{roomID: roomOne, timeline: timeline})
	session, _ := newTestSession(t, transport, Options{})

	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	history := room.History()
	timestamps := make([]float64, len(history))
	for index, entry := range history {
		timestamps[index] = entry.Timestamp
	}
	if !slices.IsSorted(timestamps) {
		t.Errorf("timestamps not non-decreasing: %v", timestamps)
	}
	if timestamps[2] != 1.001 {
		t.Errorf("sub-second precision lost: %v", timestamps[2])
	}
}

func TestMembershipHandler(t *testing.T) {
	transport := newFakeTransport(alice)
	transport.initial = syncResponse("T0", roomBatch{
		roomID: roomOne,
		state:  []messaging.Event{memberEvent("$m1:example.org", bob, "join")},
	})
	sink := &recordingSink{}
	session, _ := startTestSession(t, transport, Options{
		Sink:    sink,
		Toggles: Toggles{Membership: true},
	})

	knock := memberEvent("$m2:example.org", "@dave:example.org", "knock")
	leave := memberEvent("$m3:example.org", bob, "leave")
	invite := memberEvent("$m4:example.org", "@carol:example.org", "invite")
	invite.Content["displayname"] = "Carol"
	transport.nextPoll(t).respond(syncResponse("T1", roomBatch{
		roomID:   roomOne,
		timeline: []messaging.Event{knock, leave, invite},
	}))
	transport.nextPoll(t)

	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	if _, ok := room.Member(ref.MustParseUserID(bob)); ok {
		t.Error("bob still a member after leave")
	}
	if _, ok := room.Member(ref.MustParseUserID("@dave:example.org")); ok {
		t.Error("knock was recorded")
	}
	carol, ok := room.Member(ref.MustParseUserID("@carol:example.org"))
	if !ok || carol.Membership != roomstate.Invite || carol.DisplayName != "Carol" {
		t.Errorf("carol = %+v, %v", carol, ok)
	}
	if sink.membershipCount() != 2 {
		t.Errorf("membership renders = %d, want 2 (leave, invite)", sink.membershipCount())
	}
}

func TestMembershipRenderToggleOff(t *testing.T) {
	transport := newFakeTransport(alice)
	sink := &recordingSink{}
	session, _ := startTestSession(t, transport, Options{Sink: sink})

	transport.nextPoll(t).respond(syncResponse("T1", roomBatch{
		roomID:   roomOne,
		timeline: []messaging.Event{memberEvent("$m1:example.org", bob, "join")},
	}))
	transport.nextPoll(t)

	if sink.membershipCount() != 0 {
		t.Errorf("membership rendered with toggle off")
	}
	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	if _, ok := room.Member(ref.MustParseUserID(bob)); !ok {
		t.Error("membership not recorded with toggle off")
	}
}

func TestPresenceRenderToggle(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		t.Run(fmt.Sprintf("presence=%v", enabled), func(t *testing.T) {
			transport := newFakeTransport(alice)
			sink := &recordingSink{}
			session, _ := startTestSession(t, transport, Options{
				Sink:    sink,
				Toggles: Toggles{Presence: enabled},
			})

			batch := syncResponse("T1")
			batch.Presence.Events = []messaging.Event{presenceEvent(bob, "unavailable")}
			transport.nextPoll(t).respond(batch)
			transport.nextPoll(t)

			presence, ok := session.Presence(ref.MustParseUserID(bob))
			if !ok || presence.State != "unavailable" {
				t.Errorf("presence table = %+v, %v; want unavailable", presence, ok)
			}
			calls := sink.presenceList()
			switch {
			case enabled && (len(calls) != 1 || calls[0].String() != bob):
				t.Errorf("PresenceChanged calls = %v, want [%s]", calls, bob)
			case !enabled && len(calls) != 0:
				t.Errorf("presence rendered with the toggle off: %v", calls)
			}
		})
	}
}

func TestTypingReplacesSet(t *testing.T) {
	transport := newFakeTransport(alice)
	session, _ := startTestSession(t, transport, Options{})

	transport.nextPoll(t).respond(syncResponse("T1", roomBatch{
		roomID:    roomOne,
		ephemeral: []messaging.Event{typingEvent(bob, "@carol:example.org")},
	}))
	transport.nextPoll(t).respond(syncResponse("T2", roomBatch{
		roomID:    roomOne,
		ephemeral: []messaging.Event{typingEvent("@dave:example.org")},
	}))
	transport.nextPoll(t)

	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	typing := room.Typing()
	if len(typing) != 1 || typing[0].String() != "@dave:example.org" {
		t.Errorf("typing = %v, want [@dave:example.org]", typing)
	}
}

func TestReceiptNeverRewinds(t *testing.T) {
	transport := newFakeTransport(alice)
	session, _ := startTestSession(t, transport, Options{})

	receipt := messaging.Event{
		Type: ref.EventTypeReceipt,
		Content: map[string]any{
			"$e1:example.org": map[string]any{
				"m.read": map[string]any{alice: map[string]any{"ts": 1.0}},
			},
		},
	}
	transport.nextPoll(t).respond(syncResponse("T1", roomBatch{
		roomID: roomOne,
		timeline: []messaging.Event{
			messageEvent("$e1:example.org", bob, "one", 1000, 0),
			messageEvent("$e2:example.org", bob, "two", 2000, 0),
		},
		ephemeral: []messaging.Event{receipt},
	}))
	transport.nextPoll(t)

	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	if got := room.EndToken().String(); got != "$e2:example.org" {
		t.Errorf("end token = %q after older receipt, want $e2:example.org", got)
	}
}

func TestRoomMetadataAndRedaction(t *testing.T) {
	transport := newFakeTransport(alice)
	transport.initial = syncResponse("T0", roomBatch{
		roomID: roomOne,
		state: []messaging.Event{
			{EventID: ref.MustParseEventID("$n:example.org"), Type: ref.EventTypeName, StateKey: stringPtr(""), Content: map[string]any{"name": "Ops"}},
			{EventID: ref.MustParseEventID("$t:example.org"), Type: ref.EventTypeTopic, StateKey: stringPtr(""), Content: map[string]any{"topic": "on call"}},
			{EventID: ref.MustParseEventID("$c:example.org"), Type: ref.EventTypeCanonicalAlias, StateKey: stringPtr(""), Content: map[string]any{"alias": "#ops:example.org"}},
		},
		timeline: []messaging.Event{
			messageEvent("$secret:example.org", bob, "password123", 1000, 0),
			{
				EventID: ref.MustParseEventID("$redact:example.org"),
				Type:    ref.EventTypeRedaction,
				Sender:  ref.MustParseUserID(bob),
				Redacts: ref.MustParseEventID("$secret:example.org"),
				Content: map[string]any{},
			},
		},
	})
	session, _ := newTestSession(t, transport, Options{})

	room, _ := session.Room(ref.MustParseRoomID(roomOne))
	if room.Name() != "Ops" || room.Topic() != "on call" || room.CanonicalAlias() != "#ops:example.org" {
		t.Errorf("metadata = %q %q %q", room.Name(), room.Topic(), room.CanonicalAlias())
	}
	history := room.History()
	if len(history) != 1 || !history[0].Redacted || len(history[0].Event.Content) != 0 {
		t.Errorf("history = %+v, want one redacted entry", history)
	}
}
