// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"maps"
	"slices"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/roomstate"
)

// applyBatch dispatches one sync response. Joined rooms go in the
// order the server listed them; within a room, state, then timeline,
// then ephemeral, then account data. Leave sections for known rooms
// follow, then global presence. The cursor is not touched here.
func (s *Session) applyBatch(ctx context.Context, response *messaging.SyncResponse, initial bool) {
	for _, roomID := range response.Rooms.Join.Order {
		joined := response.Rooms.Join.Rooms[roomID]
		room := s.ensureRoom(roomID)

		if joined.Timeline.PrevBatch != "" && (initial || room.PrevBatch() == "") {
			room.SetPrevBatch(joined.Timeline.PrevBatch)
		}
		room.SetUnread(joined.UnreadNotifications)

		s.dispatchAll(ctx, room, joined.State.Events)
		s.dispatchAll(ctx, room, joined.Timeline.Events)
		s.dispatchAll(ctx, room, joined.Ephemeral.Events)
		s.dispatchAll(ctx, room, joined.AccountData.Events)
	}

	for _, key := range response.Rooms.Join.Skipped {
		s.logger.Debug("skipping joined room with malformed id", "room_id", key)
	}

	// The leave section carries our own departure. Map order is random,
	// so sort for a stable dispatch order.
	leftKeys := slices.Sorted(maps.Keys(response.Rooms.Leave))
	for _, key := range leftKeys {
		roomID, err := ref.ParseRoomID(key)
		if err != nil {
			s.logger.Debug("skipping left room with malformed id", "room_id", key)
			continue
		}
		room, ok := s.Room(roomID)
		if !ok {
			continue
		}
		left := response.Rooms.Leave[key]
		s.dispatchAll(ctx, room, left.State.Events)
		s.dispatchAll(ctx, room, left.Timeline.Events)
	}

	for _, event := range response.Presence.Events {
		s.dispatcher.Dispatch(ctx, s, nil, event)
	}
}

func (s *Session) dispatchAll(ctx context.Context, room *roomstate.Room, events []messaging.Event) {
	for _, event := range events {
		if event.RoomID.IsZero() {
			event.RoomID = room.ID()
		}
		s.dispatcher.Dispatch(ctx, s, room, event)
	}
}
