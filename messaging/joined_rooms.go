// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/courier/lib/ref"
)

// JoinedRooms is the rooms.join section of a sync response. Go maps
// lose JSON object order, and dispatch must follow the order the server
// sent, so the section decodes into Order plus a lookup map.
type JoinedRooms struct {
	Order []ref.RoomID
	Rooms map[ref.RoomID]JoinedRoom

	// Skipped lists keys that were not valid room IDs. Their bodies
	// are discarded.
	Skipped []string
}

// Len returns the number of rooms.
func (j *JoinedRooms) Len() int {
	return len(j.Order)
}

// Add appends a room, replacing an existing entry in place.
func (j *JoinedRooms) Add(roomID ref.RoomID, room JoinedRoom) {
	if j.Rooms == nil {
		j.Rooms = make(map[ref.RoomID]JoinedRoom)
	}
	if _, exists := j.Rooms[roomID]; !exists {
		j.Order = append(j.Order, roomID)
	}
	j.Rooms[roomID] = room
}

// UnmarshalJSON decodes a JSON object keyed by room ID, recording key order.
func (j *JoinedRooms) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("messaging: rooms.join: %w", err)
	}
	if token == nil {
		*j = JoinedRooms{}
		return nil
	}
	if delimiter, ok := token.(json.Delim); !ok || delimiter != '{' {
		return fmt.Errorf("messaging: rooms.join: expected object, got %v", token)
	}

	result := JoinedRooms{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("messaging: rooms.join: %w", err)
		}
		key, _ := keyToken.(string)
		roomID, err := ref.ParseRoomID(key)
		if err != nil {
			var discarded json.RawMessage
			if err := decoder.Decode(&discarded); err != nil {
				return fmt.Errorf("messaging: rooms.join[%q]: %w", key, err)
			}
			result.Skipped = append(result.Skipped, key)
			continue
		}

		var room JoinedRoom
		if err := decoder.Decode(&room); err != nil {
			return fmt.Errorf("messaging: rooms.join[%s]: %w", roomID, err)
		}
		result.Add(roomID, room)
	}

	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("messaging: rooms.join: %w", err)
	}
	*j = result
	return nil
}

// MarshalJSON encodes the rooms as a JSON object in Order.
func (j JoinedRooms) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for index, roomID := range j.Order {
		if index > 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(roomID.String())
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(j.Rooms[roomID])
		if err != nil {
			return nil, err
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}
