// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// identifier describes one kind of sigil-prefixed Matrix identifier.
type identifier struct {
	sigil byte
	kind  string

	// Event IDs from room version 4 on, and room IDs from room
	// version 12 on, carry no ":server" suffix.
	serverOptional bool
}

var (
	userIdentifier  = identifier{sigil: '@', kind: "user ID"}
	roomIdentifier  = identifier{sigil: '!', kind: "room ID", serverOptional: true}
	eventIdentifier = identifier{sigil: '$', kind: "event ID", serverOptional: true}
)

// split checks raw against the identifier's shape and returns the
// parts on either side of the first ':'.
func (k identifier) split(raw string) (localpart, server string, err error) {
	switch {
	case raw == "":
		return "", "", fmt.Errorf("empty %s", k.kind)
	case raw[0] != k.sigil:
		return "", "", fmt.Errorf("%s must start with '%c': %q", k.kind, k.sigil, raw)
	case len(raw) == 1:
		return "", "", fmt.Errorf("%s has nothing after '%c'", k.kind, k.sigil)
	}
	localpart, server, found := strings.Cut(raw[1:], ":")
	if k.serverOptional && !found {
		return localpart, "", nil
	}
	if !found {
		return "", "", fmt.Errorf("%s missing ':server' suffix: %q", k.kind, raw)
	}
	if localpart == "" {
		return "", "", fmt.Errorf("%s has empty local part: %q", k.kind, raw)
	}
	if server == "" {
		return "", "", fmt.Errorf("%s has empty server name: %q", k.kind, raw)
	}
	return localpart, server, nil
}

func (k identifier) mustParse(raw string) string {
	if _, _, err := k.split(raw); err != nil {
		panic(fmt.Sprintf("ref: %v", err))
	}
	return raw
}

// unmarshal parses data into *id, leaving the zero value for empty
// input so optional fields decode cleanly.
func (k identifier) unmarshal(data []byte, id *string) error {
	if len(data) == 0 {
		*id = ""
		return nil
	}
	if _, _, err := k.split(string(data)); err != nil {
		return err
	}
	*id = string(data)
	return nil
}

// UserID is a Matrix user such as "@alice:example.org". Only the
// structure is checked; localpart character rules are the homeserver's
// business. The zero value means unset.
type UserID struct{ id string }

func ParseUserID(raw string) (UserID, error) {
	if _, _, err := userIdentifier.split(raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is ParseUserID for known-good input; it panics on
// error.
func MustParseUserID(raw string) UserID { return UserID{id: userIdentifier.mustParse(raw)} }

func (u UserID) String() string { return u.id }
func (u UserID) IsZero() bool   { return u.id == "" }

// Localpart is the part between '@' and ':', the name typed at login.
func (u UserID) Localpart() string {
	localpart, _, _ := userIdentifier.split(u.id)
	return localpart
}

func (u UserID) Server() string {
	_, server, _ := userIdentifier.split(u.id)
	return server
}

func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }
func (u *UserID) UnmarshalText(data []byte) error {
	return userIdentifier.unmarshal(data, &u.id)
}

// RoomID is a server-assigned room identifier such as
// "!abc123:example.org", or "!<hash>" from room version 12 on. courier
// only ever receives these from /sync.
type RoomID struct{ id string }

func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := roomIdentifier.split(raw); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

func MustParseRoomID(raw string) RoomID { return RoomID{id: roomIdentifier.mustParse(raw)} }

func (r RoomID) String() string { return r.id }
func (r RoomID) IsZero() bool   { return r.id == "" }

func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }
func (r *RoomID) UnmarshalText(data []byte) error {
	return roomIdentifier.unmarshal(data, &r.id)
}

// EventID names one event, and doubles as a room's read position.
// Both "$opaque" and the older "$opaque:server" forms are accepted.
type EventID struct{ id string }

func ParseEventID(raw string) (EventID, error) {
	if _, _, err := eventIdentifier.split(raw); err != nil {
		return EventID{}, err
	}
	return EventID{id: raw}, nil
}

func MustParseEventID(raw string) EventID { return EventID{id: eventIdentifier.mustParse(raw)} }

func (e EventID) String() string { return e.id }
func (e EventID) IsZero() bool   { return e.id == "" }

func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }
func (e *EventID) UnmarshalText(data []byte) error {
	return eventIdentifier.unmarshal(data, &e.id)
}
