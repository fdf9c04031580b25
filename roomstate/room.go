// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
)

// Membership is the membership field of an m.room.member event.
type Membership string

const (
	Join   Membership = "join"
	Invite Membership = "invite"
	Leave  Membership = "leave"
	Ban    Membership = "ban"
)

// ParseMembership returns the Membership for a content value, and false
// for values the room model does not track (such as "knock").
func ParseMembership(value string) (Membership, bool) {
	switch membership := Membership(value); membership {
	case Join, Invite, Leave, Ban:
		return membership, true
	default:
		return "", false
	}
}

// Member is one user's membership in the room.
type Member struct {
	Membership  Membership
	DisplayName string
}

// Entry is one event in the room's history with its corrected
// timestamp in seconds.
type Entry struct {
	Event     messaging.Event
	Timestamp float64
	Redacted  bool
}

// Room is the state of one joined room.
type Room struct {
	id ref.RoomID

	mu             sync.RWMutex
	name           string
	topic          string
	canonicalAlias string
	members        map[ref.UserID]Member
	typing         []ref.UserID
	endToken       ref.EventID
	history        []Entry
	prevBatch      string
	unread         messaging.UnreadNotificationCounts

	// sequence numbers every event id that has passed through
	// AdvanceEndToken, so receipts can tell forward from backward.
	sequence     map[ref.EventID]uint64
	nextSequence uint64
}

// New creates an empty room.
func New(id ref.RoomID) *Room {
	return &Room{
		id:       id,
		members:  make(map[ref.UserID]Member),
		sequence: make(map[ref.EventID]uint64),
	}
}

// ID returns the room id.
func (r *Room) ID() ref.RoomID {
	return r.id
}

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Room) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

func (r *Room) Topic() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topic
}

func (r *Room) SetTopic(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = topic
}

func (r *Room) CanonicalAlias() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalAlias
}

func (r *Room) SetCanonicalAlias(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canonicalAlias = alias
}

// Title is the label a client shows for the room: the name, else the
// canonical alias, else the room id.
func (r *Room) Title() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.name != "":
		return r.name
	case r.canonicalAlias != "":
		return r.canonicalAlias
	default:
		return r.id.String()
	}
}

// SetMembership records a membership change and returns the member's
// previous state. A leave removes the user from the member table; the
// returned previous state still reports what they were.
func (r *Room) SetMembership(user ref.UserID, membership Membership, displayName string) (previous Member, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, existed = r.members[user]
	if membership == Leave {
		delete(r.members, user)
		return previous, existed
	}
	r.members[user] = Member{Membership: membership, DisplayName: displayName}
	return previous, existed
}

// Member returns user's membership.
func (r *Room) Member(user ref.UserID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[user]
	return member, ok
}

// Members returns the users with the given membership, sorted by id.
func (r *Room) Members(membership Membership) []ref.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []ref.UserID
	for user, member := range r.members {
		if member.Membership == membership {
			users = append(users, user)
		}
	}
	slices.SortFunc(users, func(a, b ref.UserID) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		default:
			return 0
		}
	})
	return users
}

// DisplayName resolves the name to show for user. It falls back to the
// localpart when the user has no display name in this room, and appends
// the user id when another joined or invited member shares the name.
func (r *Room) DisplayName(user ref.UserID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[user]
	if !ok || member.DisplayName == "" {
		return user.Localpart()
	}
	for other, otherMember := range r.members {
		if other != user && otherMember.DisplayName == member.DisplayName {
			return member.DisplayName + " (" + user.String() + ")"
		}
	}
	return member.DisplayName
}

// SetTyping replaces the typing set.
func (r *Room) SetTyping(users []ref.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = slices.Clone(users)
}

// Typing returns the users currently typing.
func (r *Room) Typing() []ref.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.typing)
}

// EndToken returns the id of the last event dispatched for this room,
// or the zero EventID when none has been.
func (r *Room) EndToken() ref.EventID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endToken
}

// AdvanceEndToken records eventID as the newest event dispatched for
// the room. Dispatch order is stream order, so every call moves the
// token forward.
func (r *Room) AdvanceEndToken(eventID ref.EventID) {
	if eventID.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.sequence[eventID]; !seen {
		r.nextSequence++
		r.sequence[eventID] = r.nextSequence
	}
	r.endToken = eventID
}

// RestoreEndToken sets the end token saved from a previous run. It has
// no effect once the room has dispatched an event.
func (r *Room) RestoreEndToken(eventID ref.EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextSequence == 0 {
		r.endToken = eventID
	}
}

// AdvanceEndTokenTo moves the end token to eventID if eventID was
// dispatched after the current end token. Receipts referencing unknown
// or older events leave the token where it is. Reports whether the
// token moved.
func (r *Room) AdvanceEndTokenTo(eventID ref.EventID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, known := r.sequence[eventID]
	if !known {
		return false
	}
	if !r.endToken.IsZero() && target <= r.sequence[r.endToken] {
		return false
	}
	r.endToken = eventID
	return true
}

// Append adds an entry to the end of the history.
func (r *Room) Append(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
}

// History returns a copy of the history, oldest first.
func (r *Room) History() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history)
}

// HistoryLen returns the number of history entries.
func (r *Room) HistoryLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}

// Redact marks the history entry for eventID redacted and clears its
// content. Reports whether the event was found.
func (r *Room) Redact(eventID ref.EventID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for index := len(r.history) - 1; index >= 0; index-- {
		if r.history[index].Event.EventID == eventID {
			r.history[index].Redacted = true
			r.history[index].Event.Content = map[string]any{}
			return true
		}
	}
	return false
}

// PrevBatch returns the pagination token for history older than the
// oldest event received, empty when unknown or exhausted.
func (r *Room) PrevBatch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prevBatch
}

func (r *Room) SetPrevBatch(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prevBatch = token
}

// Unread returns the server's unread counters.
func (r *Room) Unread() messaging.UnreadNotificationCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unread
}

func (r *Room) SetUnread(counts messaging.UnreadNotificationCounts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unread = counts
}
