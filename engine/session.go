// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/courier/lib/clock"
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/notify"
	"github.com/bureau-foundation/courier/roomstate"
	"github.com/bureau-foundation/courier/sessionstore"
)

var (
	// ErrUnknownRoom is returned for operations on a room the session
	// has not joined.
	ErrUnknownRoom = errors.New("engine: unknown room")

	// ErrLoopRunning is returned by Resume while the sync loop is still
	// running.
	ErrLoopRunning = errors.New("engine: sync loop is running")

	// ErrDisconnected is returned by operations on a session that has
	// been disconnected.
	ErrDisconnected = errors.New("engine: session disconnected")
)

// Session is one logged-in client identity: its transport, stream
// cursor, rooms, presence table and notification ledger.
type Session struct {
	transport  Transport
	dispatcher *Dispatcher
	options    Options
	sink       RenderSink
	clock      clock.Clock
	logger     *slog.Logger
	ledger     *notify.Ledger
	presence   *presenceTable

	transactionCounter atomic.Int64
	disconnecting      atomic.Bool
	initialSyncing     atomic.Bool
	state              atomic.Int32

	mu        sync.RWMutex
	rooms     map[ref.RoomID]*roomstate.Room
	roomOrder []ref.RoomID
	cursor    string
	toggles   Toggles
	focused   ref.RoomID
	stopErr   error

	// renderSuppressed masks toggles during the initial sync.
	renderSuppressed bool

	// loopMu guards the loop lifecycle: cancel and done describe the
	// currently running loop goroutine, if any.
	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(transport Transport, options Options) *Session {
	options = options.withDefaults()
	session := &Session{
		transport:  transport,
		dispatcher: options.Dispatcher,
		options:    options,
		sink:       options.Sink,
		clock:      options.Clock,
		logger:     options.Logger.With("user_id", transport.UserID()),
		ledger:     notify.NewLedger(options.LedgerCapacity),
		presence:   newPresenceTable(),
		rooms:      make(map[ref.RoomID]*roomstate.Room),
		toggles:    options.Toggles,
	}
	session.state.Store(int32(StateInitialSync))
	return session
}

// UserID returns the logged-in user.
func (s *Session) UserID() ref.UserID { return s.transport.UserID() }

// Homeserver returns the homeserver base URL.
func (s *Session) Homeserver() string { return s.transport.Homeserver() }

// State returns the sync loop state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(state State) { s.state.Store(int32(state)) }

// Err returns the error that stopped the loop, or nil while it runs or
// after a clean disconnect.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopErr
}

// Done returns a channel closed when the current loop goroutine exits.
// It returns nil before the loop has first started.
func (s *Session) Done() <-chan struct{} {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.done
}

// Cursor returns the last stream position the session has fully
// dispatched.
func (s *Session) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func (s *Session) setCursor(cursor string) {
	if cursor == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
}

// Room returns the state of a joined room.
func (s *Session) Room(roomID ref.RoomID) (*roomstate.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// Rooms returns every known room in the order it first appeared.
func (s *Session) Rooms() []*roomstate.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*roomstate.Room, 0, len(s.roomOrder))
	for _, roomID := range s.roomOrder {
		rooms = append(rooms, s.rooms[roomID])
	}
	return rooms
}

// ensureRoom returns the room for roomID, creating it and telling the
// sink on first sight.
func (s *Session) ensureRoom(roomID ref.RoomID) *roomstate.Room {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = roomstate.New(roomID)
		s.rooms[roomID] = room
		s.roomOrder = append(s.roomOrder, roomID)
	}
	s.mu.Unlock()
	if !ok {
		s.sink.RoomCreated(room)
	}
	return room
}

// Presence returns a user's last reported presence.
func (s *Session) Presence(user ref.UserID) (Presence, bool) {
	return s.presence.get(user)
}

// PresenceTable returns a copy of every known presence.
func (s *Session) PresenceTable() map[ref.UserID]Presence {
	return s.presence.snapshot()
}

// Toggles returns the effective render toggles. Both are false while
// the initial sync is being dispatched.
func (s *Session) Toggles() Toggles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.renderSuppressed {
		return Toggles{}
	}
	return s.toggles
}

// SetToggles replaces the render toggles. During the initial sync the
// new value is held and takes effect once the sync finishes.
func (s *Session) SetToggles(toggles Toggles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggles = toggles
}

// suppressRendering makes Toggles read as all off until the returned
// function is called. The configured toggles are left untouched.
func (s *Session) suppressRendering() (restore func()) {
	s.mu.Lock()
	s.renderSuppressed = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.renderSuppressed = false
		s.mu.Unlock()
	}
}

// Ledger returns the notification ledger.
func (s *Session) Ledger() *notify.Ledger { return s.ledger }

// TransactionCounter returns the last transaction counter used.
func (s *Session) TransactionCounter() int64 { return s.transactionCounter.Load() }

// FocusChanged records roomID as the room on screen and marks it read.
func (s *Session) FocusChanged(ctx context.Context, roomID ref.RoomID) {
	s.mu.Lock()
	s.focused = roomID
	s.mu.Unlock()
	s.MarkRead(ctx, roomID)
}

// Focused returns the room last passed to FocusChanged.
func (s *Session) Focused() ref.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focused
}

func (s *Session) inFocus(roomID ref.RoomID) bool {
	if s.options.Focus != nil {
		return s.options.Focus(roomID)
	}
	return s.Focused() == roomID
}

// MarkRead sends a read receipt for the room's end token. Nothing is
// sent for an unknown room or a room with no events yet. Failures are
// logged and otherwise ignored.
func (s *Session) MarkRead(ctx context.Context, roomID ref.RoomID) {
	room, ok := s.Room(roomID)
	if !ok {
		return
	}
	eventID := room.EndToken()
	if eventID.IsZero() {
		return
	}
	if err := s.transport.MarkRead(ctx, roomID, eventID); err != nil {
		s.logger.Warn("marking room read failed",
			"room_id", roomID,
			"event_id", eventID,
			"error", err,
		)
	}
}

// notifyMessage hands a message to the notifier when it arrived live,
// from someone else, in a room that is not on screen, and has not been
// notified already.
func (s *Session) notifyMessage(ctx context.Context, room *roomstate.Room, event messaging.Event) {
	notifier := s.options.Notifier
	if notifier == nil || s.initialSyncing.Load() {
		return
	}
	if event.Sender == s.UserID() || s.inFocus(room.ID()) {
		return
	}
	if s.ledger.ContainsEvent(room.ID(), event.EventID) {
		return
	}

	ascii := s.options.ASCIIOnly
	title := fmt.Sprintf("%s in %s", room.DisplayName(event.Sender), room.Title())
	body := notify.Truncate(notify.Sanitize(event.ContentString("body"), ascii), notificationBodyLimit, ascii)
	id, err := notifier.Notify(ctx, notify.Notification{
		Title:   notify.Sanitize(title, ascii),
		Body:    body,
		Actions: []string{notify.ActionShow},
		RoomID:  room.ID(),
		EventID: event.EventID,
	})
	if err != nil {
		s.logger.Warn("notification delivery failed",
			"room_id", room.ID(),
			"event_id", event.EventID,
			"error", err,
		)
		return
	}
	if id == "" {
		return
	}
	s.ledger.Insert(notify.Entry{ID: id, RoomID: room.ID(), EventID: event.EventID})
}

// ShowNotification surfaces the room a delivered notification refers
// to. Unknown or evicted ids are ignored. Reports whether a room was
// surfaced.
func (s *Session) ShowNotification(id string) bool {
	entry, ok := s.ledger.Lookup(id)
	if !ok {
		return false
	}
	room, ok := s.Room(entry.RoomID)
	if !ok {
		return false
	}
	s.sink.RoomSurfaced(room)
	return true
}

// Send posts a text message to roomID and returns the new event id.
// With Markdown enabled, bodies containing markup also carry an HTML
// rendering.
func (s *Session) Send(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error) {
	if s.disconnecting.Load() {
		return ref.EventID{}, ErrDisconnected
	}
	if _, ok := s.Room(roomID); !ok {
		return ref.EventID{}, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	content := messaging.NewTextMessage(body)
	if s.options.Markdown {
		content = messaging.NewMarkdownMessage(body)
	}
	counter := s.transactionCounter.Add(1)
	eventID, err := s.transport.SendMessage(ctx, roomID, messaging.TransactionID(counter), content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("engine: sending to %s: %w", roomID, err)
	}
	return eventID, nil
}

// Backfill fetches up to limit events older than anything the room has
// seen, returned oldest first, and moves the room's backfill boundary
// past them. It returns no events once the start of the room is
// reached. Room history is left alone; the caller decides how to show
// older events.
func (s *Session) Backfill(ctx context.Context, roomID ref.RoomID, limit int) ([]messaging.Event, error) {
	room, ok := s.Room(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	from := room.PrevBatch()
	if from == "" {
		return nil, nil
	}
	response, err := s.transport.Messages(ctx, roomID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("engine: backfilling %s: %w", roomID, err)
	}
	events := slices.Clone(response.Chunk)
	slices.Reverse(events)
	for index := range events {
		if events[index].RoomID.IsZero() {
			events[index].RoomID = roomID
		}
	}
	room.SetPrevBatch(response.End)
	return events, nil
}

// snapshotCursor captures the stream position and every room's end
// token for saving.
func (s *Session) snapshotCursor() *sessionstore.Cursor {
	cursor := &sessionstore.Cursor{
		UserID:    s.UserID().String(),
		NextBatch: s.Cursor(),
		Rooms:     make(map[string]string),
	}
	for _, room := range s.Rooms() {
		if token := room.EndToken(); !token.IsZero() {
			cursor.Rooms[room.ID().String()] = token.String()
		}
	}
	return cursor
}

// record returns the credential record that resumes this session.
func (s *Session) record() *sessionstore.Record {
	return &sessionstore.Record{
		UserID:             s.UserID(),
		Homeserver:         s.Homeserver(),
		AccessToken:        s.transport.AccessToken(),
		TransactionCounter: s.TransactionCounter(),
	}
}

// release drops room and presence state and closes the transport.
func (s *Session) release() error {
	s.mu.Lock()
	s.rooms = make(map[ref.RoomID]*roomstate.Room)
	s.roomOrder = nil
	s.mu.Unlock()
	s.presence.clear()
	return s.transport.Close()
}
