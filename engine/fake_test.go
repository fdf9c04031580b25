// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/courier/lib/clock"
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/lib/secret"
	"github.com/bureau-foundation/courier/lib/testutil"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/notify"
	"github.com/bureau-foundation/courier/roomstate"
)

const testTimeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// pollCall is one Poll the loop issued. The test answers through reply.
type pollCall struct {
	since   string
	filter  string
	timeout time.Duration
	reply   chan pollReply
}

type pollReply struct {
	response *messaging.SyncResponse
	err      error
}

func (c pollCall) respond(response *messaging.SyncResponse) {
	c.reply <- pollReply{response: response}
}

func (c pollCall) fail(err error) {
	c.reply <- pollReply{err: err}
}

type sentMessage struct {
	roomID        ref.RoomID
	transactionID string
	content       messaging.MessageContent
}

type readReceipt struct {
	roomID  ref.RoomID
	eventID ref.EventID
}

// fakeTransport is a scripted homeserver. Initial sync answers come
// from initial/initialErr; polls are handed to the test one at a time
// on the polls channel.
type fakeTransport struct {
	user       ref.UserID
	homeserver string
	token      string

	polls chan pollCall

	mu             sync.Mutex
	initial        *messaging.SyncResponse
	initialErr     error
	initialSince   []string
	initialFilters []string
	sent           []sentMessage
	sendErr        error
	reads          []readReceipt
	readErr        error
	messages       *messaging.RoomMessagesResponse
	messagesFrom   []string
	loggedOut      bool
	closed         bool
	idleCloses     int
}

func newFakeTransport(user string) *fakeTransport {
	return &fakeTransport{
		user:       ref.MustParseUserID(user),
		homeserver: "https://matrix.example.org",
		token:      "syt_fake_token",
		polls:      make(chan pollCall),
		initial:    &messaging.SyncResponse{NextBatch: "T0"},
	}
}

func (f *fakeTransport) UserID() ref.UserID  { return f.user }
func (f *fakeTransport) Homeserver() string  { return f.homeserver }
func (f *fakeTransport) AccessToken() string { return f.token }

func (f *fakeTransport) InitialSync(ctx context.Context, since, filter string) (*messaging.SyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialSince = append(f.initialSince, since)
	f.initialFilters = append(f.initialFilters, filter)
	if f.initialErr != nil {
		return nil, f.initialErr
	}
	return f.initial, nil
}

func (f *fakeTransport) Poll(ctx context.Context, since, filter string, timeout time.Duration) (*messaging.SyncResponse, error) {
	call := pollCall{since: since, filter: filter, timeout: timeout, reply: make(chan pollReply, 1)}
	select {
	case f.polls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case reply := <-call.reply:
		return reply.response, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) SendMessage(ctx context.Context, roomID ref.RoomID, transactionID string, content messaging.MessageContent) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return ref.EventID{}, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{roomID: roomID, transactionID: transactionID, content: content})
	return ref.MustParseEventID("$sent-" + transactionID + ":example.org"), nil
}

func (f *fakeTransport) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, readReceipt{roomID: roomID, eventID: eventID})
	return f.readErr
}

func (f *fakeTransport) Messages(ctx context.Context, roomID ref.RoomID, from string, limit int) (*messaging.RoomMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesFrom = append(f.messagesFrom, from)
	if f.messages == nil {
		return nil, errors.New("no messages scripted")
	}
	return f.messages, nil
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeTransport) CloseIdleConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idleCloses++
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) readReceipts() []readReceipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]readReceipt(nil), f.reads...)
}

// nextPoll waits for the loop to issue a poll.
func (f *fakeTransport) nextPoll(t *testing.T) pollCall {
	t.Helper()
	return testutil.RequireReceive(t, f.polls, testTimeout, "waiting for poll")
}

// fakeDialer hands out scripted transports and records what it was
// asked for.
type fakeDialer struct {
	mu        sync.Mutex
	login     *fakeTransport
	loginErr  error
	resume    *fakeTransport
	resumeErr error
	logins    []string
	passwords []string
	resumes   []string
}

func (d *fakeDialer) Login(ctx context.Context, homeserver, user string, password *secret.Buffer) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logins = append(d.logins, user)
	d.passwords = append(d.passwords, password.String())
	if d.loginErr != nil {
		return nil, d.loginErr
	}
	return d.login, nil
}

func (d *fakeDialer) Resume(ctx context.Context, homeserver string, userID ref.UserID, accessToken string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes = append(d.resumes, accessToken)
	if d.resumeErr != nil {
		return nil, d.resumeErr
	}
	return d.resume, nil
}

// recordingSink remembers what it was told.
type recordingSink struct {
	mu          sync.Mutex
	created     []ref.RoomID
	memberships []ref.UserID
	presences   []ref.UserID
	typing      [][]ref.UserID
	messages    []ref.EventID
	surfaced    []ref.RoomID
	statuses    []string
}

func (s *recordingSink) RoomCreated(room *roomstate.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, room.ID())
}

func (s *recordingSink) MembershipChanged(room *roomstate.Room, user ref.UserID, previous roomstate.Member, existed bool, current roomstate.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, user)
}

func (s *recordingSink) PresenceChanged(user ref.UserID, presence Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presences = append(s.presences, user)
}

func (s *recordingSink) TypingChanged(room *roomstate.Room, users []ref.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, users)
}

func (s *recordingSink) MessageAppended(room *roomstate.Room, entry roomstate.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, entry.Event.EventID)
}

func (s *recordingSink) RoomSurfaced(room *roomstate.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaced = append(s.surfaced, room.ID())
}

func (s *recordingSink) Status(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, message)
}

func (s *recordingSink) membershipCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memberships)
}

func (s *recordingSink) presenceList() []ref.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ref.UserID(nil), s.presences...)
}

func (s *recordingSink) statusList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

// recordingNotifier delivers into a slice and returns sequential ids.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification notify.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return testutil.UniqueID("notification"), nil
}

func (n *recordingNotifier) delivered() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.notifications...)
}

// Event builders.

func stringPtr(value string) *string { return &value }

func messageEvent(eventID, sender, body string, ts, age int64) messaging.Event {
	event := messaging.Event{
		EventID:        ref.MustParseEventID(eventID),
		Type:           ref.EventTypeMessage,
		Sender:         ref.MustParseUserID(sender),
		OriginServerTS: ts,
		Content:        map[string]any{"msgtype": "m.text", "body": body},
	}
	if age != 0 {
		event.Unsigned = &messaging.EventUnsigned{Age: age}
	}
	return event
}

func memberEvent(eventID, user, membership string) messaging.Event {
	return messaging.Event{
		EventID:  ref.MustParseEventID(eventID),
		Type:     ref.EventTypeMember,
		Sender:   ref.MustParseUserID(user),
		StateKey: stringPtr(user),
		Content:  map[string]any{"membership": membership},
	}
}

func typingEvent(users ...string) messaging.Event {
	ids := make([]any, len(users))
	for index, user := range users {
		ids[index] = user
	}
	return messaging.Event{
		Type:    ref.EventTypeTyping,
		Content: map[string]any{"user_ids": ids},
	}
}

func presenceEvent(user, state string) messaging.Event {
	return messaging.Event{
		Type:    ref.EventTypePresence,
		Sender:  ref.MustParseUserID(user),
		Content: map[string]any{"presence": state},
	}
}

// syncResponse builds a response with one joined room per batch, in
// argument order.
func syncResponse(nextBatch string, rooms ...roomBatch) *messaging.SyncResponse {
	response := &messaging.SyncResponse{NextBatch: nextBatch}
	for _, batch := range rooms {
		response.Rooms.Join.Add(ref.MustParseRoomID(batch.roomID), messaging.JoinedRoom{
			State:     messaging.StateSection{Events: batch.state},
			Timeline:  messaging.TimelineSection{Events: batch.timeline, PrevBatch: batch.prevBatch},
			Ephemeral: messaging.EventsSection{Events: batch.ephemeral},
		})
	}
	return response
}

type roomBatch struct {
	roomID    string
	state     []messaging.Event
	timeline  []messaging.Event
	ephemeral []messaging.Event
	prevBatch string
}

// newTestSession builds a session around transport with a fake clock
// and runs its initial sync. The loop is not started.
func newTestSession(t *testing.T, transport *fakeTransport, options Options) (*Session, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(epoch)
	if options.Clock == nil {
		options.Clock = fakeClock
	}
	session := newSession(transport, options)
	if err := session.initialSync(context.Background(), nil); err != nil {
		t.Fatalf("initialSync: %v", err)
	}
	return session, fakeClock
}

// startTestSession is newTestSession plus a running loop that is halted
// when the test ends.
func startTestSession(t *testing.T, transport *fakeTransport, options Options) (*Session, *clock.FakeClock) {
	t.Helper()
	session, fakeClock := newTestSession(t, transport, options)
	session.startLoop(context.Background())
	t.Cleanup(session.halt)
	return session, fakeClock
}
