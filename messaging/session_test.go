// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/courier/lib/ref"
)

// newTestSession creates a Client and DirectSession pointing at a test server.
func newTestSession(t *testing.T, handler http.Handler) (*Client, *DirectSession) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(mustUser(t, "@test:local"), "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return client, session
}

func TestWhoAmI(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string]string{"user_id": "@test:local", "device_id": "DEV1"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID.String() != "@test:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestSync(t *testing.T) {
	t.Run("long poll parameters", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assertAuth(t, request, "test-token")
			query := request.URL.Query()
			if query.Get("since") != "T1" {
				t.Errorf("since = %q", query.Get("since"))
			}
			if query.Get("timeout") != "30000" {
				t.Errorf("timeout = %q", query.Get("timeout"))
			}
			if query.Has("full_state") {
				t.Error("full_state should not be sent for a live poll")
			}
			writeJSON(writer, map[string]any{"next_batch": "T2"})
		}))

		response, err := session.Sync(context.Background(), SyncOptions{Since: "T1", Timeout: 30000, SetTimeout: true})
		if err != nil {
			t.Fatalf("Sync failed: %v", err)
		}
		if response.NextBatch != "T2" {
			t.Errorf("next_batch = %q", response.NextBatch)
		}
		if response.Rooms.Join.Len() != 0 {
			t.Errorf("expected no joined rooms, got %d", response.Rooms.Join.Len())
		}
	})

	t.Run("full state with filter", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			query := request.URL.Query()
			if query.Get("full_state") != "true" {
				t.Errorf("full_state = %q", query.Get("full_state"))
			}
			if query.Get("filter") != `{"room":{"timeline":{"limit":20}}}` {
				t.Errorf("filter = %q", query.Get("filter"))
			}
			if query.Has("since") || query.Has("timeout") {
				t.Errorf("unexpected since/timeout: %v", query)
			}
			writer.Header().Set("Content-Type", "application/json")
			writer.Write([]byte(`{
				"next_batch": "T0",
				"rooms": {"join": {
					"!b:local": {
						"state": {"events": [{"type": "m.room.name", "event_id": "$n", "sender": "@a:local", "state_key": "", "content": {"name": "Bee"}}]},
						"timeline": {"events": [{"type": "m.room.message", "event_id": "$m", "sender": "@a:local", "origin_server_ts": 1000, "unsigned": {"age": 200}, "content": {"msgtype": "m.text", "body": "hi"}}], "prev_batch": "P0", "limited": true},
						"ephemeral": {"events": [{"type": "m.typing", "content": {"user_ids": ["@a:local"]}}]},
						"account_data": {"events": [{"type": "m.fully_read", "content": {"event_id": "$m"}}]},
						"unread_notifications": {"notification_count": 3, "highlight_count": 1}
					},
					"!a:local": {}
				}},
				"presence": {"events": [{"type": "m.presence", "sender": "@a:local", "content": {"presence": "online"}}]}
			}`))
		}))

		response, err := session.Sync(context.Background(), SyncOptions{
			Filter:    `{"room":{"timeline":{"limit":20}}}`,
			FullState: true,
		})
		if err != nil {
			t.Fatalf("Sync failed: %v", err)
		}

		join := response.Rooms.Join
		if join.Len() != 2 || join.Order[0].String() != "!b:local" || join.Order[1].String() != "!a:local" {
			t.Fatalf("join order = %v", join.Order)
		}
		room := join.Rooms[join.Order[0]]
		if len(room.State.Events) != 1 || room.State.Events[0].ContentString("name") != "Bee" {
			t.Errorf("state = %+v", room.State)
		}
		message := room.Timeline.Events[0]
		if message.EventID.String() != "$m" || message.OriginServerTS != 1000 || message.Age() != 200 {
			t.Errorf("timeline event = %+v", message)
		}
		if room.Timeline.PrevBatch != "P0" || !room.Timeline.Limited {
			t.Errorf("timeline = prev_batch %q limited %v", room.Timeline.PrevBatch, room.Timeline.Limited)
		}
		if len(room.Ephemeral.Events) != 1 || room.Ephemeral.Events[0].Type != ref.EventTypeTyping {
			t.Errorf("ephemeral = %+v", room.Ephemeral)
		}
		if len(room.AccountData.Events) != 1 || room.AccountData.Events[0].Type != ref.EventTypeFullyRead {
			t.Errorf("account_data = %+v", room.AccountData)
		}
		if room.UnreadNotifications.NotificationCount != 3 || room.UnreadNotifications.HighlightCount != 1 {
			t.Errorf("unread = %+v", room.UnreadNotifications)
		}
		if len(response.Presence.Events) != 1 || response.Presence.Events[0].ContentString("presence") != "online" {
			t.Errorf("presence = %+v", response.Presence)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeMatrixError(writer, http.StatusUnauthorized, ErrCodeUnknownToken, "Invalid access token")
		}))

		_, err := session.Sync(context.Background(), SyncOptions{})
		if !IsMatrixError(err, ErrCodeUnknownToken) {
			t.Fatalf("expected M_UNKNOWN_TOKEN, got %v", err)
		}
		if Classify(err) != FailureAuth {
			t.Errorf("Classify = %s, want auth", Classify(err))
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.Write([]byte(`{"next_batch": "T2", "rooms": {"join": {`))
		}))

		_, err := session.Sync(context.Background(), SyncOptions{Since: "T1"})
		if err == nil {
			t.Fatal("expected parse error")
		}
		if Classify(err) != FailureTransient {
			t.Errorf("Classify(truncated body) = %s, want transient", Classify(err))
		}
	})
}

func TestSendEventWithTransaction(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPut {
			t.Errorf("unexpected method: %s", request.Method)
		}
		if request.URL.Path != "/_matrix/client/v3/rooms/!room:local/send/m.room.message/courier-7" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		var content MessageContent
		if err := json.NewDecoder(request.Body).Decode(&content); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if content.Body != "hello" || content.MsgType != "m.text" {
			t.Errorf("unexpected content: %+v", content)
		}
		writeJSON(writer, map[string]string{"event_id": "$sent"})
	}))

	eventID, err := session.SendEventWithTransaction(context.Background(), mustRoom(t, "!room:local"),
		ref.EventTypeMessage, TransactionID(7), NewTextMessage("hello"))
	if err != nil {
		t.Fatalf("SendEventWithTransaction failed: %v", err)
	}
	if eventID.String() != "$sent" {
		t.Errorf("event ID = %s", eventID)
	}

	if _, err := session.SendEventWithTransaction(context.Background(), mustRoom(t, "!room:local"),
		ref.EventTypeMessage, "", NewTextMessage("x")); err == nil {
		t.Error("expected error for empty transaction ID")
	}
}

func TestSendMessageCounter(t *testing.T) {
	var paths []string
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		paths = append(paths, request.URL.Path)
		writeJSON(writer, map[string]string{"event_id": "$sent"})
	}))

	session.SetTransactionCounter(41)
	for range 2 {
		if _, err := session.SendMessage(context.Background(), mustRoom(t, "!room:local"), NewTextMessage("x")); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}
	want := []string{
		"/_matrix/client/v3/rooms/!room:local/send/m.room.message/courier-42",
		"/_matrix/client/v3/rooms/!room:local/send/m.room.message/courier-43",
	}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if session.TransactionCounter() != 43 {
		t.Errorf("TransactionCounter = %d", session.TransactionCounter())
	}
}

func TestMarkRead(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", request.Method)
		}
		if request.URL.Path != "/_matrix/client/v3/rooms/!room:local/receipt/m.read/$event" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string]any{})
	}))

	if err := session.MarkRead(context.Background(), mustRoom(t, "!room:local"), ref.MustParseEventID("$event")); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
}

func TestRoomMessages(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/rooms/!room:local/messages" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		query := request.URL.Query()
		if query.Get("from") != "P0" || query.Get("dir") != "b" || query.Get("limit") != "10" {
			t.Errorf("unexpected query: %v", query)
		}
		writeJSON(writer, map[string]any{
			"start": "P0",
			"end":   "P1",
			"chunk": []map[string]any{
				{"type": "m.room.message", "event_id": "$2", "sender": "@a:local", "content": map[string]any{"body": "second"}},
				{"type": "m.room.message", "event_id": "$1", "sender": "@a:local", "content": map[string]any{"body": "first"}},
			},
		})
	}))

	response, err := session.RoomMessages(context.Background(), mustRoom(t, "!room:local"), RoomMessagesOptions{From: "P0", Limit: 10})
	if err != nil {
		t.Fatalf("RoomMessages failed: %v", err)
	}
	if response.End != "P1" || len(response.Chunk) != 2 || response.Chunk[0].EventID.String() != "$2" {
		t.Errorf("unexpected response: %+v", response)
	}
}

func TestLogout(t *testing.T) {
	called := false
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/logout" || request.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", request.Method, request.URL.Path)
		}
		called = true
		writeJSON(writer, map[string]any{})
	}))

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !called {
		t.Error("logout endpoint not called")
	}
}

func mustUser(t *testing.T, raw string) ref.UserID {
	t.Helper()
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return userID
}

func mustRoom(t *testing.T, raw string) ref.RoomID {
	t.Helper()
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		t.Fatalf("ParseRoomID(%q): %v", raw, err)
	}
	return roomID
}

func assertAuth(t *testing.T, request *http.Request, expectedToken string) {
	t.Helper()
	auth := request.Header.Get("Authorization")
	expected := "Bearer " + expectedToken
	if auth != expected {
		t.Errorf("unexpected auth header: got %q, want %q", auth, expected)
	}
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func writeMatrixError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(map[string]string{"errcode": code, "error": message})
}
