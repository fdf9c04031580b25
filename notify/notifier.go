// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/courier/lib/ref"
)

// Notification is one message to deliver.
type Notification struct {
	// Title names the room and sender.
	Title string
	// Body is the sanitized message text.
	Body string
	// Actions are labels for buttons the backend may offer; the
	// engine wires "show" to Session.ShowNotification.
	Actions []string

	RoomID  ref.RoomID
	EventID ref.EventID
}

// ActionShow is the action that surfaces the notification's room.
const ActionShow = "show"

// Notifier delivers notifications and returns an opaque id for each.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) (string, error)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification Notification) (string, error)

func (f NotifierFunc) Notify(ctx context.Context, notification Notification) (string, error) {
	return f(ctx, notification)
}

// notificationDomainKey separates notification ids from any other use
// of BLAKE3 over room and event ids.
var notificationDomainKey = [32]byte{
	'c', 'o', 'u', 'r', 'i', 'e', 'r', '.', 'n', 'o', 't', 'i', 'f', 'y', '.', 'i',
	'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// NotificationID derives a stable id for a notification about eventID
// in roomID.
func NotificationID(roomID ref.RoomID, eventID ref.EventID) string {
	hasher, err := blake3.NewKeyed(notificationDomainKey[:])
	if err != nil {
		panic("notify: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.WriteString(roomID.String())
	hasher.Write([]byte{0})
	hasher.WriteString(eventID.String())
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}

// LogNotifier delivers notifications to a structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) (string, error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := NotificationID(notification.RoomID, notification.EventID)
	logger.InfoContext(ctx, "notification",
		"id", id,
		"title", notification.Title,
		"body", notification.Body,
		"room_id", notification.RoomID,
		"event_id", notification.EventID,
	)
	return id, nil
}
