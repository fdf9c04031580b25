// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bureau-foundation/courier/lib/clock"
	"github.com/bureau-foundation/courier/notify"
)

const (
	// DefaultPollTimeout is the server-side long-poll hold time.
	DefaultPollTimeout = 30 * time.Second

	// DefaultInitialSyncLimit caps each room's timeline window in the
	// initial sync.
	DefaultInitialSyncLimit = 20

	// notificationBodyLimit caps notification bodies in runes.
	notificationBodyLimit = 200
)

// Toggles are the render switches the user can flip at runtime. Both
// read as false while the initial sync is being dispatched.
type Toggles struct {
	Membership bool
	Presence   bool
}

// Options configure a Session. The zero value is usable: defaults fill
// every unset field.
type Options struct {
	// PollTimeout is the long-poll hold time. Transient failures are
	// retried after PollTimeout/2.
	PollTimeout time.Duration

	// InitialSyncLimit caps each room's timeline window in the initial
	// sync. Ignored when Filter is set.
	InitialSyncLimit int

	// Filter replaces the built-in initial sync filter and is also sent
	// with every live poll.
	Filter json.RawMessage

	// ResumeFromCursor starts the initial sync from a saved cursor
	// when one exists for the same user.
	ResumeFromCursor bool

	// Toggles are the initial render toggles.
	Toggles Toggles

	// Markdown renders outgoing message bodies to HTML.
	Markdown bool

	// ASCIIOnly folds notification text to ASCII.
	ASCIIOnly bool

	// LedgerCapacity bounds the notification ledger. Zero means
	// notify.DefaultCapacity.
	LedgerCapacity int

	// Notifier delivers notifications. Nil disables them.
	Notifier notify.Notifier

	// Sink receives state changes. Nil discards them.
	Sink RenderSink

	// Focus reports whether a room is on screen. Nil uses the room
	// last passed to Session.FocusChanged.
	Focus FocusFunc

	// Dispatcher routes events to handlers. Nil uses
	// NewDefaultDispatcher.
	Dispatcher *Dispatcher

	Clock  clock.Clock
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.InitialSyncLimit <= 0 {
		o.InitialSyncLimit = DefaultInitialSyncLimit
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dispatcher == nil {
		o.Dispatcher = NewDefaultDispatcher(o.Logger)
	}
	return o
}

// retryDelay is the fixed wait before re-polling after a transient
// failure.
func (o Options) retryDelay() time.Duration {
	return o.PollTimeout / 2
}

// initialFilter returns the filter JSON for the initial sync.
func (o Options) initialFilter() string {
	if len(o.Filter) > 0 {
		return string(o.Filter)
	}
	filter := map[string]any{
		"room": map[string]any{
			"timeline": map[string]any{"limit": o.InitialSyncLimit},
		},
	}
	data, _ := json.Marshal(filter)
	return string(data)
}

// pollFilter returns the filter JSON for live polls.
func (o Options) pollFilter() string {
	return string(o.Filter)
}
