// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/roomstate"
)

// Handler applies one event to session state. room is nil for events
// outside any room (presence). Handlers validate their own content and
// ignore what they cannot use; they never fail the dispatch.
type Handler func(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event)

// Dispatcher maps event types to handlers. Handlers are registered
// before the first session using the dispatcher starts; the table is
// read-only afterwards.
type Dispatcher struct {
	handlers map[ref.EventType]Handler
	sealed   atomic.Bool
	logger   *slog.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[ref.EventType]Handler),
		logger:   logger,
	}
}

// NewDefaultDispatcher returns a dispatcher with every built-in
// handler registered.
func NewDefaultDispatcher(logger *slog.Logger) *Dispatcher {
	dispatcher := NewDispatcher(logger)
	dispatcher.Register(ref.EventTypeMember, handleMember)
	dispatcher.Register(ref.EventTypePresence, handlePresence)
	dispatcher.Register(ref.EventTypeMessage, handleMessage)
	dispatcher.Register(ref.EventTypeTyping, handleTyping)
	dispatcher.Register(ref.EventTypeReceipt, handleReceipt)
	dispatcher.Register(ref.EventTypeFullyRead, handleFullyRead)
	dispatcher.Register(ref.EventTypeName, handleName)
	dispatcher.Register(ref.EventTypeTopic, handleTopic)
	dispatcher.Register(ref.EventTypeCanonicalAlias, handleCanonicalAlias)
	dispatcher.Register(ref.EventTypeRedaction, handleRedaction)
	return dispatcher
}

// Register adds handler for eventType. It panics on a duplicate
// registration or once a session has started using the dispatcher.
func (d *Dispatcher) Register(eventType ref.EventType, handler Handler) {
	if d.sealed.Load() {
		panic(fmt.Sprintf("engine: Register(%q) after dispatch started", eventType))
	}
	if handler == nil {
		panic(fmt.Sprintf("engine: Register(%q) with nil handler", eventType))
	}
	if _, exists := d.handlers[eventType]; exists {
		panic(fmt.Sprintf("engine: duplicate handler for %q", eventType))
	}
	d.handlers[eventType] = handler
}

// Handles reports whether a handler is registered for eventType.
func (d *Dispatcher) Handles(eventType ref.EventType) bool {
	_, ok := d.handlers[eventType]
	return ok
}

func (d *Dispatcher) seal() {
	d.sealed.Store(true)
}

// Dispatch runs the handler for event.Type, then records the event as
// the room's newest. Events with no handler, and events carrying an
// identifier that did not parse, skip the handler but still advance
// the room's end token. Reports whether a handler ran.
func (d *Dispatcher) Dispatch(ctx context.Context, session *Session, room *roomstate.Room, event messaging.Event) bool {
	handler, ok := d.handlers[event.Type]
	if malformed := event.Malformed(); len(malformed) > 0 {
		d.logger.Debug("dropping event with malformed identifiers",
			"type", event.Type,
			"event_id", event.EventID,
			"fields", malformed,
		)
		ok = false
	} else if ok {
		handler(ctx, session, room, event)
	} else {
		d.logger.Debug("no handler for event type",
			"type", event.Type,
			"event_id", event.EventID,
		)
	}
	if room != nil {
		room.AdvanceEndToken(event.EventID)
	}
	return ok
}
