// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is courier's sync core: one logged-in [Session]
// long-polling a Matrix homeserver and folding the event stream into
// per-room state.
//
// A [Manager] owns the single active session. Connect tries a saved
// access token from a [sessionstore.Store] before asking for a
// password, performs the initial full-state sync, and starts the sync
// loop goroutine. Disconnect stops the loop, cancelling any in-flight
// long-poll or pending retry, and either saves the token for next time
// or logs out and forgets it.
//
// The loop moves through [StateInitialSync], [StateLivePoll] and
// [StateRetryWait] until it reaches [StateStopped]. Each response is
// dispatched in arrival order through a [Dispatcher], a table of
// [Handler] functions keyed by event type that is sealed before the
// loop starts. Transient failures retry after half the poll timeout
// with the same cursor; certificate, authentication and unclassified
// failures stop the loop until [Session.Resume] or a reconnect.
//
// The presentation layer observes the session through a [RenderSink]
// and tells it which room is in focus through a [FocusFunc] or
// [Session.FocusChanged]. Messages arriving in unfocused rooms are
// handed to a [notify.Notifier] and remembered in a bounded ledger so
// a "show" action can be mapped back to its room.
//
// The loop goroutine is the only writer of room state, the presence
// table and the cursor. Everything exported on Session is safe to call
// from other goroutines.
package engine
