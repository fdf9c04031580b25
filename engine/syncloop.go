// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/sessionstore"
)

// initialSync fetches the full-state snapshot and dispatches it with
// render toggles forced off. With a saved cursor for the same user, the
// snapshot starts from that cursor and room end tokens are restored
// for rooms with nothing new.
func (s *Session) initialSync(ctx context.Context, saved *sessionstore.Cursor) error {
	s.setState(StateInitialSync)
	s.dispatcher.seal()

	since := ""
	if saved != nil {
		since = saved.NextBatch
	}
	response, err := s.transport.InitialSync(ctx, since, s.options.initialFilter())
	if err != nil {
		return fmt.Errorf("engine: initial sync: %w", err)
	}

	s.applyInitial(ctx, response)

	if saved != nil {
		for rawRoomID, rawEventID := range saved.Rooms {
			roomID, err := ref.ParseRoomID(rawRoomID)
			if err != nil {
				continue
			}
			eventID, err := ref.ParseEventID(rawEventID)
			if err != nil {
				continue
			}
			if room, ok := s.Room(roomID); ok {
				room.RestoreEndToken(eventID)
			}
		}
	}

	s.setCursor(response.NextBatch)
	s.logger.Info("initial sync complete",
		"rooms", response.Rooms.Join.Len(),
		"resumed", saved != nil,
	)
	return nil
}

func (s *Session) applyInitial(ctx context.Context, response *messaging.SyncResponse) {
	restore := s.suppressRendering()
	s.initialSyncing.Store(true)
	defer func() {
		s.initialSyncing.Store(false)
		restore()
	}()
	s.applyBatch(ctx, response, true)
}

// startLoop launches the live-poll goroutine. The loop runs until
// Disconnect, or until a failure it cannot retry.
func (s *Session) startLoop(parent context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	s.startLoopLocked(parent)
}

func (s *Session) startLoopLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.mu.Lock()
	s.stopErr = nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.run(ctx)
	}()
}

// run is the live-poll state machine. One poll is outstanding at a
// time; each response is fully dispatched before the cursor moves and
// the next poll is issued.
func (s *Session) run(ctx context.Context) {
	for {
		if s.disconnecting.Load() || ctx.Err() != nil {
			s.setState(StateStopped)
			return
		}
		s.setState(StateLivePoll)

		since := s.Cursor()
		response, err := s.transport.Poll(ctx, since, s.options.pollFilter(), s.options.PollTimeout)
		if err != nil {
			if s.disconnecting.Load() || ctx.Err() != nil {
				s.setState(StateStopped)
				return
			}
			if !s.handlePollFailure(ctx, since, err) {
				return
			}
			continue
		}

		s.applyBatch(ctx, response, false)
		s.setCursor(response.NextBatch)
	}
}

// handlePollFailure classifies err. Transient failures wait out the
// retry delay and report true so the loop polls again with the same
// cursor; everything else stops the loop.
func (s *Session) handlePollFailure(ctx context.Context, since string, err error) bool {
	class := messaging.Classify(err)
	switch class {
	case messaging.FailureTransient:
		delay := s.options.retryDelay()
		s.logger.Warn("sync poll failed, retrying",
			"error", err,
			"since", since,
			"delay", delay,
		)
		s.sink.Status(fmt.Sprintf("connection problem, retrying in %s", delay))
		s.transport.CloseIdleConnections()
		s.setState(StateRetryWait)
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return false
		case <-s.clock.After(delay):
			return true
		}

	case messaging.FailureCertificate:
		s.stop(err, "certificate verification failed; manual attention required")
	case messaging.FailureAuth:
		s.stop(err, "access token rejected; reconnect to log in again")
	default:
		s.stop(err, "sync stopped: "+err.Error())
	}
	return false
}

func (s *Session) stop(err error, status string) {
	s.logger.Error("sync loop stopped",
		"error", err,
		"class", messaging.Classify(err),
		"since", s.Cursor(),
	)
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	s.setState(StateStopped)
	s.sink.Status(status)
}

// Resume restarts a loop that stopped on a failure, polling from the
// last cursor that was fully dispatched.
func (s *Session) Resume(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.disconnecting.Load() {
		return ErrDisconnected
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrLoopRunning
		}
	}
	s.logger.Info("resuming sync loop", "since", s.Cursor())
	s.startLoopLocked(ctx)
	return nil
}

// halt sets the disconnect flag, cancels any in-flight poll or retry
// wait, and waits for the loop goroutine to exit.
func (s *Session) halt() {
	s.disconnecting.Store(true)
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.loopMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.setState(StateStopped)
}
