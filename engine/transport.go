// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/lib/secret"
	"github.com/bureau-foundation/courier/messaging"
)

// Transport is the authenticated homeserver connection a Session
// drives. [MatrixTransport] is the production implementation; tests
// substitute a scripted fake.
type Transport interface {
	UserID() ref.UserID
	Homeserver() string
	AccessToken() string

	// InitialSync fetches a full-state snapshot. A non-empty since
	// resumes from a saved cursor without re-fetching history.
	InitialSync(ctx context.Context, since, filter string) (*messaging.SyncResponse, error)

	// Poll long-polls for events after since, holding the request for
	// up to timeout when nothing is pending.
	Poll(ctx context.Context, since, filter string, timeout time.Duration) (*messaging.SyncResponse, error)

	SendMessage(ctx context.Context, roomID ref.RoomID, transactionID string, content messaging.MessageContent) (ref.EventID, error)
	MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error

	// Messages pages backwards through room history starting at from.
	Messages(ctx context.Context, roomID ref.RoomID, from string, limit int) (*messaging.RoomMessagesResponse, error)

	Logout(ctx context.Context) error

	// CloseIdleConnections drops pooled connections so the next request
	// dials fresh. Called before a retry.
	CloseIdleConnections()

	// Close releases the access token memory.
	Close() error
}

// MatrixTransport implements Transport over a messaging.DirectSession.
type MatrixTransport struct {
	session *messaging.DirectSession

	// grace bounds a long-poll request at timeout+grace so a homeserver
	// that never answers cannot hold the loop forever.
	grace time.Duration
}

// NewMatrixTransport wraps session. grace is added to the long-poll
// timeout to form the HTTP request deadline.
func NewMatrixTransport(session *messaging.DirectSession, grace time.Duration) *MatrixTransport {
	return &MatrixTransport{session: session, grace: grace}
}

func (t *MatrixTransport) UserID() ref.UserID  { return t.session.UserID() }
func (t *MatrixTransport) Homeserver() string  { return t.session.Homeserver() }
func (t *MatrixTransport) AccessToken() string { return t.session.AccessToken() }

func (t *MatrixTransport) InitialSync(ctx context.Context, since, filter string) (*messaging.SyncResponse, error) {
	return t.session.Sync(ctx, messaging.SyncOptions{
		Since:      since,
		Filter:     filter,
		FullState:  true,
		SetTimeout: since != "",
	})
}

func (t *MatrixTransport) Poll(ctx context.Context, since, filter string, timeout time.Duration) (*messaging.SyncResponse, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout+t.grace)
	defer cancel()
	return t.session.Sync(pollCtx, messaging.SyncOptions{
		Since:      since,
		Timeout:    int(timeout.Milliseconds()),
		SetTimeout: true,
		Filter:     filter,
	})
}

func (t *MatrixTransport) SendMessage(ctx context.Context, roomID ref.RoomID, transactionID string, content messaging.MessageContent) (ref.EventID, error) {
	return t.session.SendEventWithTransaction(ctx, roomID, ref.EventTypeMessage, transactionID, content)
}

func (t *MatrixTransport) MarkRead(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	return t.session.MarkRead(ctx, roomID, eventID)
}

func (t *MatrixTransport) Messages(ctx context.Context, roomID ref.RoomID, from string, limit int) (*messaging.RoomMessagesResponse, error) {
	return t.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:      from,
		Direction: "b",
		Limit:     limit,
	})
}

func (t *MatrixTransport) Logout(ctx context.Context) error { return t.session.Logout(ctx) }
func (t *MatrixTransport) CloseIdleConnections()            { t.session.CloseIdleConnections() }
func (t *MatrixTransport) Close() error                     { return t.session.Close() }

// Dialer produces Transports, either by password login or from a saved
// access token.
type Dialer interface {
	Login(ctx context.Context, homeserver, user string, password *secret.Buffer) (Transport, error)

	// Resume builds a Transport from a saved token after checking it
	// with a whoami request. A token the server rejects, or one that
	// belongs to a different user, is returned as an error.
	Resume(ctx context.Context, homeserver string, userID ref.UserID, accessToken string) (Transport, error)
}

// MatrixDialer dials real homeservers through messaging.Client.
type MatrixDialer struct {
	// HTTPClient is passed to messaging.NewClient; nil selects the
	// default gzip-negotiating client.
	HTTPClient *http.Client
	Logger     *slog.Logger

	// PollGrace is the long-poll deadline slack handed to each
	// MatrixTransport.
	PollGrace time.Duration
}

func (d *MatrixDialer) client(homeserver string) (*messaging.Client, error) {
	return messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserver,
		HTTPClient:    d.HTTPClient,
		Logger:        d.Logger,
	})
}

// Login checks that the homeserver answers /versions before sending
// the password, so an unreachable or mistyped homeserver is reported as
// such rather than as a failed login.
func (d *MatrixDialer) Login(ctx context.Context, homeserver, user string, password *secret.Buffer) (Transport, error) {
	client, err := d.client(homeserver)
	if err != nil {
		return nil, err
	}
	versions, err := client.ServerVersions(ctx)
	if err != nil {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("engine: %s is not answering as a Matrix homeserver: %w", homeserver, err)
	}
	d.logger().Debug("homeserver reachable", "homeserver", homeserver, "versions", versions.Versions)

	session, err := client.Login(ctx, user, password)
	if err != nil {
		client.CloseIdleConnections()
		return nil, err
	}
	return NewMatrixTransport(session, d.PollGrace), nil
}

// Resume validates a saved token with whoami before handing it out. A
// revoked token fails here with M_UNKNOWN_TOKEN instead of on the first
// sync.
func (d *MatrixDialer) Resume(ctx context.Context, homeserver string, userID ref.UserID, accessToken string) (Transport, error) {
	client, err := d.client(homeserver)
	if err != nil {
		return nil, err
	}
	session, err := client.SessionFromToken(userID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("engine: restoring session for %s: %w", userID, err)
	}
	owner, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("engine: checking saved token for %s: %w", userID, err)
	}
	if owner != userID {
		session.Close()
		return nil, fmt.Errorf("%w: %s, not %s", ErrTokenOwner, owner, userID)
	}
	return NewMatrixTransport(session, d.PollGrace), nil
}

func (d *MatrixDialer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
