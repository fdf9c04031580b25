// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/lib/secret"
	"github.com/bureau-foundation/courier/messaging"
	"github.com/bureau-foundation/courier/sessionstore"
)

var (
	// ErrAlreadyActive is returned by Connect when a session is active.
	// The active session is returned alongside it.
	ErrAlreadyActive = errors.New("engine: a session is already active")

	// ErrNoSession is returned by Disconnect when nothing is connected.
	ErrNoSession = errors.New("engine: no active session")

	// ErrNoCredentials is returned by Connect when there is no usable
	// saved token and no password prompt.
	ErrNoCredentials = errors.New("engine: no saved session and no password prompt")

	// ErrTokenOwner is returned by a Dialer when a saved token turns
	// out to belong to a different user than the record says.
	ErrTokenOwner = errors.New("engine: saved token belongs to another user")
)

// PasswordPrompt collects a password interactively. The caller of the
// prompt closes the returned buffer.
type PasswordPrompt func(ctx context.Context) (*secret.Buffer, error)

// ConnectRequest describes one login attempt.
type ConnectRequest struct {
	// Homeserver is the homeserver base URL. Empty accepts whatever
	// homeserver the saved record names.
	Homeserver string

	// User is a full user id or a bare localpart.
	User string

	// UseSavedToken tries the credential store before the password.
	UseSavedToken bool

	// Password is called only when no saved token can be used.
	Password PasswordPrompt
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Dialer Dialer

	// Store persists the credential record. Nil disables saving and
	// the saved-token path.
	Store sessionstore.Store

	// Cursors persists the stream cursor across runs. Nil disables it.
	Cursors *sessionstore.CursorFile

	// Options apply to every session the manager creates.
	Options Options

	Logger *slog.Logger
}

// Manager owns at most one active Session.
type Manager struct {
	dialer  Dialer
	store   sessionstore.Store
	cursors *sessionstore.CursorFile
	options Options
	logger  *slog.Logger

	mu     sync.Mutex
	active *Session
}

// NewManager returns a Manager with no active session.
func NewManager(config ManagerConfig) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	options := config.Options
	if options.Logger == nil {
		options.Logger = logger
	}
	return &Manager{
		dialer:  config.Dialer,
		store:   config.Store,
		cursors: config.Cursors,
		options: options,
		logger:  logger,
	}
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Connect logs in, performs the initial sync and starts the sync loop.
// The saved token is tried first when request.UseSavedToken is set; a
// token the server rejects is deleted and the password path is tried
// once. If a session is already active, Connect returns it with
// ErrAlreadyActive.
func (m *Manager) Connect(ctx context.Context, request ConnectRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return m.active, ErrAlreadyActive
	}

	if request.UseSavedToken && m.store != nil {
		session, err := m.connectSaved(ctx, request)
		if err != nil {
			return nil, err
		}
		if session != nil {
			m.active = session
			return session, nil
		}
	}

	session, err := m.connectPassword(ctx, request)
	if err != nil {
		return nil, err
	}
	m.active = session
	return session, nil
}

// connectSaved returns a started session from the saved record, or
// nil with no error when the password path should be tried instead.
func (m *Manager) connectSaved(ctx context.Context, request ConnectRequest) (*Session, error) {
	record, err := m.store.Load()
	if errors.Is(err, sessionstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.logger.Warn("saved session unreadable, falling back to password", "error", err)
		return nil, nil
	}
	if !recordMatches(record, request) {
		m.logger.Info("saved session is for another account",
			"saved_user", record.UserID,
			"saved_homeserver", record.Homeserver,
		)
		return nil, nil
	}

	transport, err := m.dialer.Resume(ctx, record.Homeserver, record.UserID, record.AccessToken)
	if err == nil {
		var session *Session
		session, err = m.start(ctx, transport, record.TransactionCounter)
		if err == nil {
			m.logger.Info("resumed saved session", "user_id", record.UserID)
			return session, nil
		}
	}
	if messaging.Classify(err) != messaging.FailureAuth && !errors.Is(err, ErrTokenOwner) {
		return nil, err
	}

	m.logger.Warn("saved access token rejected, deleting it", "user_id", record.UserID, "error", err)
	if deleteErr := m.store.Delete(); deleteErr != nil {
		m.logger.Warn("deleting rejected session failed", "error", deleteErr)
	}
	return nil, nil
}

func (m *Manager) connectPassword(ctx context.Context, request ConnectRequest) (*Session, error) {
	if request.Password == nil {
		return nil, ErrNoCredentials
	}
	if request.Homeserver == "" || request.User == "" {
		return nil, fmt.Errorf("engine: homeserver and user are required for password login")
	}
	password, err := request.Password(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading password: %w", err)
	}
	defer password.Close()

	transport, err := m.dialer.Login(ctx, request.Homeserver, request.User, password)
	if err != nil {
		return nil, fmt.Errorf("engine: login as %s: %w", request.User, err)
	}
	return m.start(ctx, transport, 0)
}

// start performs the initial sync on a fresh transport and launches
// the loop. The transport is closed on failure.
func (m *Manager) start(ctx context.Context, transport Transport, transactionCounter int64) (*Session, error) {
	session := newSession(transport, m.options)
	session.transactionCounter.Store(transactionCounter)

	if err := session.initialSync(ctx, m.loadCursor(transport.UserID())); err != nil {
		transport.Close()
		return nil, err
	}
	session.startLoop(ctx)
	return session, nil
}

// loadCursor returns the saved cursor for user when resuming from a
// cursor is enabled and one exists.
func (m *Manager) loadCursor(user ref.UserID) *sessionstore.Cursor {
	if !m.options.ResumeFromCursor || m.cursors == nil {
		return nil
	}
	cursor, err := m.cursors.Load()
	if err != nil {
		if !errors.Is(err, sessionstore.ErrNotFound) {
			m.logger.Warn("saved cursor unreadable, starting fresh", "error", err)
		}
		return nil
	}
	if cursor.UserID != user.String() {
		return nil
	}
	return cursor
}

// Disconnect stops the active session. The sync loop is cancelled and
// waited for, room state is released and the active reference cleared.
// With logout the access token is invalidated on the server and the
// saved record and cursor deleted; otherwise both are saved for the
// next Connect.
func (m *Manager) Disconnect(ctx context.Context, logout bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.active
	if session == nil {
		return ErrNoSession
	}
	session.halt()

	var errs []error
	if logout {
		if err := session.transport.Logout(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: logout: %w", err))
		}
		if m.store != nil {
			if err := m.store.Delete(); err != nil {
				errs = append(errs, err)
			}
		}
		if m.cursors != nil {
			if err := m.cursors.Delete(); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		if m.store != nil {
			if err := m.store.Save(session.record()); err != nil {
				errs = append(errs, err)
			}
		}
		if m.cursors != nil && session.Cursor() != "" {
			if err := m.cursors.Save(session.snapshotCursor()); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := session.release(); err != nil {
		errs = append(errs, fmt.Errorf("engine: releasing transport: %w", err))
	}
	m.active = nil
	m.logger.Info("disconnected", "user_id", session.UserID(), "logout", logout)
	return errors.Join(errs...)
}

// recordMatches reports whether a saved record can serve request. A
// bare localpart matches on localpart alone.
func recordMatches(record *sessionstore.Record, request ConnectRequest) bool {
	homeserver := strings.TrimRight(request.Homeserver, "/")
	if homeserver != "" && strings.TrimRight(record.Homeserver, "/") != homeserver {
		return false
	}
	switch {
	case request.User == "":
		return true
	case strings.HasPrefix(request.User, "@"):
		user, err := ref.ParseUserID(request.User)
		return err == nil && record.Matches(user, "")
	default:
		return record.UserID.Localpart() == request.User
	}
}
