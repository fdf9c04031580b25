// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// courier is a line-oriented Matrix client. It logs in (reusing a saved
// access token when it can), prints the rooms it has joined and every
// message that arrives, and sends whatever is typed to the focused
// room. Lines beginning with "/" are commands; /help lists them.
//
// Configuration comes from the YAML file named by --config or
// COURIER_CONFIG, with --homeserver and --user overriding the file. On
// exit the access token is saved for the next run unless --logout is
// given, which invalidates it on the server instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/courier/engine"
	"github.com/bureau-foundation/courier/lib/config"
	"github.com/bureau-foundation/courier/lib/secret"
	"github.com/bureau-foundation/courier/notify"
	"github.com/bureau-foundation/courier/sessionstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "courier: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, homeserver, user, passwordFile string
	var logout, noSavedToken bool

	flagSet := pflag.NewFlagSet("courier", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to courier.yaml (default: $COURIER_CONFIG)")
	flagSet.StringVar(&homeserver, "homeserver", "", "Matrix homeserver URL (overrides config)")
	flagSet.StringVarP(&user, "user", "u", "", "user id or localpart (overrides config)")
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	flagSet.BoolVar(&logout, "logout", false, "invalidate the access token on exit instead of saving it")
	flagSet.BoolVar(&noSavedToken, "no-saved-token", false, "ignore any saved access token and log in with a password")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if homeserver != "" {
		cfg.Homeserver = homeserver
	}
	if user != "" {
		cfg.User = user
	}
	cfg.ExpandVariables()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return err
	}

	logger := newLogger()
	filter, err := cfg.LoadFilter()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	terminal := newTerminal(os.Stdout, time.Local)
	options := engine.Options{
		PollTimeout:      cfg.PollTimeout(),
		InitialSyncLimit: cfg.Sync.InitialSyncLimit,
		Filter:           filter,
		ResumeFromCursor: cfg.Sync.ResumeFromCursor,
		Toggles: engine.Toggles{
			Membership: cfg.Render.Membership,
			Presence:   cfg.Render.Presence,
		},
		Markdown:  cfg.Render.Markdown,
		ASCIIOnly: cfg.Notify.ASCIIOnly,
		Sink:      terminal,
		Focus:     terminal.Focused,
		Logger:    logger,
	}
	if cfg.Notify.Enabled {
		options.Notifier = notifier(cfg.Notify.Backend, terminal)
	}

	var cursors *sessionstore.CursorFile
	if cfg.Session.CursorPath != "" {
		cursors = &sessionstore.CursorFile{Path: cfg.Session.CursorPath}
	}
	manager := engine.NewManager(engine.ManagerConfig{
		Dialer: &engine.MatrixDialer{
			Logger:    logger,
			PollGrace: cfg.PollGrace(),
		},
		Store:   store,
		Cursors: cursors,
		Options: options,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := manager.Connect(ctx, engine.ConnectRequest{
		Homeserver:    cfg.Homeserver,
		User:          cfg.User,
		UseSavedToken: !noSavedToken,
		Password:      passwordPrompt(passwordFile),
	})
	if err != nil {
		return err
	}
	terminal.Printf("connected as %s, %d rooms", session.UserID(), len(session.Rooms()))

	requested := interact(ctx, session, terminal, os.Stdin)

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return manager.Disconnect(disconnectCtx, logout || requested == exitLogout)
}

// loadConfig reads the file named by path, or by COURIER_CONFIG when
// path is empty. With neither set, defaults are used and flags must
// supply the homeserver and user.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvConfig) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// openStore returns the credential store the config asks for, or nil
// when tokens are not saved.
func openStore(cfg *config.Config) (sessionstore.Store, func(), error) {
	if !cfg.Session.SaveToken {
		return nil, func() {}, nil
	}
	if cfg.Session.SealedIdentity == "" {
		return sessionstore.NewFileStore(cfg.Session.Path), func() {}, nil
	}
	store, err := sessionstore.NewSealedStore(cfg.Session.Path, cfg.Session.SealedIdentity)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// notifier returns the delivery backend named by notify.backend. The
// log backend writes every notification, at info level, as JSON to
// stderr regardless of the diagnostic log level.
func notifier(backend string, inline *terminal) notify.Notifier {
	if backend == config.NotifyBackendLog {
		return &notify.LogNotifier{Logger: slog.New(slog.NewJSONHandler(os.Stderr, nil))}
	}
	return inline
}

// newLogger writes text records to a terminal and JSON records
// otherwise. Only warnings and errors are shown, since info records
// would interleave with the conversation.
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// passwordPrompt reads the password from passwordFile, or from the
// terminal with echo disabled when no file is given.
func passwordPrompt(passwordFile string) engine.PasswordPrompt {
	return func(ctx context.Context) (*secret.Buffer, error) {
		if passwordFile != "" && passwordFile != "-" {
			return secret.ReadPasswordFile(passwordFile)
		}
		password, err := secret.PromptPassword(os.Stdin, os.Stderr, "Password: ")
		if errors.Is(err, secret.ErrNoTerminal) {
			return nil, errors.New("no terminal available for the password prompt (use --password-file)")
		}
		return password, err
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `courier, a line-oriented Matrix client.

Usage:
  courier [flags]

Once connected, type a message to send it to the focused room, or a
command (/help lists them).

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
