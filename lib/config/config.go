// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for courier.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver, e.g.
	// "https://matrix.example.org".
	Homeserver string `yaml:"homeserver"`

	// User is the Matrix user id or bare localpart to log in as.
	User string `yaml:"user"`

	// StateDir is where the credential record and cursor file live.
	// Default: ${HOME}/.local/state/courier
	StateDir string `yaml:"state_dir"`

	Sync    SyncConfig    `yaml:"sync"`
	Render  RenderConfig  `yaml:"render"`
	Notify  NotifyConfig  `yaml:"notify"`
	Session SessionConfig `yaml:"session"`
}

// SyncConfig configures the /sync long-poll loop.
type SyncConfig struct {
	// PollTimeout is the server-side long-poll timeout. Transient
	// failures are retried after half of it.
	// Default: 30s
	PollTimeout string `yaml:"poll_timeout"`

	// PollGrace is added to PollTimeout to bound the HTTP request.
	// Default: 10s
	PollGrace string `yaml:"poll_grace"`

	// InitialSyncLimit caps the timeline window per room in the
	// initial sync.
	// Default: 20
	InitialSyncLimit int `yaml:"initial_sync_limit"`

	// FilterFile is an optional JSONC file holding a Matrix filter
	// definition that replaces the built-in initial sync filter.
	FilterFile string `yaml:"filter_file"`

	// ResumeFromCursor starts from the saved cursor file instead of a
	// fresh initial sync window.
	ResumeFromCursor bool `yaml:"resume_from_cursor"`
}

// RenderConfig holds the default render toggles.
type RenderConfig struct {
	// Membership renders join/leave lines in room history.
	Membership bool `yaml:"membership"`

	// Presence renders presence changes.
	Presence bool `yaml:"presence"`

	// Markdown renders outgoing message bodies to HTML.
	Markdown bool `yaml:"markdown"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend selects delivery: "terminal" prints notifications inline,
	// "log" writes them as JSON records to stderr for another program
	// to pick up.
	// Default: terminal
	Backend string `yaml:"backend"`

	// ASCIIOnly folds notification bodies to ASCII for backends that
	// reject multi-byte text.
	ASCIIOnly bool `yaml:"ascii_only"`
}

// SessionConfig configures credential persistence.
type SessionConfig struct {
	// SaveToken persists the access token on disconnect and tries it
	// before asking for a password on connect.
	SaveToken bool `yaml:"save_token"`

	// Path is the credential record file.
	// Default: ${COURIER_STATE}/session.json
	Path string `yaml:"path"`

	// CursorPath is the CBOR cursor file.
	// Default: ${COURIER_STATE}/cursor.cbor
	CursorPath string `yaml:"cursor_path"`

	// SealedIdentity is an age identity file. When set the credential
	// record is encrypted to this identity's recipient.
	SealedIdentity string `yaml:"sealed_identity"`
}

const (
	// EnvConfig names the environment variable read by [Load].
	EnvConfig = "COURIER_CONFIG"

	// Notification backends accepted in notify.backend.
	NotifyBackendTerminal = "terminal"
	NotifyBackendLog      = "log"

	defaultPollTimeout      = "30s"
	defaultPollGrace        = "10s"
	defaultInitialSyncLimit = 20
)

// Default returns the default configuration. LoadFile decodes the
// config file over these values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".local", "state", "courier")

	return &Config{
		StateDir: stateDir,
		Sync: SyncConfig{
			PollTimeout:      defaultPollTimeout,
			PollGrace:        defaultPollGrace,
			InitialSyncLimit: defaultInitialSyncLimit,
		},
		Render: RenderConfig{
			Membership: true,
			Presence:   false,
			Markdown:   true,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Backend: NotifyBackendTerminal,
		},
		Session: SessionConfig{
			SaveToken:  true,
			Path:       "${COURIER_STATE}/session.json",
			CursorPath: "${COURIER_STATE}/cursor.cbor",
		},
	}
}

// Load loads configuration from the COURIER_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your courier.yaml config file, or use --config flag", EnvConfig)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields. Exported so that callers applying flag overrides can expand
// again afterwards.
func (c *Config) ExpandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.StateDir = expandVars(c.StateDir, vars)
	vars["COURIER_STATE"] = c.StateDir

	c.Session.Path = expandVars(c.Session.Path, vars)
	c.Session.CursorPath = expandVars(c.Session.CursorPath, vars)
	c.Session.SealedIdentity = expandVars(c.Session.SealedIdentity, vars)
	c.Sync.FilterFile = expandVars(c.Sync.FilterFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver == "" {
		errs = append(errs, errors.New("homeserver is required"))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user is required"))
	}

	if timeout, err := time.ParseDuration(c.Sync.PollTimeout); err != nil {
		errs = append(errs, fmt.Errorf("sync.poll_timeout: %w", err))
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_timeout must be positive, got %s", c.Sync.PollTimeout))
	}
	if grace, err := time.ParseDuration(c.Sync.PollGrace); err != nil {
		errs = append(errs, fmt.Errorf("sync.poll_grace: %w", err))
	} else if grace < 0 {
		errs = append(errs, fmt.Errorf("sync.poll_grace must not be negative, got %s", c.Sync.PollGrace))
	}
	if c.Sync.InitialSyncLimit <= 0 {
		errs = append(errs, fmt.Errorf("sync.initial_sync_limit must be positive, got %d", c.Sync.InitialSyncLimit))
	}

	switch c.Notify.Backend {
	case NotifyBackendTerminal, NotifyBackendLog:
	default:
		errs = append(errs, fmt.Errorf("notify.backend must be %q or %q, got %q",
			NotifyBackendTerminal, NotifyBackendLog, c.Notify.Backend))
	}

	if c.Session.SaveToken && c.Session.Path == "" {
		errs = append(errs, errors.New("session.path is required when session.save_token is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PollTimeout returns the parsed sync.poll_timeout.
func (c *Config) PollTimeout() time.Duration {
	return parseDurationOr(c.Sync.PollTimeout, defaultPollTimeout)
}

// PollGrace returns the parsed sync.poll_grace.
func (c *Config) PollGrace() time.Duration {
	return parseDurationOr(c.Sync.PollGrace, defaultPollGrace)
}

// parseDurationOr falls back to fallback when value does not parse.
// Validate reports the parse error; accessors stay total.
func parseDurationOr(value, fallback string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		duration, _ = time.ParseDuration(fallback)
	}
	return duration
}

// LoadFilter reads sync.filter_file and returns it as plain JSON. It
// returns nil with no error when no filter file is configured.
func (c *Config) LoadFilter() (json.RawMessage, error) {
	if c.Sync.FilterFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Sync.FilterFile)
	if err != nil {
		return nil, fmt.Errorf("reading filter file: %w", err)
	}
	normalized := jsonc.ToJSON(data)
	var object map[string]any
	if err := json.Unmarshal(normalized, &object); err != nil {
		return nil, fmt.Errorf("filter file %s is not a JSON object: %w", c.Sync.FilterFile, err)
	}
	return json.RawMessage(normalized), nil
}

// EnsureStateDir creates the state directory with owner-only access.
func (c *Config) EnsureStateDir() error {
	if c.StateDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.StateDir, err)
	}
	return nil
}
