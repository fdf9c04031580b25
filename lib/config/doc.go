// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for courier.
//
// Configuration is loaded from a single file specified by either the
// COURIER_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. Command-line
// flags in cmd/courier may override individual fields after loading.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${COURIER_STATE} and ${VAR:-default} patterns are expanded.
//
// Durations are strings parsed with time.ParseDuration ("30s", "2m").
// The optional sync filter file is JSONC (JSON with comments and
// trailing commas) and is normalized to plain JSON by [Config.LoadFilter]
// before being sent to the homeserver.
//
// Key exports:
//
//   - [Config] -- master struct with Sync, Render, Notify, Session
//   - [Default] -- returns a Config with all defaults filled in
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
