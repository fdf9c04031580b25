// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for courier packages.
//
// [RequireReceive], [RequireClosed] and [RequireQuiet]
// wrap the select-with-timeout pattern for channel assertions so that
// individual tests never call time.After directly. They are the only
// place in the test suite that uses real wall-clock timeouts: timing
// under test goes through lib/clock.Fake.
//
// [UniqueID] and [UniqueEventID] generate monotonically increasing
// identifiers for transaction ids and event ids in mock homeserver
// responses.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
