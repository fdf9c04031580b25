// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that the sync
// loop's retry scheduling can be tested without real waiting.
//
// Production code holds a Clock and calls Real(). Tests construct a
// FakeClock, wait for the code under test to register its timer with
// WaitForTimers, then fire it with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start the loop with fake ...
//	fake.WaitForTimers(1)
//	fake.Advance(15 * time.Second)
package clock
