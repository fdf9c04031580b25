// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// UniqueEventID returns a well-formed Matrix event id on server, such
// as "$evt-7:test.local".
func UniqueEventID(server string) string {
	return fmt.Sprintf("$%s:%s", UniqueID("evt"), server)
}
