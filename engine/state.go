// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

// State is the sync loop's position in its lifecycle.
type State int32

const (
	// StateInitialSync is fetching and dispatching the full snapshot.
	StateInitialSync State = iota

	// StateLivePoll has a long-poll outstanding or is dispatching its
	// response.
	StateLivePoll

	// StateRetryWait is waiting out the delay after a transient failure.
	StateRetryWait

	// StateStopped is terminal until Resume or a reconnect.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialSync:
		return "initial-sync"
	case StateLivePoll:
		return "live-poll"
	case StateRetryWait:
		return "retry-wait"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
