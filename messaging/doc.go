// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for courier's
// sync engine.
//
// [Client] is an unauthenticated Matrix client that handles password
// login and restores sessions from saved access tokens. It holds the
// homeserver URL and HTTP transport. The default transport accepts
// gzip-compressed responses, which matters for initial /sync bodies
// that can run to megabytes of JSON.
//
// [DirectSession] wraps a Client with an access token for authenticated
// operations: /sync long-polling (incremental or full-state), sending
// room messages with caller-supplied transaction ids, read receipts,
// backward pagination through /messages, WhoAmI and logout. The access
// token lives in mmap-backed secret.Buffer memory; callers must call
// Close to release it.
//
// The joined-rooms section of a sync response decodes into
// [JoinedRooms], which keeps the order rooms appeared in the JSON
// object so that events can be dispatched in arrival order.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code and HTTP status code, or [*UnexpectedResponseError]
// when the server (or a proxy in front of it) answered with a non-JSON
// body. [Classify] sorts any error from this package into the four
// failure classes the sync loop acts on.
package messaging
