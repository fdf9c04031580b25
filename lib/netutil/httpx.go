// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP response reading and network failure
// classification for the Matrix transport.
//
// ReadResponse bounds response body reads at MaxResponseSize. Initial
// /sync responses for accounts in many rooms can run to tens of
// megabytes, so the limit is generous; it exists only to stop a
// pathological server from exhausting memory.
//
// IsTransient and IsCertificateError sort transport failures into the
// ones worth retrying and the ones that need a human.
package netutil

import (
	"io"
)

// MaxResponseSize is the bound on JSON API response body reads: 256 MB.
const MaxResponseSize int64 = 256 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
