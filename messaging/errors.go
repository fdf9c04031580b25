// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/courier/lib/netutil"
)

// MatrixError represents a structured error response from the Matrix homeserver.
// Callers can use errors.As to extract the structured information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeUnknownToken { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMillis is set on M_LIMIT_EXCEEDED responses.
	RetryAfterMillis int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden       = "M_FORBIDDEN"
	ErrCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken    = "M_MISSING_TOKEN"
	ErrCodeNotFound        = "M_NOT_FOUND"
	ErrCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized    = "M_UNRECOGNIZED"
	ErrCodeUnknown         = "M_UNKNOWN"
	ErrCodeInvalidParam    = "M_INVALID_PARAM"
	ErrCodeMissingParam    = "M_MISSING_PARAM"
	ErrCodeUserDeactivated = "M_USER_DEACTIVATED"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// UnexpectedResponseError is returned when the server answers with a
// non-2xx status and a body that is not a Matrix error object. Reverse
// proxies produce these (502 HTML pages) when the homeserver is down.
type UnexpectedResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("messaging: unexpected %d response from %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// DecodeError is returned when a 2xx response body arrived but did not
// decode into the expected shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("messaging: decoding %s response: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FailureClass is what the sync loop does about a failed request.
type FailureClass int

const (
	// FailureTransient errors are retried with the same cursor.
	FailureTransient FailureClass = iota
	// FailureCertificate errors stop the loop and need a human to
	// look at the server's TLS configuration.
	FailureCertificate
	// FailureAuth errors mean the access token is no longer valid.
	FailureAuth
	// FailureFatal errors stop the loop until explicitly resumed.
	FailureFatal
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "transient"
	case FailureCertificate:
		return "certificate"
	case FailureAuth:
		return "auth"
	case FailureFatal:
		return "fatal"
	default:
		return fmt.Sprintf("FailureClass(%d)", int(c))
	}
}

// Classify sorts a request error into a FailureClass.
//
// Certificate failures are checked before anything else: they are
// wrapped in *url.Error and *net.OpError, which would otherwise look
// like ordinary transport errors. Cancellation is fatal, since only the
// owner of the context cancels it. Malformed response bodies are
// transient: a truncated or garbled /sync body says nothing about the
// next one.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureFatal
	}
	if netutil.IsCertificateError(err) {
		return FailureCertificate
	}
	if errors.Is(err, context.Canceled) {
		return FailureFatal
	}

	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		switch {
		case matrixErr.Code == ErrCodeUnknownToken,
			matrixErr.Code == ErrCodeMissingToken,
			matrixErr.Code == ErrCodeUserDeactivated:
			return FailureAuth
		case matrixErr.Code == ErrCodeLimitExceeded,
			matrixErr.StatusCode == http.StatusTooManyRequests,
			matrixErr.StatusCode >= 500:
			return FailureTransient
		default:
			return FailureFatal
		}
	}

	var unexpected *UnexpectedResponseError
	if errors.As(err, &unexpected) {
		if unexpected.StatusCode >= 500 || unexpected.StatusCode == http.StatusTooManyRequests {
			return FailureTransient
		}
		return FailureFatal
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return FailureTransient
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return FailureTransient
	}

	if netutil.IsTransient(err) {
		return FailureTransient
	}
	return FailureFatal
}
