// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/courier/lib/secret"
)

// testBuffer creates a secret.Buffer from a string for testing. The buffer
// is automatically closed when the test completes.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org/"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.Homeserver() != "https://matrix.example.org" {
			t.Errorf("Homeserver() = %q, want trailing slash trimmed", client.Homeserver())
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "://invalid"}); err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})

	t.Run("non-http scheme", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "ftp://example.org"}); err == nil {
			t.Fatal("expected error for ftp scheme")
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/_matrix/client/v3/login" {
				t.Errorf("unexpected path: %s", request.URL.Path)
			}
			if request.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", request.Method)
			}
			var body LoginRequest
			if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode login body: %v", err)
			}
			if body.Type != "m.login.password" || body.Password != "hunter2" {
				t.Errorf("unexpected login body: %+v", body)
			}
			if body.Identifier == nil || body.Identifier.User != "alice" {
				t.Errorf("unexpected identifier: %+v", body.Identifier)
			}
			if body.InitialDeviceDisplayName != DeviceDisplayName {
				t.Errorf("device display name = %q", body.InitialDeviceDisplayName)
			}
			writeJSON(writer, map[string]string{
				"user_id":      "@alice:local",
				"access_token": "syt_token",
				"device_id":    "DEVICE",
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
		if err != nil {
			t.Fatal(err)
		}
		session, err := client.Login(context.Background(), "alice", testBuffer(t, "hunter2"))
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		defer session.Close()

		if session.UserID().String() != "@alice:local" {
			t.Errorf("UserID = %s", session.UserID())
		}
		if session.AccessToken() != "syt_token" {
			t.Errorf("AccessToken = %q", session.AccessToken())
		}
		if session.DeviceID() != "DEVICE" {
			t.Errorf("DeviceID = %q", session.DeviceID())
		}
	})

	t.Run("forbidden", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeMatrixError(writer, http.StatusForbidden, ErrCodeForbidden, "Invalid password")
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{HomeserverURL: server.URL})
		_, err := client.Login(context.Background(), "alice", testBuffer(t, "wrong"))
		if err == nil {
			t.Fatal("expected error for bad password")
		}
		var matrixErr *MatrixError
		if !errors.As(err, &matrixErr) {
			t.Fatalf("expected *MatrixError, got %T: %v", err, err)
		}
		if matrixErr.StatusCode != http.StatusForbidden || matrixErr.Code != ErrCodeForbidden {
			t.Errorf("unexpected error: %+v", matrixErr)
		}
		if Classify(err) != FailureFatal {
			t.Errorf("Classify(forbidden) = %s, want fatal", Classify(err))
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		client, _ := NewClient(ClientConfig{HomeserverURL: "http://localhost:1"})
		if _, err := client.Login(context.Background(), "", testBuffer(t, "x")); err == nil {
			t.Error("expected error for empty username")
		}
		if _, err := client.Login(context.Background(), "alice", nil); err == nil {
			t.Error("expected error for nil password")
		}
	})
}

func TestSessionFromToken(t *testing.T) {
	client, _ := NewClient(ClientConfig{HomeserverURL: "http://localhost:1"})
	if _, err := client.SessionFromToken(mustUser(t, "@alice:local"), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
	session, err := client.SessionFromToken(mustUser(t, "@alice:local"), "saved")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	if session.AccessToken() != "saved" {
		t.Errorf("AccessToken = %q", session.AccessToken())
	}
	if err := session.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestUnexpectedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/html")
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{HomeserverURL: server.URL})
	_, err := client.ServerVersions(context.Background())
	var unexpected *UnexpectedResponseError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected *UnexpectedResponseError, got %T: %v", err, err)
	}
	if unexpected.StatusCode != http.StatusBadGateway || !strings.Contains(unexpected.Body, "Bad Gateway") {
		t.Errorf("unexpected error: %+v", unexpected)
	}
	if Classify(err) != FailureTransient {
		t.Errorf("Classify(502) = %s, want transient", Classify(err))
	}
}

func TestDefaultTransportAcceptsGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Accept-Encoding"), "gzip") {
			t.Errorf("Accept-Encoding = %q, want gzip", request.Header.Get("Accept-Encoding"))
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("Content-Encoding", "gzip")
		compressor := gzip.NewWriter(writer)
		json.NewEncoder(compressor).Encode(ServerVersionsResponse{Versions: []string{"v1.11"}})
		compressor.Close()
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{HomeserverURL: server.URL})
	versions, err := client.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions failed: %v", err)
	}
	if len(versions.Versions) != 1 || versions.Versions[0] != "v1.11" {
		t.Errorf("versions = %v", versions.Versions)
	}
	client.CloseIdleConnections()
}
