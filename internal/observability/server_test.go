// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", ready)
	_, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test helper

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Liveness(t *testing.T) {
	s := startServer(t, nil)

	code, body := get(t, fmt.Sprintf("http://%s/healthz/liveness", s.Addr()))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	ready := true
	s := startServer(t, func() bool { return ready })
	url := fmt.Sprintf("http://%s/healthz/readiness", s.Addr())

	code, body := get(t, url)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	ready = false
	code, body = get(t, url)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready\n", body)
}

func TestServer_Metrics(t *testing.T) {
	s := startServer(t, nil)

	code, body := get(t, fmt.Sprintf("http://%s/metrics", s.Addr()))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines", "default registry exposes Go runtime metrics")
}

func TestServer_StartTwiceFails(t *testing.T) {
	s := startServer(t, nil)

	_, err := s.Start()
	require.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	_, err := s.Start()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stopping a stopped server is a no-op")
}
