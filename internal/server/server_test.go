package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/magma-calc/internal/auth"
	"github.com/sakif/magma-calc/internal/config"
	"github.com/sakif/magma-calc/internal/executor"
	"github.com/sakif/magma-calc/internal/model"
)

const (
	tokenSecret = "0123456789abcdef0123456789abcdef"
	transcript  = "Magma V2.29-4     Fri Jan 31 2026 12:00:00 on linux   [Seed = 42]\n" +
		"quit.\n4\n" +
		"Total time: 0.010 seconds, Total memory usage: 32.09MB\n"
)

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	return &executor.ExecutionResult{Stdout: transcript, Duration: 10 * time.Millisecond}, nil
}

func testConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Usage.Store = store
	cfg.Usage.Path = filepath.Join(t.TempDir(), "usage."+store)
	cfg.Limits.RateLimitPerMinute = 3
	cfg.Server.AllowedOrigin = "https://magma.example, http://localhost"
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), stubExecutor{})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))

	rr := do(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"), "no Origin, no CORS header")
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))

	rr := do(t, srv.Handler(), http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_found")
}

func TestServer_ExecuteAndStats(t *testing.T) {
	for _, store := range []string{"jsonl", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(t, store)
			srv := newTestServer(t, cfg)

			rr := do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"2+2;"}`,
				map[string]string{"Origin": "http://localhost:5173"})
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

			var resp model.ExecuteResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.True(t, resp.Success)
			assert.Equal(t, "4\n", resp.Stdout)
			require.NotNil(t, resp.Magma.Version)
			assert.Equal(t, "2.29-4", *resp.Magma.Version)

			rr = do(t, srv.Handler(), http.MethodGet, "/stats", "", nil)
			require.Equal(t, http.StatusOK, rr.Code)
			var stats model.UsageStats
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
			assert.Equal(t, 1, stats.AllTime.TotalRequests)
			assert.Equal(t, 1, stats.Last24h.Successes)

			// A fresh server over the same journal sees the earlier run.
			require.NoError(t, srv.Close())
			again := newTestServer(t, cfg)
			rr = do(t, again.Handler(), http.MethodGet, "/stats", "", nil)
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
			assert.Equal(t, 1, stats.AllTime.TotalRequests)
		})
	}
}

func TestServer_RateLimited(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))

	for i := 0; i < 3; i++ {
		rr := do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"1;"}`, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"1;"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// RealIP keys the limiter on the forwarded address.
	rr = do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"1;"}`,
		map[string]string{"X-Forwarded-For": "203.0.113.9"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_InvalidBody(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))

	rr := do(t, srv.Handler(), http.MethodPost, "/execute", `{"nope":1}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestServer_Preflight(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))

	rr := do(t, srv.Handler(), http.MethodOptions, "/execute", "", map[string]string{"Origin": "https://magma.example"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://magma.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = do(t, srv.Handler(), http.MethodOptions, "/execute", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestServer_StatsToken(t *testing.T) {
	cfg := testConfig(t, "jsonl")
	cfg.Stats.TokenSecret = tokenSecret
	srv := newTestServer(t, cfg)

	rr := do(t, srv.Handler(), http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tokens, err := auth.NewTokenService(tokenSecret)
	require.NoError(t, err)
	token, err := tokens.Issue("ops", auth.ScopeStats, time.Hour)
	require.NoError(t, err)

	rr = do(t, srv.Handler(), http.MethodGet, "/stats", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rr.Code)

	// /execute and /health stay public.
	rr = do(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, testConfig(t, "jsonl"))
	do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"1;"}`, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `magma_calc_executions_total{outcome="success"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, "jsonl")
	cfg.Metrics.Enabled = false
	srv := newTestServer(t, cfg)

	rr := do(t, srv.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_UnusableJournal(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	cfg.Usage.Path = "/dev/null/usage.db"
	srv := newTestServer(t, cfg)

	rr := do(t, srv.Handler(), http.MethodPost, "/execute", `{"code":"1;"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, srv.Handler(), http.MethodGet, "/stats", "", nil)
	assert.Contains(t, rr.Body.String(), `"total_requests":1`)
}

func TestServer_TLSFiles(t *testing.T) {
	cfg := testConfig(t, "jsonl")
	srv := newTestServer(t, cfg)

	_, _, ok := srv.tlsFiles()
	assert.False(t, ok, "unset")

	cfg.Server.TLSCertFile = filepath.Join(t.TempDir(), "missing.crt")
	cfg.Server.TLSKeyFile = cfg.Server.TLSCertFile
	_, _, ok = srv.tlsFiles()
	assert.False(t, ok, "missing files")
}
