package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/runner"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(runner.Status{Running: true, ClientID: "c1", Probes: 3, Cycles: 7, SkippedCycles: 2})
	})
	mux.HandleFunc("/api/results", func(w http.ResponseWriter, r *http.Request) {
		at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode([]domain.ResultRecord{
			domain.NewRecord("web.home(http)", "c1", domain.CheckResult{Outcome: domain.Failure, Description: "503\nmore"}, at),
		})
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatus(t *testing.T) {
	srv := fakeAPI(t)
	out, err := execute(t, "status", "--api", srv.URL, "--key", "k1")
	require.NoError(t, err)
	require.Contains(t, out, "c1")
	require.Contains(t, out, "7 (2 skipped)")
}

func TestResults(t *testing.T) {
	srv := fakeAPI(t)
	out, err := execute(t, "results", "--api", srv.URL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "web.home(http)")
	require.Contains(t, lines[1], "Failure")
	require.True(t, strings.HasSuffix(lines[1], "503"), lines[1])
}

func TestStop_ReportsAPIError(t *testing.T) {
	srv := fakeAPI(t)
	_, err := execute(t, "stop", "--api", srv.URL)
	require.ErrorContains(t, err, "forbidden")
}
