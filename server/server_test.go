package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/chat-archiver/server"
	"github.com/onnwee/chat-archiver/testutil"
)

func TestHealthz(t *testing.T) {
	database := testutil.SetupTestDB(t)
	srv := httptest.NewServer(server.NewMux(database))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzRequiresBotCredentials(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateAll(t, database)
	srv := httptest.NewServer(server.NewMux(database))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status without credentials = %d, want 503", resp.StatusCode)
	}

	if _, err := database.ExecContext(context.Background(),
		`INSERT INTO bots (id, nick, refresh_token) VALUES ('archiver', 'archiver', 'rt')`); err != nil {
		t.Fatalf("insert bot: %v", err)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with credentials = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	database := testutil.SetupTestDB(t)
	srv := httptest.NewServer(server.NewMux(database))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
