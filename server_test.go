package callwatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		Addr:            ":0",
		PollInterval:    time.Minute,
		LimitLast:       1,
		StateFile:       filepath.Join(t.TempDir(), "state.json"),
		ScriptRulesFile: filepath.Join(t.TempDir(), "absent.yaml"),
		HTTPTimeout:     time.Second,
	}
	mon := NewMonitor(cfg, testLogger())
	return NewServer(cfg, testLogger(), mon)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(s, "GET", "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("status: %s", resp["status"])
	}
	if resp["service"] != "callwatch" {
		t.Fatalf("service: %s", resp["service"])
	}
}

func TestInternalMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(s, "GET", "/internal/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var snap MetricsSnapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Goroutines <= 0 {
		t.Fatalf("goroutines: %d", snap.Goroutines)
	}
}

func TestInternalStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(s, "GET", "/internal/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		UptimeSeconds int           `json:"uptime_seconds"`
		Monitor       MonitorStatus `json:"monitor"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Monitor.PollIntervalSeconds != 60 {
		t.Fatalf("interval: %d", resp.Monitor.PollIntervalSeconds)
	}
	// The test config carries no credentials.
	if resp.Monitor.SecretsComplete {
		t.Fatal("secrets should be incomplete")
	}
}

func TestUnmatchedRouteIs404(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(s, "GET", "/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
