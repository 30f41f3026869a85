package app

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

type stubStats struct {
	turns    int64
	failures int64
}

func (s *stubStats) Stats() (int64, int64) { return s.turns, s.failures }

func TestHealthEndpoint(t *testing.T) {
	hs := NewHealthServer(":0", &stubStats{})

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	hs := NewHealthServer(":0", &stubStats{turns: 42, failures: 3})

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != 200 {
		t.Fatalf("GET /status status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Turns != 42 || resp.Failures != 3 {
		t.Errorf("counters = (%d, %d), want (42, 3)", resp.Turns, resp.Failures)
	}
	if resp.UptimeSecs < 0 {
		t.Errorf("uptime = %v", resp.UptimeSecs)
	}
}

func TestUnknownRoute(t *testing.T) {
	hs := NewHealthServer(":0", &stubStats{})
	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != 404 {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}
