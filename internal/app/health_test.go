package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if status, exists := response["status"]; !exists || status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}

	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	for _, name := range []string{"database", "sessions"} {
		check, ok := checks[name].(map[string]any)
		if !ok {
			t.Fatalf("expected %s check, got %v", name, checks[name])
		}
		if status := check["status"]; status != "ok" {
			t.Errorf("expected %s status=ok, got %v", name, status)
		}
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(context.Context) error {
			return errors.New("connection refused")
		},
	}
	svc, _ := newTestService(fs, testController(openClock))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if status, exists := response["status"]; !exists || status != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", status)
	}
}

func TestReadyEndpoint_SessionStoreFailure(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	svc.sessions = &fakeSessions{
		pingFn: func(context.Context) error {
			return errors.New("redis down")
		},
	}
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestHealthEndpoint_CORSHeaders(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}

	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
}
