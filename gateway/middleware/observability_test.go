package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestObservabilityAssignsRequestID(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Enabled: true, LogRequests: true}, nil)
	router := chi.NewRouter()
	router.Use(obs.Middleware)
	router.Get("/v1/loans/{loan}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/loans/0x01", nil))
	if res.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", res.Code)
	}
	if res.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/loans/0x02", nil)
	req.Header.Set("X-Request-ID", "fixed")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if got := res.Header().Get("X-Request-ID"); got != "fixed" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/loans", nil)
	preflight.Header.Set("Origin", "https://app.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, preflight)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected preflight to short circuit, got %d", res.Code)
	}
	if res.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("expected origin to be reflected")
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/loans", nil)
	other.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	if res.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin grant")
	}
}
