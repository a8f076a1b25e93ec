package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/logger"
)

func TestLogging_RequestID(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.DebugLevel)

	var seen string
	h := Logging(&l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "abc123" || w.Header().Get("X-Request-ID") != "abc123" {
		t.Fatalf("request id: ctx=%q header=%q", seen, w.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"request_id":"abc123"`) {
		t.Fatalf("log line: %s", out)
	}
}

func TestLogging_GeneratesID(t *testing.T) {
	l := zerolog.Nop()
	h := Logging(&l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Header().Get("X-Request-ID")) != 16 {
		t.Fatalf("X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := Recover(&l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("log: %s", buf.String())
	}
}
