package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	handler := HTTPRequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		if !ok {
			t.Error("request id missing from context")
		}
		seenID = id
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("POST", "/v1/namespaces/app/evaluate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenID == "" {
		t.Fatal("request id is empty")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2 (started, completed):\n%s", len(lines), buf.String())
	}

	var completed map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatalf("completed record is not JSON: %v", err)
	}
	if completed["msg"] != "request completed" {
		t.Fatalf("record = %v", completed)
	}
	if completed["request_id"] != seenID {
		t.Fatalf("request_id = %v, want %q", completed["request_id"], seenID)
	}
	if completed["status_code"] != float64(http.StatusTeapot) {
		t.Fatalf("status_code = %v, want %d", completed["status_code"], http.StatusTeapot)
	}
	if completed["path"] != "/v1/namespaces/app/evaluate" {
		t.Fatalf("path = %v", completed["path"])
	}
}

func TestHTTPRequestLogging_UniqueRequestIDs(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	ids := map[string]bool{}
	handler := HTTPRequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := RequestIDFromContext(r.Context())
		ids[id] = true
	}))

	for i := 0; i < 10; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	}
	if len(ids) != 10 {
		t.Fatalf("got %d distinct request ids across 10 requests", len(ids))
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if got := LoggerFromContext(req.Context()); got == nil {
		t.Fatal("LoggerFromContext returned nil outside the middleware")
	}
}

func TestResponseWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if _, err := rw.Write([]byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rw.statusCode != http.StatusOK {
		t.Fatalf("statusCode = %d, want 200", rw.statusCode)
	}

	// A later WriteHeader must not overwrite the recorded status.
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Fatalf("statusCode = %d, want the first status to stick", rw.statusCode)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.7:1234", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		if got := ClientIP(tt.in); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
