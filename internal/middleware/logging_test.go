package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// logOnce はNewLoggingMiddlewareでhを包み、reqを1回処理したときのログ行を返す。
func logOnce(t *testing.T, h http.HandlerFunc, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	NewLoggingMiddleware(logger)(h).ServeHTTP(httptest.NewRecorder(), req)
	return decodeLogEntry(t, &buf)
}

func TestLoggingMiddleware_RequestFields(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus float64
		wantLevel  string
	}{
		{"explicit 201", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }, 201, "INFO"},
		{"implicit 200 on Write", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, 200, "INFO"},
		{"no write at all", func(w http.ResponseWriter, r *http.Request) {}, 200, "INFO"},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) }, 409, "WARN"},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }, 503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := logOnce(t, tt.handler, httptest.NewRequest(http.MethodPost, "/api/games", nil))

			if entry["method"] != "POST" || entry["path"] != "/api/games" {
				t.Errorf("method/path = %v %v", entry["method"], entry["path"])
			}
			if entry["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", entry["status"], tt.wantStatus)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
				t.Errorf("duration_ms = %v, want >= 0", entry["duration_ms"])
			}
		})
	}
}

func TestLoggingMiddleware_UserIDFromContext(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) {}

	req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
	req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, "user-123"))
	if got := logOnce(t, ok, req)["user_id"]; got != "user-123" {
		t.Errorf("user_id = %v, want user-123", got)
	}

	anon := logOnce(t, ok, httptest.NewRequest(http.MethodGet, "/health", nil))
	if val, present := anon["user_id"]; present && val != "" {
		t.Errorf("user_id should be empty for unauthenticated request, got %v", val)
	}
}

// TestLoggingMiddleware_UserIDFromInnerIdentity はルーティング内側のIDミドルウェアで設定したユーザーIDが外側のログに出ることを検証する。
func TestLoggingMiddleware_UserIDFromInnerIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Group(func(r chi.Router) {
		r.Use(NewIdentityMiddleware(""))
		r.Post("/api/games/{id}/move", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/games/g-42/move", nil)
	req.Header.Set(UserIDHeader, "alice")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", entry["user_id"])
	}
	if entry["route"] != "/api/games/{id}/move" {
		t.Errorf("route = %v, want /api/games/{id}/move", entry["route"])
	}
	if entry["session_id"] != "g-42" {
		t.Errorf("session_id = %v, want g-42", entry["session_id"])
	}
}
