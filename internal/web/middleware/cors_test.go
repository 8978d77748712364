package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsLocalhostOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"https://localhost:8443", true},
		{"http://127.0.0.1:3000", true},
		{"http://[::1]:3000", true},
		{"http://localhost.evil.com", false},
		{"https://example.com", false},
		{"file://localhost", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := isLocalhostOrigin(tc.origin); got != tc.want {
			t.Errorf("isLocalhostOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS([]string{" https://kiosk.example.com/ "})(next)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"configured origin", http.MethodGet, "https://kiosk.example.com", "https://kiosk.example.com", http.StatusTeapot},
		{"localhost", http.MethodPost, "http://localhost:5173", "http://localhost:5173", http.StatusTeapot},
		{"foreign origin", http.MethodGet, "https://evil.example.com", "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "https://kiosk.example.com", "https://kiosk.example.com", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/match", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"Content-Security-Policy", "X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}
