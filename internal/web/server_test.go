package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/fingerprint-id/internal/database/mock"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/features"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
)

func testServer(t *testing.T, token string) *Server {
	t.Helper()
	extractor, err := features.New(features.StrategyFlatten, 0)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(engine.Options{
		Extractor: extractor,
		Backend:   mock.NewMockGalleryBackend(),
		Policy:    matcher.DefaultConfig(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewServer(eng, Options{Host: "127.0.0.1", Port: 8080, APIToken: token})
}

func TestRoutes(t *testing.T) {
	router := testServer(t, "").Router()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/identities", http.StatusOK},
		{http.MethodGet, "/api/v1/identities/1", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/identities/1", http.StatusNotFound},
		{http.MethodGet, "/api/v1/stats", http.StatusOK},
		{http.MethodPost, "/api/v1/rebuild", http.StatusOK},
		{http.MethodGet, "/api/v1/directory", http.StatusOK},
		{http.MethodGet, "/api/v1/capture", http.StatusNotImplemented},
		{http.MethodPut, "/api/v1/identities/1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	router := testServer(t, "s3cret").Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health without token = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("identities without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("identities with token = %d, want 200", rec.Code)
	}
}
