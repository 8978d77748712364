package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

func TestRespondJSON_SetsContentType(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, map[string]string{"status": "ok"})
	assertContentType(t, recorder, "application/json")
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusNoContent, nil)

	assertStatusCode(t, recorder, http.StatusNoContent)
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "bad input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "bad input")
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"extraction", biometric.NewExtractionError("empty sample buffer", nil), http.StatusUnprocessableEntity},
		{"dimension", fmt.Errorf("append: %w", biometric.ErrDimensionMismatch), http.StatusUnprocessableEntity},
		{"alias", biometric.ErrInvalidAlias, http.StatusBadRequest},
		{"duplicate id", fmt.Errorf("%w: 3", biometric.ErrDuplicateIdentity), http.StatusConflict},
		{"duplicate feature", biometric.ErrDuplicateFeature, http.StatusConflict},
		{"not found", biometric.ErrNotFound, http.StatusNotFound},
		{"busy", biometric.ErrSensorBusy, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("%w: %w", biometric.ErrCaptureTimeout, context.DeadlineExceeded), http.StatusRequestTimeout},
		{"cancelled", context.Canceled, http.StatusRequestTimeout},
		{"no sensor", engine.ErrNoSensor, http.StatusNotImplemented},
		{"persistence", &biometric.PersistenceError{Op: "persist", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.want {
				t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRespondEngineError_RetryAfterWhenBusy(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondEngineError(recorder, biometric.ErrSensorBusy)

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	if recorder.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Errorf("unexpected body %q", recorder.Body.String())
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nINFO forged"); got != "aliceINFO forged" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}
