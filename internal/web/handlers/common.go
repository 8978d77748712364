package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Debug().Err(err).Msg("writing response")
		}
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps a workflow error to its HTTP status.
func respondEngineError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error().Err(err).Msg("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case biometric.IsExtractionError(err), errors.Is(err, biometric.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, biometric.ErrInvalidAlias):
		return http.StatusBadRequest
	case errors.Is(err, biometric.ErrDuplicateIdentity), errors.Is(err, biometric.ErrDuplicateFeature):
		return http.StatusConflict
	case errors.Is(err, biometric.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, biometric.ErrSensorBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, biometric.ErrCaptureTimeout), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, engine.ErrNoSensor):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// auditMessage renders a non-fatal side-effect failure for the response.
func auditMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
