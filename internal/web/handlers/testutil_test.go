package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database/mock"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/features"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
	sensormock "github.com/kozaktomas/fingerprint-id/internal/sensor/mock"
)

// testEngine creates an engine over in-memory collaborators. A nil sensor
// builds an engine without a reader.
func testEngine(t *testing.T, s *sensormock.Sensor, timeout time.Duration) *engine.Engine {
	t.Helper()
	extractor, err := features.New(features.StrategyFlatten, 0)
	if err != nil {
		t.Fatal(err)
	}
	opts := engine.Options{
		Extractor: extractor,
		Backend:   mock.NewMockGalleryBackend(),
		Policy:    matcher.Config{DistanceThreshold: 0.2},
		Directory: mock.NewMockDirectory(),
	}
	if s != nil {
		opts.Sensor = sensor.NewGuard(s, sensor.BusyReject, timeout)
	}
	eng, err := engine.New(opts)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	if err := eng.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return eng
}

// enrollTemplate enrolls mock template seed directly through the engine.
func enrollTemplate(t *testing.T, eng *engine.Engine, id int64, alias string, seed int) {
	t.Helper()
	req := engine.EnrollRequest{ID: id, Alias: alias}
	if _, err := eng.EnrollSample(context.Background(), req, sensormock.Template(seed)); err != nil {
		t.Fatalf("EnrollSample() error = %v", err)
	}
}

// multipartRequest builds an upload of sample with the given form fields.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, sample []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if sample != nil {
		fw, err := mw.CreateFormFile(sampleField, "probe.bin")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(sample); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func templateUpload(t *testing.T, path string, seed int, fields map[string]string) *http.Request {
	t.Helper()
	if fields == nil {
		fields = map[string]string{}
	}
	fields["kind"] = string(biometric.KindTemplate)
	return multipartRequest(t, http.MethodPost, path, fields, sensormock.Template(seed).Data)
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses the JSON response body into the target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
