package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/features"
)

// maxSampleSize bounds an uploaded sample. A raw sensor frame is 36 KiB.
const maxSampleSize = 8 << 20

// sampleField is the multipart field carrying an uploaded sample.
const sampleField = "sample"

// isMultipart reports whether the request uploads a sample instead of asking
// for a sensor capture.
func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readSample parses the uploaded sample. The "kind" form value selects a raw
// template buffer; anything else is decoded as an image (PNG, BMP, JPEG, GIF).
func readSample(w http.ResponseWriter, r *http.Request) (biometric.Sample, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSampleSize+1<<20)
	if err := r.ParseMultipartForm(maxSampleSize); err != nil {
		return biometric.Sample{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, header, err := r.FormFile(sampleField)
	if err != nil {
		return biometric.Sample{}, fmt.Errorf("%s file is required", sampleField)
	}
	defer file.Close()

	if header.Size > maxSampleSize {
		return biometric.Sample{}, errors.New("sample too large")
	}
	data, err := io.ReadAll(io.LimitReader(file, maxSampleSize))
	if err != nil {
		return biometric.Sample{}, fmt.Errorf("reading sample: %w", err)
	}

	switch strings.ToLower(r.FormValue("kind")) {
	case string(biometric.KindTemplate):
		return biometric.Sample{Kind: biometric.KindTemplate, Data: data}, nil
	case "", string(biometric.KindImage):
		return features.DecodeImage(data)
	default:
		return biometric.Sample{}, fmt.Errorf("unknown sample kind %q", r.FormValue("kind"))
	}
}
