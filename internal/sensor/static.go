package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/features"
)

// Static always returns the same sample. The CLI uses it for --sample files.
type Static struct {
	Sample biometric.Sample
}

// Capture returns the fixed sample.
func (s *Static) Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	if err := ctx.Err(); err != nil {
		return biometric.Sample{}, err
	}
	return s.Sample, nil
}

// templateExt marks raw vendor template dumps.
const templateExt = ".tpl"

// LoadSampleFile reads a sample from disk. Files ending in .tpl are raw
// template buffers; anything else is decoded as an image.
func LoadSampleFile(path string) (biometric.Sample, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return biometric.Sample{}, fmt.Errorf("reading sample %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), templateExt) {
		return biometric.Sample{Kind: biometric.KindTemplate, Data: data}, nil
	}
	return features.DecodeImage(data)
}
