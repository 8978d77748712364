// Package features turns raw captured samples into fixed-length feature vectors.
package features

import (
	"fmt"
	"math"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// Strategy names an extraction strategy.
type Strategy string

const (
	// StrategyFlatten flattens the raw sample buffer.
	StrategyFlatten Strategy = "flatten"
	// StrategyGradient computes a Sobel gradient-magnitude texture descriptor.
	StrategyGradient Strategy = "gradient"
)

// Default output sizes per strategy.
const (
	DefaultFlattenDim  = 512       // vendor character buffer size
	DefaultGradientDim = 128 * 128 // 128x128 gradient map
)

// Extractor converts a raw sample into a feature vector of fixed length.
// Implementations are deterministic and free of side effects.
type Extractor interface {
	Extract(sample biometric.Sample) ([]float32, error)
	// Dim is the length of every vector returned by Extract.
	Dim() int
	// Name identifies the strategy; it is recorded with persisted state.
	Name() Strategy
}

// New returns the extractor for the given strategy. A dim of zero selects the
// strategy default.
func New(strategy Strategy, dim int) (Extractor, error) {
	if dim < 0 {
		return nil, fmt.Errorf("invalid feature dimension %d", dim)
	}
	switch strategy {
	case StrategyFlatten, "":
		if dim == 0 {
			dim = DefaultFlattenDim
		}
		return &Flatten{dim: dim}, nil
	case StrategyGradient:
		if dim == 0 {
			dim = DefaultGradientDim
		}
		side := int(math.Sqrt(float64(dim)))
		if side*side != dim || side < 3 {
			return nil, fmt.Errorf("gradient dimension %d must be a square of a side >= 3", dim)
		}
		return &Gradient{side: side}, nil
	default:
		return nil, fmt.Errorf("unknown feature strategy %q", strategy)
	}
}

// normalize scales v to unit L2 norm in place. A vector without energy cannot
// be compared by distance and is rejected.
func normalize(v []float32) error {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return biometric.NewExtractionError("sample carries no signal", nil)
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return nil
}

// validateImage checks that an image sample's geometry matches its buffer.
func validateImage(s biometric.Sample) error {
	if s.Width <= 0 || s.Height <= 0 {
		return biometric.NewExtractionError(fmt.Sprintf("invalid image size %dx%d", s.Width, s.Height), nil)
	}
	if len(s.Data) != s.Width*s.Height {
		return biometric.NewExtractionError(
			fmt.Sprintf("image buffer holds %d bytes, %dx%d needs %d", len(s.Data), s.Width, s.Height, s.Width*s.Height), nil)
	}
	return nil
}
