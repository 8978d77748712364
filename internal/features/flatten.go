package features

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// Flatten uses the sample bytes directly, scaled to [0,1] and padded with
// zeros or cropped to the configured length. Images are first scaled down so
// the whole frame fits into the vector.
type Flatten struct {
	dim int
}

// Dim returns the output vector length.
func (f *Flatten) Dim() int { return f.dim }

// Name returns StrategyFlatten.
func (f *Flatten) Name() Strategy { return StrategyFlatten }

// Extract flattens the sample buffer.
func (f *Flatten) Extract(sample biometric.Sample) ([]float32, error) {
	if len(sample.Data) == 0 {
		return nil, biometric.NewExtractionError("empty sample buffer", nil)
	}
	pix := sample.Data
	if sample.IsImage() {
		if err := validateImage(sample); err != nil {
			return nil, err
		}
		pix = f.shrink(sample)
	}

	out := make([]float32, f.dim)
	n := min(len(pix), f.dim)
	for i := range n {
		out[i] = float32(pix[i]) / 255
	}
	if err := normalize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// shrink scales an image sample to a grid of at most dim pixels.
func (f *Flatten) shrink(sample biometric.Sample) []byte {
	w, h := imageGrid(f.dim, sample.Width, sample.Height)
	src := &image.Gray{
		Pix:    sample.Data,
		Stride: sample.Width,
		Rect:   image.Rect(0, 0, sample.Width, sample.Height),
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst.Pix
}

// imageGrid returns a w x h grid with w*h <= dim that keeps the aspect ratio
// of a width x height image as far as dim allows.
func imageGrid(dim, width, height int) (int, int) {
	h := int(math.Round(math.Sqrt(float64(dim) * float64(height) / float64(width))))
	h = max(1, min(h, dim))
	return max(1, dim/h), h
}
