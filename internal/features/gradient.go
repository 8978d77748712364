package features

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// Gradient is a texture descriptor tolerant to small positional shifts:
// resize to side x side, equalize the histogram, take the Sobel gradient
// magnitude and flatten it.
type Gradient struct {
	side int
}

// Dim returns the output vector length.
func (g *Gradient) Dim() int { return g.side * g.side }

// Name returns StrategyGradient.
func (g *Gradient) Name() Strategy { return StrategyGradient }

// Extract computes the gradient descriptor of an image sample.
func (g *Gradient) Extract(sample biometric.Sample) ([]float32, error) {
	if !sample.IsImage() {
		return nil, biometric.NewExtractionError("gradient features need an image sample, got "+string(sample.Kind), nil)
	}
	if err := validateImage(sample); err != nil {
		return nil, err
	}

	src := &image.Gray{
		Pix:    sample.Data,
		Stride: sample.Width,
		Rect:   image.Rect(0, 0, sample.Width, sample.Height),
	}
	dst := image.NewGray(image.Rect(0, 0, g.side, g.side))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	equalizeHistogram(dst.Pix)
	mag := sobelMagnitude(dst.Pix, g.side, g.side)

	out := make([]float32, len(mag))
	for i, m := range mag {
		out[i] = float32(m) / 255
	}
	if err := normalize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// equalizeHistogram spreads the intensity distribution over the full 0..255
// range in place.
func equalizeHistogram(pix []uint8) {
	var hist [256]int
	for _, p := range pix {
		hist[p]++
	}

	total := len(pix)
	cdfMin := 0
	for _, h := range hist {
		if h != 0 {
			cdfMin = h
			break
		}
	}
	if total == cdfMin {
		return // single intensity
	}

	var lut [256]uint8
	cdf := 0
	for i, h := range hist {
		cdf += h
		v := math.Round(float64(cdf-cdfMin) * 255 / float64(total-cdfMin))
		lut[i] = uint8(max(0, min(255, v)))
	}
	for i, p := range pix {
		pix[i] = lut[p]
	}
}

// sobelMagnitude applies 3x3 Sobel kernels with reflect-101 borders and
// returns the gradient magnitude saturated to 0..255.
func sobelMagnitude(pix []uint8, w, h int) []uint8 {
	at := func(x, y int) float64 {
		return float64(pix[reflect101(y, h)*w+reflect101(x, w)])
	}

	out := make([]uint8, w*h)
	for y := range h {
		for x := range w {
			gx := -at(x-1, y-1) + at(x+1, y-1) -
				2*at(x-1, y) + 2*at(x+1, y) -
				at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			m := math.Round(math.Hypot(gx, gy))
			out[y*w+x] = uint8(min(255, m))
		}
	}
	return out
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - i - 2
	}
	return i
}
