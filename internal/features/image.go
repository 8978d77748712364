package features

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// MaxImagePixels bounds the canvas of decoded images: sixteen frames of the
// reference sensor.
const MaxImagePixels = 16 * biometric.SensorImageWidth * biometric.SensorImageHeight

// DecodeImage decodes an encoded image (PNG, BMP, JPEG, GIF) into a raw
// grayscale image sample. Images larger than MaxImagePixels are rejected
// before any pixel data is decoded.
func DecodeImage(data []byte) (biometric.Sample, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return biometric.Sample{}, biometric.NewExtractionError("undecodable image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return biometric.Sample{}, biometric.NewExtractionError(
			fmt.Sprintf("image size %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxImagePixels), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return biometric.Sample{}, biometric.NewExtractionError("undecodable image", err)
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	return biometric.Sample{
		Kind:   biometric.KindImage,
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   gray.Pix,
	}, nil
}

// EncodePNG encodes an image sample as a grayscale PNG for audit display.
func EncodePNG(sample biometric.Sample) ([]byte, error) {
	if err := validateImage(sample); err != nil {
		return nil, err
	}
	img := &image.Gray{
		Pix:    sample.Data,
		Stride: sample.Width,
		Rect:   image.Rect(0, 0, sample.Width, sample.Height),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
