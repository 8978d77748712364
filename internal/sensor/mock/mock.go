// Package mock provides an in-memory sensor for tests and demos.
package mock

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

// ErrNoSample is returned by Capture when the queue is empty and Block is false.
var ErrNoSample = errors.New("mock sensor: no sample queued")

// Sensor is a scripted reader. Queued samples are returned in order; native
// slots hold exact copies of stored templates.
type Sensor struct {
	mu      sync.Mutex
	queue   []biometric.Sample
	slots   map[int64][]byte
	started chan struct{}
	matched chan struct{}

	// Block makes Capture wait for ctx when the queue is empty, simulating an
	// operator who never presents a finger.
	Block bool

	// NativeGate, when set, holds NativeMatch until it is closed or ctx ends.
	NativeGate chan struct{}

	// Error injection
	CaptureError error
	MatchError   error
	StoreError   error
	DeleteError  error

	// Captures counts Capture calls.
	Captures int
}

// NewSensor creates an empty mock sensor.
func NewSensor() *Sensor {
	return &Sensor{
		slots:   make(map[int64][]byte),
		started: make(chan struct{}, 16),
		matched: make(chan struct{}, 16),
	}
}

// Queue appends samples to be returned by subsequent captures.
func (s *Sensor) Queue(samples ...biometric.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, samples...)
}

// Started receives once every time Capture is entered.
func (s *Sensor) Started() <-chan struct{} {
	return s.started
}

// Capture pops the next queued sample.
func (s *Sensor) Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	s.mu.Lock()
	s.Captures++
	select {
	case s.started <- struct{}{}:
	default:
	}
	if s.CaptureError != nil {
		err := s.CaptureError
		s.mu.Unlock()
		return biometric.Sample{}, err
	}
	if len(s.queue) > 0 {
		sample := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return sample, nil
	}
	block := s.Block
	s.mu.Unlock()

	if !block {
		return biometric.Sample{}, ErrNoSample
	}
	<-ctx.Done()
	return biometric.Sample{}, ctx.Err()
}

// MatchStarted receives once every time NativeMatch is entered.
func (s *Sensor) MatchStarted() <-chan struct{} {
	return s.matched
}

// NativeMatch finds a slot holding exactly the sample bytes.
func (s *Sensor) NativeMatch(ctx context.Context, sample biometric.Sample) (sensor.NativeResult, error) {
	select {
	case s.matched <- struct{}{}:
	default:
	}
	if s.NativeGate != nil {
		select {
		case <-s.NativeGate:
		case <-ctx.Done():
			return sensor.NativeResult{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MatchError != nil {
		return sensor.NativeResult{}, s.MatchError
	}
	for id, data := range s.slots {
		if bytes.Equal(data, sample.Data) {
			return sensor.NativeResult{Found: true, ID: id, Confidence: 1}, nil
		}
	}
	return sensor.NativeResult{}, nil
}

// StoreNative writes a copy of the sample into slot id.
func (s *Sensor) StoreNative(_ context.Context, id int64, sample biometric.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StoreError != nil {
		return s.StoreError
	}
	s.slots[id] = append([]byte(nil), sample.Data...)
	return nil
}

// DeleteNative clears slot id. Clearing an empty slot is not an error.
func (s *Sensor) DeleteNative(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteError != nil {
		return s.DeleteError
	}
	delete(s.slots, id)
	return nil
}

// HasSlot reports whether slot id is occupied.
func (s *Sensor) HasSlot(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[id]
	return ok
}

// CaptureOnly hides the native capabilities of a sensor.
type CaptureOnly struct {
	S *Sensor
}

// Capture delegates to the wrapped sensor.
func (c CaptureOnly) Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	return c.S.Capture(ctx, kind)
}

// RidgeImage renders a synthetic fingerprint-like ridge pattern at the
// reference sensor geometry. Different seeds give clearly different images.
func RidgeImage(seed int) biometric.Sample {
	w, h := biometric.SensorImageWidth, biometric.SensorImageHeight
	period := 6 + float64(seed%7)
	angle := float64(seed) * 0.37
	phase := float64(seed) * 0.9
	cx, cy := float64(w)/2, float64(h)/2
	dx, dy := math.Cos(angle), math.Sin(angle)

	data := make([]byte, w*h)
	for y := range h {
		for x := range w {
			fx, fy := float64(x)-cx, float64(y)-cy
			// bend the ridges around a core point
			r := math.Hypot(fx, fy)
			v := math.Sin(2*math.Pi*(fx*dx+fy*dy+0.02*r*r/float64(w))/period + phase)
			data[y*w+x] = uint8(127.5 + 127.5*v)
		}
	}
	return biometric.Sample{Kind: biometric.KindImage, Width: w, Height: h, Data: data}
}

// Template returns a deterministic template buffer for seed.
func Template(seed int) biometric.Sample {
	data := make([]byte, 512)
	x := uint32(seed)*2654435761 + 1
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}
	return biometric.Sample{Kind: biometric.KindTemplate, Data: data}
}
