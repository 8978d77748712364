package biometric

import (
	"math"
	"time"
)

// SampleKind identifies the layout of a raw captured sample.
type SampleKind string

const (
	// KindTemplate is the vendor "character" buffer produced by the sensor's templating step.
	KindTemplate SampleKind = "template"
	// KindImage is a raw 8-bit grayscale image buffer, row-major.
	KindImage SampleKind = "image"
)

// Sensor image geometry of the reference reader.
const (
	SensorImageWidth  = 256
	SensorImageHeight = 144
)

// Sample is a raw captured biometric sample.
type Sample struct {
	Kind   SampleKind
	Width  int // image width in pixels (images only)
	Height int // image height in pixels (images only)
	Data   []byte
}

// IsImage reports whether the sample carries a raw grayscale image.
func (s Sample) IsImage() bool {
	return s.Kind == KindImage
}

// Record is a single enrolled gallery entry.
type Record struct {
	ID        int64
	Alias     string
	Features  []float32
	SampleRef string // handle to the stored display image, never used for matching
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Features = append([]float32(nil), r.Features...)
	return out
}

// MatchSource tells which path of the decision policy produced a match.
type MatchSource string

const (
	SourceClassifier MatchSource = "classifier"
	SourceNative     MatchSource = "native"
)

// MatchEvent is emitted to the metadata directory for every successful match.
type MatchEvent struct {
	EventID    string      `json:"event_id"`
	IdentityID int64       `json:"identity_id"`
	Alias      string      `json:"alias,omitempty"`
	Confidence float64     `json:"confidence"`
	Source     MatchSource `json:"source"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Enrollment is emitted to the metadata directory after a committed enrollment.
type Enrollment struct {
	IdentityID   int64     `json:"identity_id"`
	Alias        string    `json:"alias"`
	SampleRef    string    `json:"sample_ref,omitempty"`
	DisplayImage []byte    `json:"-"` // PNG, optional
	EnrolledAt   time.Time `json:"enrolled_at"`
}

// SameFeatures reports whether two vectors are bit-for-bit identical.
// NaN payloads and signed zeros are compared by their bit patterns.
func SameFeatures(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// ClampUnit clamps v into [0, 1].
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
