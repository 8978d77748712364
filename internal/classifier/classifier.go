// Package classifier provides nearest-neighbor models trained on the gallery.
//
// Models hold no online update path: Retrain rebuilds from the full gallery,
// which costs O(gallery size) per enrollment or deletion. That is fine for a
// few thousand identities; larger galleries need an index with real
// insert/delete behind the same interface.
package classifier

import (
	"fmt"
	"math"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// State is the classifier lifecycle state.
type State int

const (
	Empty State = iota
	Trained
)

func (s State) String() string {
	if s == Trained {
		return "TRAINED"
	}
	return "EMPTY"
}

// Kinds of classifier.
const (
	KindExact = "exact"
	KindHNSW  = "hnsw"
)

// Prediction is the result of a nearest-neighbor query.
type Prediction struct {
	ID         int64
	Distance   float64 // normalized to [0,1], lower is more similar
	Confidence float64 // 1 - Distance, clamped to [0,1]

	// Runner-up is the nearest record of another identity, if any.
	HasRunnerUp      bool
	RunnerUpID       int64
	RunnerUpDistance float64
}

// Classifier is a model trained on the gallery contents.
type Classifier interface {
	// Retrain rebuilds the model from scratch. An empty slice resets to Empty.
	Retrain(records []biometric.Record) error
	// Classify returns the nearest identity. It fails with
	// biometric.ErrEmptyGallery when nothing is trained.
	Classify(vec []float32) (Prediction, error)
	State() State
	Len() int
	// Contains reports whether id is part of the trained set.
	Contains(id int64) bool
	Kind() string
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Options tune the classifier.
type Options struct {
	Kind string
	// HNSW parameters, ignored by the exact classifier.
	MaxNeighbors int
	EfSearch     int
}

// New returns an untrained classifier of the configured kind.
func New(opts Options) (Classifier, error) {
	switch opts.Kind {
	case KindExact, "":
		return NewExact(), nil
	case KindHNSW:
		return NewHNSW(opts.MaxNeighbors, opts.EfSearch), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", opts.Kind)
	}
}

// NormalizedDistance is the euclidean distance of two unit vectors scaled
// from [0,2] to [0,1].
func NormalizedDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0 // maximum distance for invalid input
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return biometric.ClampUnit(math.Sqrt(sum) / 2)
}

// neighbor is a scored candidate.
type neighbor struct {
	id       int64
	distance float64
}

// predictionFrom builds a Prediction from candidates sorted by distance.
func predictionFrom(cands []neighbor) Prediction {
	best := cands[0]
	p := Prediction{
		ID:         best.id,
		Distance:   best.distance,
		Confidence: biometric.ClampUnit(1 - best.distance),
	}
	for _, c := range cands[1:] {
		if c.id != best.id {
			p.HasRunnerUp = true
			p.RunnerUpID = c.id
			p.RunnerUpDistance = c.distance
			break
		}
	}
	return p
}
