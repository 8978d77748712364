// Package engine runs the enrollment, matching and deletion workflows over
// one deployment's gallery and classifier.
//
// An Engine owns all mutable state. Gallery and classifier sit behind a single
// RWMutex: enroll, delete and rebuild are writers (retraining counts as a
// write), match and list are readers. Sensor captures happen before the lock
// is taken so an operator fumbling with the reader never blocks other work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/classifier"
	"github.com/kozaktomas/fingerprint-id/internal/database"
	"github.com/kozaktomas/fingerprint-id/internal/features"
	"github.com/kozaktomas/fingerprint-id/internal/gallery"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
	"github.com/kozaktomas/fingerprint-id/internal/samples"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

// ErrNoSensor is returned by capture-driven operations when the engine was
// built without a sensor.
var ErrNoSensor = errors.New("no sensor configured")

// Options wires an Engine. Extractor and Backend are required.
type Options struct {
	Extractor  features.Extractor
	Backend    database.GalleryBackend
	Classifier classifier.Options
	Policy     matcher.Config

	// Sensor is optional; without it only the *Sample operations work and
	// the native fallback is unavailable.
	Sensor *sensor.Guard
	// CaptureKind overrides the sample kind requested from the sensor.
	// By default the gradient strategy captures images, flatten templates.
	CaptureKind biometric.SampleKind

	Directory database.Directory // defaults to database.NopDirectory
	Samples   samples.Store      // defaults to samples.Nop

	Now func() time.Time
}

// Engine is one deployment's enrollment and matching core.
type Engine struct {
	mu      sync.RWMutex
	gallery *gallery.Store
	clf     classifier.Classifier

	extractor   features.Extractor
	clfOpts     classifier.Options
	policy      *matcher.Policy
	guard       *sensor.Guard
	captureKind biometric.SampleKind
	directory   database.Directory
	samples     samples.Store
	now         func() time.Time
}

// New validates opts and returns an engine with an empty gallery. Call Load
// to restore the committed state.
func New(opts Options) (*Engine, error) {
	if opts.Extractor == nil {
		return nil, errors.New("engine: extractor is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("engine: gallery backend is required")
	}
	policy, err := matcher.New(opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	clf, err := classifier.New(opts.Classifier)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		gallery:     gallery.New(opts.Backend, string(opts.Extractor.Name()), opts.Extractor.Dim()),
		clf:         clf,
		extractor:   opts.Extractor,
		clfOpts:     opts.Classifier,
		policy:      policy,
		guard:       opts.Sensor,
		captureKind: opts.CaptureKind,
		directory:   opts.Directory,
		samples:     opts.Samples,
		now:         opts.Now,
	}
	if e.captureKind == "" {
		e.captureKind = biometric.KindTemplate
		if opts.Extractor.Name() == features.StrategyGradient {
			e.captureKind = biometric.KindImage
		}
	}
	if e.directory == nil {
		e.directory = database.NopDirectory{}
	}
	if e.samples == nil {
		e.samples = samples.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Load restores the committed gallery. The stored classifier artifact is used
// when it is of the configured kind and covers exactly the loaded records;
// otherwise the classifier is retrained from the gallery.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.gallery.Load(ctx)
	if err != nil {
		return err
	}

	clf, restored, err := e.restoreClassifier(snap)
	if err != nil {
		return err
	}
	e.clf = clf

	log.Info().
		Int("records", e.gallery.Len()).
		Str("classifier", clf.Kind()).
		Stringer("state", clf.State()).
		Bool("restored", restored).
		Msg("gallery loaded")
	return nil
}

func (e *Engine) restoreClassifier(snap *database.GallerySnapshot) (classifier.Classifier, bool, error) {
	records := e.gallery.All()

	if snap != nil && len(records) > 0 && snap.Classifier.Data != nil && snap.Classifier.Kind == e.kind() {
		clf, err := classifier.New(e.clfOpts)
		if err != nil {
			return nil, false, err
		}
		err = clf.UnmarshalBinary(snap.Classifier.Data)
		if err == nil && coversExactly(clf, records) {
			return clf, true, nil
		}
		log.Warn().Err(err).Msg("stored classifier does not match the gallery, retraining")
	}

	clf, err := e.train(records)
	return clf, false, err
}

// coversExactly reports whether clf was trained on exactly records.
func coversExactly(clf classifier.Classifier, records []biometric.Record) bool {
	if clf.State() != classifier.Trained || clf.Len() != len(records) {
		return false
	}
	for _, r := range records {
		if !clf.Contains(r.ID) {
			return false
		}
	}
	return true
}

// train builds a fresh classifier on records. An empty slice yields an
// Empty classifier.
func (e *Engine) train(records []biometric.Record) (classifier.Classifier, error) {
	clf, err := classifier.New(e.clfOpts)
	if err != nil {
		return nil, err
	}
	if err := clf.Retrain(records); err != nil {
		return nil, fmt.Errorf("retrain classifier: %w", err)
	}
	return clf, nil
}

func (e *Engine) kind() string {
	if e.clfOpts.Kind == "" {
		return classifier.KindExact
	}
	return e.clfOpts.Kind
}

// classifierState serializes clf for persistence.
func classifierState(clf classifier.Classifier) (database.ClassifierState, error) {
	st := database.ClassifierState{Kind: clf.Kind()}
	if clf.State() == classifier.Empty {
		return st, nil
	}
	data, err := clf.MarshalBinary()
	if err != nil {
		return st, fmt.Errorf("serialize classifier: %w", err)
	}
	st.Data = data
	return st, nil
}

// capture takes one sample from the sensor.
func (e *Engine) capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	if e.guard == nil {
		return biometric.Sample{}, ErrNoSensor
	}
	return e.guard.Capture(ctx, kind)
}

// fallback returns the native matcher, or a nil interface without a sensor.
func (e *Engine) fallback() matcher.Fallback {
	if e.guard == nil {
		return nil
	}
	return e.guard
}

// Stats describes the engine state.
type Stats struct {
	Records           int     `json:"records"`
	ClassifierKind    string  `json:"classifier_kind"`
	ClassifierState   string  `json:"classifier_state"`
	Strategy          string  `json:"strategy"`
	Dim               int     `json:"dim"`
	DistanceThreshold float64 `json:"distance_threshold"`
	AmbiguityMargin   float64 `json:"ambiguity_margin"`
	NativeFallback    bool    `json:"native_fallback"`
}

// Stats returns a consistent view of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg := e.policy.Config()
	return Stats{
		Records:           e.gallery.Len(),
		ClassifierKind:    e.clf.Kind(),
		ClassifierState:   e.clf.State().String(),
		Strategy:          string(e.extractor.Name()),
		Dim:               e.extractor.Dim(),
		DistanceThreshold: cfg.DistanceThreshold,
		AmbiguityMargin:   cfg.AmbiguityMargin,
		NativeFallback:    e.guard != nil && e.guard.HasNativeMatcher(),
	}
}

// ClassifierState reports whether the classifier is Empty or Trained.
func (e *Engine) ClassifierState() classifier.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clf.State()
}

// CaptureImage captures a raw image from the sensor and returns it as PNG.
func (e *Engine) CaptureImage(ctx context.Context) ([]byte, error) {
	sample, err := e.capture(ctx, biometric.KindImage)
	if err != nil {
		return nil, err
	}
	return features.EncodePNG(sample)
}
