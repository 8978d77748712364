package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/classifier"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

// DefaultDistanceThreshold is the reference acceptance threshold in
// normalized feature space. It is a heuristic, not a calibrated value.
const DefaultDistanceThreshold = 0.5

// Config tunes the decision.
type Config struct {
	// DistanceThreshold accepts a classifier hit when distance < threshold.
	DistanceThreshold float64
	// AmbiguityMargin reports Ambiguous when another identity is within this
	// distance of the best hit. Zero means only exact ties are ambiguous.
	AmbiguityMargin float64
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{DistanceThreshold: DefaultDistanceThreshold}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.DistanceThreshold <= 0 || c.DistanceThreshold > 1 {
		return fmt.Errorf("distance threshold must be in (0, 1], got %v", c.DistanceThreshold)
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= c.DistanceThreshold {
		return fmt.Errorf("ambiguity margin must be in [0, threshold), got %v", c.AmbiguityMargin)
	}
	return nil
}

// Fallback is the sensor's native matcher. ok is false when the sensor has none.
// *sensor.Guard satisfies it.
type Fallback interface {
	NativeMatch(ctx context.Context, sample biometric.Sample) (res sensor.NativeResult, ok bool, err error)
}

// AliasFunc resolves a display alias for an identity. ok is false when the
// identity is not enrolled.
type AliasFunc func(id int64) (string, bool)

// Probe is one match query.
type Probe struct {
	Features []float32
	Sample   biometric.Sample // handed to the native matcher
}

// Policy is the match decision policy.
type Policy struct {
	cfg Config
}

// New creates a policy.
func New(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

// Config returns the active configuration.
func (p *Policy) Config() Config { return p.cfg }

// Decide runs the classifier and, when it is empty or not confident, the
// native fallback. fallback may be nil.
//
// A confident classifier hit always wins over the fallback. An empty
// classifier without a fallback to ask yields NoMatch. Hits naming an id that
// aliases does not resolve are not part of the gallery and yield NoMatch.
func (p *Policy) Decide(ctx context.Context, clf classifier.Classifier, probe Probe, fallback Fallback, aliases AliasFunc) (Verdict, error) {
	if aliases == nil {
		aliases = func(int64) (string, bool) { return "", true }
	}

	var (
		pred     classifier.Prediction
		havePred bool
	)
	if clf != nil && clf.State() == classifier.Trained {
		var err error
		pred, err = clf.Classify(probe.Features)
		switch {
		case errors.Is(err, biometric.ErrEmptyGallery):
			// raced to empty; same as the untrained path
		case err != nil:
			return nil, fmt.Errorf("classify: %w", err)
		default:
			havePred = true
		}
	}

	if havePred && pred.Distance < p.cfg.DistanceThreshold {
		if amb, ok := p.ambiguous(pred, aliases); ok {
			return p.breakTie(ctx, amb, probe, fallback)
		}
		alias, ok := aliases(pred.ID)
		if !ok {
			// removed from the gallery after the classifier was read
			log.Debug().Int64("id", pred.ID).Msg("classifier hit for unknown identity")
			return NoMatch{BestDistance: pred.Distance, HasBestDistance: true}, nil
		}
		log.Debug().Int64("id", pred.ID).Float64("distance", pred.Distance).Msg("classifier match")
		return Matched{
			IdentityID: pred.ID,
			Alias:      alias,
			Confidence: pred.Confidence,
			Distance:   pred.Distance,
			Source:     biometric.SourceClassifier,
		}, nil
	}

	noMatch := NoMatch{BestDistance: pred.Distance, HasBestDistance: havePred}

	res, _, err := p.native(ctx, probe, fallback)
	if err != nil {
		return nil, err
	}
	if res.Found {
		alias, ok := aliases(res.ID)
		if !ok {
			// stale sensor slot of a deleted identity
			log.Debug().Int64("id", res.ID).Msg("native hit for unknown identity")
			return noMatch, nil
		}
		log.Debug().Int64("id", res.ID).Float64("confidence", res.Confidence).Msg("native match")
		return Matched{
			IdentityID: res.ID,
			Alias:      alias,
			Confidence: biometric.ClampUnit(res.Confidence),
			Source:     biometric.SourceNative,
		}, nil
	}
	return noMatch, nil
}

// ambiguous reports whether a different identity lies within the margin of
// the best hit and is itself under the threshold.
func (p *Policy) ambiguous(pred classifier.Prediction, aliases AliasFunc) (Ambiguous, bool) {
	if !pred.HasRunnerUp || pred.RunnerUpID == pred.ID {
		return Ambiguous{}, false
	}
	if pred.RunnerUpDistance >= p.cfg.DistanceThreshold {
		return Ambiguous{}, false
	}
	if pred.RunnerUpDistance-pred.Distance > p.cfg.AmbiguityMargin {
		return Ambiguous{}, false
	}

	best, _ := aliases(pred.ID)
	second, _ := aliases(pred.RunnerUpID)
	return Ambiguous{Candidates: []Candidate{
		{IdentityID: pred.ID, Alias: best, Distance: pred.Distance, Confidence: pred.Confidence},
		{
			IdentityID: pred.RunnerUpID,
			Alias:      second,
			Distance:   pred.RunnerUpDistance,
			Confidence: biometric.ClampUnit(1 - pred.RunnerUpDistance),
		},
	}}, true
}

// breakTie lets the native matcher pick among ambiguous candidates. A native
// answer naming someone outside the candidates leaves the verdict ambiguous.
func (p *Policy) breakTie(ctx context.Context, amb Ambiguous, probe Probe, fallback Fallback) (Verdict, error) {
	res, _, err := p.native(ctx, probe, fallback)
	if err != nil {
		return nil, err
	}
	if res.Found {
		for _, c := range amb.Candidates {
			if c.IdentityID == res.ID {
				return Matched{
					IdentityID: c.IdentityID,
					Alias:      c.Alias,
					Confidence: biometric.ClampUnit(res.Confidence),
					Distance:   c.Distance,
					Source:     biometric.SourceNative,
				}, nil
			}
		}
	}
	log.Debug().Int("candidates", len(amb.Candidates)).Msg("ambiguous match")
	return amb, nil
}

func (p *Policy) native(ctx context.Context, probe Probe, fallback Fallback) (sensor.NativeResult, bool, error) {
	if fallback == nil {
		return sensor.NativeResult{}, false, nil
	}
	res, ok, err := fallback.NativeMatch(ctx, probe.Sample)
	if err != nil {
		return sensor.NativeResult{}, ok, fmt.Errorf("native fallback: %w", err)
	}
	return res, ok, nil
}
