package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
)

// MatchResult is the outcome of one identification attempt.
type MatchResult struct {
	Verdict matcher.Verdict
	// Event is set for Matched verdicts.
	Event *biometric.MatchEvent
	// AuditErr reports a failed directory write; the verdict stands.
	AuditErr error
}

// Match captures a probe from the sensor and identifies it.
func (e *Engine) Match(ctx context.Context) (MatchResult, error) {
	sample, err := e.capture(ctx, e.captureKind)
	if err != nil {
		return MatchResult{}, err
	}
	return e.MatchSample(ctx, sample)
}

// MatchSample identifies an already captured probe. It never mutates the
// gallery or the classifier.
func (e *Engine) MatchSample(ctx context.Context, sample biometric.Sample) (MatchResult, error) {
	vec, err := e.extractor.Extract(sample)
	if err != nil {
		return MatchResult{}, err
	}

	verdict, err := e.decide(ctx, matcher.Probe{Features: vec, Sample: sample})
	if err != nil {
		return MatchResult{}, err
	}

	res := MatchResult{Verdict: verdict}
	m, ok := verdict.(matcher.Matched)
	if !ok {
		log.Info().Str("outcome", string(verdict.Outcome())).Msg("probe not identified")
		return res, nil
	}

	ev := biometric.MatchEvent{
		EventID:    uuid.NewString(),
		IdentityID: m.IdentityID,
		Alias:      m.Alias,
		Confidence: m.Confidence,
		Source:     m.Source,
		Timestamp:  e.now().UTC(),
	}
	res.Event = &ev
	if err := e.directory.RecordMatch(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", ev.EventID).Msg("directory rejected match event")
		res.AuditErr = fmt.Errorf("directory: %w", err)
	}

	log.Info().
		Int64("id", m.IdentityID).
		Float64("confidence", m.Confidence).
		Str("source", string(m.Source)).
		Msg("probe identified")
	return res, nil
}

// decide runs the policy against the live classifier. Committed classifiers
// are never modified, only replaced, so the policy can use the one read here
// after the lock is released; the sensor fallback may take up to the capture
// timeout and must not hold up writers. Aliases are resolved against the
// gallery at answer time, so an identity deleted meanwhile is not matched.
func (e *Engine) decide(ctx context.Context, probe matcher.Probe) (matcher.Verdict, error) {
	e.mu.RLock()
	clf := e.clf
	e.mu.RUnlock()

	aliases := func(id int64) (string, bool) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		rec, ok := e.gallery.Get(id)
		return rec.Alias, ok
	}
	return e.policy.Decide(ctx, clf, probe, e.fallback(), aliases)
}
