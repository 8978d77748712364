// Package matcher decides whether a probe belongs to an enrolled identity.
//
// The decision combines the learned classifier with the sensor's optional
// native matcher. The classifier is consulted first; the native matcher only
// answers when the classifier is empty or not confident.
package matcher

import "github.com/kozaktomas/fingerprint-id/internal/biometric"

// Outcome names a verdict variant on the wire.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Verdict is one of Matched, NoMatch or Ambiguous.
type Verdict interface {
	Outcome() Outcome
	sealed()
}

// Matched is a confident identification.
type Matched struct {
	IdentityID int64
	Alias      string
	Confidence float64
	// Distance is the classifier distance; zero for native matches.
	Distance float64
	Source   biometric.MatchSource
}

// NoMatch means neither path identified the probe.
type NoMatch struct {
	// BestDistance is the nearest classifier distance, when one was computed.
	BestDistance    float64
	HasBestDistance bool
}

// Candidate is one of the identities an ambiguous probe is close to.
type Candidate struct {
	IdentityID int64
	Alias      string
	Distance   float64
	Confidence float64
}

// Ambiguous means several identities are equally close under the threshold.
type Ambiguous struct {
	Candidates []Candidate
}

func (Matched) Outcome() Outcome   { return OutcomeMatched }
func (NoMatch) Outcome() Outcome   { return OutcomeNoMatch }
func (Ambiguous) Outcome() Outcome { return OutcomeAmbiguous }

func (Matched) sealed()   {}
func (NoMatch) sealed()   {}
func (Ambiguous) sealed() {}
