package matcher

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/classifier"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

func unit(v ...float32) []float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(s))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] / n
	}
	return out
}

type fakeFallback struct {
	res   sensor.NativeResult
	none  bool // sensor without native matcher
	err   error
	calls int
}

func (f *fakeFallback) NativeMatch(context.Context, biometric.Sample) (sensor.NativeResult, bool, error) {
	f.calls++
	if f.none {
		return sensor.NativeResult{}, false, nil
	}
	return f.res, true, f.err
}

var aliases = AliasFunc(func(id int64) (string, bool) {
	names := map[int64]string{1: "alice", 2: "bob", 3: "carol"}
	n, ok := names[id]
	return n, ok
})

func trained(t *testing.T, recs ...biometric.Record) classifier.Classifier {
	t.Helper()
	c := classifier.NewExact()
	if err := c.Retrain(recs); err != nil {
		t.Fatalf("Retrain() error = %v", err)
	}
	return c
}

func newPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero threshold", Config{DistanceThreshold: 0}, true},
		{"threshold above one", Config{DistanceThreshold: 1.1}, true},
		{"negative margin", Config{DistanceThreshold: 0.5, AmbiguityMargin: -0.1}, true},
		{"margin at threshold", Config{DistanceThreshold: 0.5, AmbiguityMargin: 0.5}, true},
		{"margin", Config{DistanceThreshold: 0.5, AmbiguityMargin: 0.05}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecide_ClassifierMatch(t *testing.T) {
	clf := trained(t,
		biometric.Record{ID: 1, Features: unit(1, 0, 0)},
		biometric.Record{ID: 2, Features: unit(0, 1, 0)},
	)
	fb := &fakeFallback{res: sensor.NativeResult{Found: true, ID: 2, Confidence: 0.9}}
	p := newPolicy(t, DefaultConfig())

	v, err := p.Decide(context.Background(), clf, Probe{Features: unit(1, 0, 0)}, fb, aliases)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	m, ok := v.(Matched)
	if !ok {
		t.Fatalf("Decide() = %T, want Matched", v)
	}
	if m.IdentityID != 1 || m.Alias != "alice" || m.Source != biometric.SourceClassifier {
		t.Errorf("Decide() = %+v, want alice via classifier", m)
	}
	if m.Confidence < 1-p.Config().DistanceThreshold {
		t.Errorf("confidence %v below threshold", m.Confidence)
	}
	// a confident classifier hit wins over a disagreeing fallback
	if fb.calls != 0 {
		t.Errorf("fallback consulted %d times on a confident hit", fb.calls)
	}
}

func TestDecide_NotConfidentFallsBack(t *testing.T) {
	clf := trained(t, biometric.Record{ID: 1, Features: unit(1, 0, 0)})
	probe := Probe{Features: unit(0, 1, 0)} // distance ~0.707

	t.Run("native hit wins", func(t *testing.T) {
		fb := &fakeFallback{res: sensor.NativeResult{Found: true, ID: 3, Confidence: 1.7}}
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		m, ok := v.(Matched)
		if !ok {
			t.Fatalf("Decide() = %T, want Matched", v)
		}
		if m.IdentityID != 3 || m.Alias != "carol" || m.Source != biometric.SourceNative || m.Confidence != 1 {
			t.Errorf("Decide() = %+v, want carol via native with clamped confidence", m)
		}
	})

	t.Run("native hit for identity not in gallery", func(t *testing.T) {
		fb := &fakeFallback{res: sensor.NativeResult{Found: true, ID: 9, Confidence: 1}}
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		nm, ok := v.(NoMatch)
		if !ok {
			t.Fatalf("Decide() = %#v, want NoMatch", v)
		}
		if !nm.HasBestDistance {
			t.Errorf("NoMatch = %+v, want the classifier distance", nm)
		}
	})

	t.Run("native miss", func(t *testing.T) {
		fb := &fakeFallback{}
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		nm, ok := v.(NoMatch)
		if !ok {
			t.Fatalf("Decide() = %T, want NoMatch", v)
		}
		if !nm.HasBestDistance || nm.BestDistance < 0.5 {
			t.Errorf("NoMatch = %+v, want best distance >= 0.5", nm)
		}
	})

	t.Run("no native matcher", func(t *testing.T) {
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, &fakeFallback{none: true}, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if v.Outcome() != OutcomeNoMatch {
			t.Errorf("Decide() = %v, want no_match", v.Outcome())
		}
	})

	t.Run("looser threshold accepts", func(t *testing.T) {
		p := newPolicy(t, Config{DistanceThreshold: 0.8})
		v, err := p.Decide(context.Background(), clf, probe, nil, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if v.Outcome() != OutcomeMatched {
			t.Errorf("Decide() = %v, want matched under threshold 0.8", v.Outcome())
		}
	})
}

func TestDecide_EmptyClassifier(t *testing.T) {
	p := newPolicy(t, DefaultConfig())
	empty := classifier.NewExact()

	t.Run("falls through to native", func(t *testing.T) {
		fb := &fakeFallback{}
		v, err := p.Decide(context.Background(), empty, Probe{Features: unit(1, 0)}, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v, empty gallery must not escape", err)
		}
		if v.Outcome() != OutcomeNoMatch {
			t.Errorf("Decide() = %v, want no_match", v.Outcome())
		}
		if fb.calls != 1 {
			t.Errorf("fallback calls = %d, want 1", fb.calls)
		}
		if nm := v.(NoMatch); nm.HasBestDistance {
			t.Error("empty classifier should not report a distance")
		}
	})

	t.Run("nothing to compare against", func(t *testing.T) {
		for name, fb := range map[string]Fallback{"no sensor": nil, "no native matcher": &fakeFallback{none: true}} {
			v, err := p.Decide(context.Background(), empty, Probe{Features: unit(1, 0)}, fb, aliases)
			if err != nil {
				t.Fatalf("%s: Decide() error = %v, want NoMatch", name, err)
			}
			if nm, ok := v.(NoMatch); !ok || nm.HasBestDistance {
				t.Errorf("%s: Decide() = %#v, want NoMatch without distance", name, v)
			}
		}
	})
}

func TestDecide_FallbackError(t *testing.T) {
	p := newPolicy(t, DefaultConfig())
	fb := &fakeFallback{err: biometric.ErrSensorBusy}
	_, err := p.Decide(context.Background(), classifier.NewExact(), Probe{Features: unit(1, 0)}, fb, aliases)
	if !errors.Is(err, biometric.ErrSensorBusy) {
		t.Errorf("Decide() error = %v, want ErrSensorBusy", err)
	}
}

func TestDecide_Ambiguous(t *testing.T) {
	clf := trained(t,
		biometric.Record{ID: 1, Features: unit(1, 0)},
		biometric.Record{ID: 2, Features: unit(0, 1)},
	)
	probe := Probe{Features: unit(1, 1)} // equidistant, ~0.38 from both

	t.Run("exact tie", func(t *testing.T) {
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, nil, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		amb, ok := v.(Ambiguous)
		if !ok {
			t.Fatalf("Decide() = %T, want Ambiguous", v)
		}
		if len(amb.Candidates) != 2 {
			t.Fatalf("candidates = %d, want 2", len(amb.Candidates))
		}
		ids := map[int64]bool{amb.Candidates[0].IdentityID: true, amb.Candidates[1].IdentityID: true}
		if !ids[1] || !ids[2] {
			t.Errorf("candidates = %+v, want ids 1 and 2", amb.Candidates)
		}
	})

	t.Run("native breaks tie", func(t *testing.T) {
		fb := &fakeFallback{res: sensor.NativeResult{Found: true, ID: 2, Confidence: 0.8}}
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		m, ok := v.(Matched)
		if !ok || m.IdentityID != 2 || m.Source != biometric.SourceNative {
			t.Errorf("Decide() = %+v, want bob via native", v)
		}
	})

	t.Run("native outside candidates", func(t *testing.T) {
		fb := &fakeFallback{res: sensor.NativeResult{Found: true, ID: 3, Confidence: 0.8}}
		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, probe, fb, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if v.Outcome() != OutcomeAmbiguous {
			t.Errorf("Decide() = %v, want ambiguous", v.Outcome())
		}
	})

	t.Run("margin", func(t *testing.T) {
		near := trained(t,
			biometric.Record{ID: 1, Features: unit(1, 0, 0)},
			biometric.Record{ID: 2, Features: unit(0.9, 0.1, 0)},
		)
		probe := Probe{Features: unit(1, 0.02, 0)}

		v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), near, probe, nil, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if v.Outcome() != OutcomeMatched {
			t.Errorf("zero margin: Decide() = %v, want matched", v.Outcome())
		}

		wide := newPolicy(t, Config{DistanceThreshold: 0.5, AmbiguityMargin: 0.2})
		v, err = wide.Decide(context.Background(), near, probe, nil, aliases)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if v.Outcome() != OutcomeAmbiguous {
			t.Errorf("margin 0.2: Decide() = %v, want ambiguous", v.Outcome())
		}
	})
}

func TestDecide_ClassifierHitForRemovedIdentity(t *testing.T) {
	clf := trained(t, biometric.Record{ID: 9, Features: unit(1, 0, 0)})
	fb := &fakeFallback{}

	v, err := newPolicy(t, DefaultConfig()).Decide(context.Background(), clf, Probe{Features: unit(1, 0, 0)}, fb, aliases)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	nm, ok := v.(NoMatch)
	if !ok {
		t.Fatalf("Decide() = %#v, want NoMatch", v)
	}
	if !nm.HasBestDistance || nm.BestDistance > 1e-6 {
		t.Errorf("NoMatch = %+v, want best distance 0", nm)
	}
	if fb.calls != 0 {
		t.Errorf("fallback consulted %d times", fb.calls)
	}
}
