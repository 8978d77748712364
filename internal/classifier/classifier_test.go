package classifier

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
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

func testRecords() []biometric.Record {
	return []biometric.Record{
		{ID: 1, Alias: "alice", Features: unit(1, 0, 0, 0)},
		{ID: 2, Alias: "bob", Features: unit(0, 1, 0, 0)},
		{ID: 3, Alias: "carol", Features: unit(0, 0, 1, 1)},
	}
}

func allKinds(t *testing.T) map[string]Classifier {
	t.Helper()
	out := make(map[string]Classifier)
	for _, kind := range []string{KindExact, KindHNSW} {
		c, err := New(Options{Kind: kind})
		if err != nil {
			t.Fatalf("New(%s) failed: %v", kind, err)
		}
		out[kind] = c
	}
	return out
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Options{Kind: "svm"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestClassify_Empty(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			if c.State() != Empty {
				t.Errorf("new classifier state = %s; want EMPTY", c.State())
			}
			_, err := c.Classify(unit(1, 0, 0, 0))
			if !errors.Is(err, biometric.ErrEmptyGallery) {
				t.Errorf("expected ErrEmptyGallery, got %v", err)
			}
		})
	}
}

func TestClassify_ExactSample(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			records := testRecords()
			if err := c.Retrain(records); err != nil {
				t.Fatalf("Retrain failed: %v", err)
			}
			for _, r := range records {
				p, err := c.Classify(r.Features)
				if err != nil {
					t.Fatalf("Classify failed: %v", err)
				}
				if p.ID != r.ID {
					t.Errorf("Classify(%s) = %d; want %d", r.Alias, p.ID, r.ID)
				}
				if p.Distance > 1e-6 || p.Confidence < 1-1e-6 {
					t.Errorf("expected zero distance and full confidence, got %f/%f", p.Distance, p.Confidence)
				}
				if !p.HasRunnerUp || p.RunnerUpID == r.ID {
					t.Errorf("expected a runner-up of another identity, got %+v", p)
				}
			}
		})
	}
}

func TestClassify_NearestAndConfidence(t *testing.T) {
	c := NewExact()
	if err := c.Retrain(testRecords()); err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}

	probe := unit(0.9, 0.1, 0, 0)
	p, err := c.Classify(probe)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("expected nearest id 1, got %d", p.ID)
	}
	want := NormalizedDistance(probe, unit(1, 0, 0, 0))
	if math.Abs(p.Distance-want) > 1e-9 {
		t.Errorf("distance = %f; want %f", p.Distance, want)
	}
	if math.Abs(p.Confidence-(1-want)) > 1e-9 {
		t.Errorf("confidence = %f; want %f", p.Confidence, 1-want)
	}
	if p.RunnerUpID != 2 {
		t.Errorf("expected runner-up 2, got %d", p.RunnerUpID)
	}
}

func TestStateMachine(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			records := testRecords()
			_ = c.Retrain(records[:1])
			if c.State() != Trained || c.Len() != 1 {
				t.Fatalf("after first enroll: %s/%d", c.State(), c.Len())
			}
			_ = c.Retrain(records)
			if c.State() != Trained || c.Len() != 3 {
				t.Fatalf("after more enrolls: %s/%d", c.State(), c.Len())
			}
			_ = c.Retrain(records[1:])
			if c.State() != Trained || c.Contains(1) {
				t.Fatalf("after deleting 1: state %s, contains(1)=%v", c.State(), c.Contains(1))
			}
			_ = c.Retrain(nil)
			if c.State() != Empty || c.Len() != 0 {
				t.Fatalf("after deleting all: %s/%d", c.State(), c.Len())
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			if err := c.Retrain(testRecords()); err != nil {
				t.Fatalf("Retrain failed: %v", err)
			}
			data, err := c.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary failed: %v", err)
			}

			restored, _ := New(Options{Kind: kind})
			if err := restored.UnmarshalBinary(data); err != nil {
				t.Fatalf("UnmarshalBinary failed: %v", err)
			}
			if restored.Len() != 3 {
				t.Fatalf("expected 3 trained records, got %d", restored.Len())
			}
			for _, r := range testRecords() {
				if !restored.Contains(r.ID) {
					t.Errorf("restored classifier misses id %d", r.ID)
				}
				p, err := restored.Classify(r.Features)
				if err != nil || p.ID != r.ID {
					t.Errorf("restored Classify(%d) = %d, %v", r.ID, p.ID, err)
				}
			}
		})
	}
}

func TestMarshal_Empty(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			data, err := c.MarshalBinary()
			if err != nil || data != nil {
				t.Fatalf("expected nil artifact for empty classifier, got %v, %v", data, err)
			}
			if err := c.UnmarshalBinary(nil); err != nil || c.State() != Empty {
				t.Errorf("expected empty classifier, got %s, %v", c.State(), err)
			}
		})
	}
}

func TestClassify_DimensionMismatch(t *testing.T) {
	for kind, c := range allKinds(t) {
		t.Run(kind, func(t *testing.T) {
			_ = c.Retrain(testRecords())
			_, err := c.Classify(unit(1, 0))
			if !errors.Is(err, biometric.ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch, got %v", err)
			}
		})
	}
}

func TestNormalizedDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", unit(1, 0), unit(1, 0), 0},
		{"orthogonal", unit(1, 0), unit(0, 1), math.Sqrt2 / 2},
		{"opposite", unit(1, 0), unit(-1, 0), 1},
		{"length mismatch", unit(1, 0), unit(1, 0, 0), 1},
		{"empty", nil, nil, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizedDistance(tc.a, tc.b); math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("NormalizedDistance = %f; want %f", got, tc.want)
			}
		})
	}
}
