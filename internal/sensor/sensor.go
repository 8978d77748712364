// Package sensor defines the biometric reader collaborator and guards its
// exclusive use.
package sensor

import (
	"context"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// Sensor captures samples. Capture blocks until a finger is presented or ctx
// is done.
type Sensor interface {
	Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error)
}

// NativeResult is the answer of the vendor's exact template matcher.
type NativeResult struct {
	Found      bool
	ID         int64
	Confidence float64 // vendor score mapped to [0,1]
}

// NativeMatcher is implemented by sensors that ship a vendor matcher searching
// their own template slots.
type NativeMatcher interface {
	NativeMatch(ctx context.Context, sample biometric.Sample) (NativeResult, error)
}

// NativeStore is implemented by sensors that keep templates in on-device slots.
type NativeStore interface {
	StoreNative(ctx context.Context, id int64, sample biometric.Sample) error
	DeleteNative(ctx context.Context, id int64) error
}
