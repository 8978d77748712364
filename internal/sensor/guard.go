package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// BusyPolicy decides what happens when the sensor is already held.
type BusyPolicy string

const (
	// BusyQueue waits for the sensor, bounded by the capture timeout.
	BusyQueue BusyPolicy = "queue"
	// BusyReject fails immediately with biometric.ErrSensorBusy.
	BusyReject BusyPolicy = "reject"
)

// DefaultCaptureTimeout bounds how long an operator may take to present a finger.
const DefaultCaptureTimeout = 30 * time.Second

// Guard serializes access to a single sensor handle. Only one workflow may
// hold the sensor at a time.
type Guard struct {
	sensor  Sensor
	sem     *semaphore.Weighted
	policy  BusyPolicy
	timeout time.Duration
}

// NewGuard wraps s. A zero timeout selects DefaultCaptureTimeout and an empty
// policy rejects concurrent requests.
func NewGuard(s Sensor, policy BusyPolicy, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	if policy == "" {
		policy = BusyReject
	}
	return &Guard{
		sensor:  s,
		sem:     semaphore.NewWeighted(1),
		policy:  policy,
		timeout: timeout,
	}
}

// Capture acquires the sensor, captures one sample and releases it.
// Expiry of the capture timeout yields biometric.ErrCaptureTimeout; caller
// cancellation yields context.Canceled.
func (g *Guard) Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	var sample biometric.Sample
	err := g.hold(ctx, func(ctx context.Context) error {
		log.Debug().Str("kind", string(kind)).Msg("waiting for finger on sensor")
		s, err := g.sensor.Capture(ctx, kind)
		if err != nil {
			return captureError(err)
		}
		sample = s
		return nil
	})
	return sample, err
}

// NativeMatch runs the vendor matcher while holding the sensor. ok is false
// when the sensor has no native matcher.
func (g *Guard) NativeMatch(ctx context.Context, sample biometric.Sample) (res NativeResult, ok bool, err error) {
	nm, ok := g.sensor.(NativeMatcher)
	if !ok {
		return NativeResult{}, false, nil
	}
	err = g.hold(ctx, func(ctx context.Context) error {
		r, err := nm.NativeMatch(ctx, sample)
		if err != nil {
			return fmt.Errorf("native match: %w", captureError(err))
		}
		r.Confidence = biometric.ClampUnit(r.Confidence)
		res = r
		return nil
	})
	return res, true, err
}

// HasNativeMatcher reports whether the sensor ships a vendor matcher.
func (g *Guard) HasNativeMatcher() bool {
	_, ok := g.sensor.(NativeMatcher)
	return ok
}

// StoreNative copies the template into the sensor slot id. ok is false when
// the sensor has no on-device storage.
func (g *Guard) StoreNative(ctx context.Context, id int64, sample biometric.Sample) (ok bool, err error) {
	ns, ok := g.sensor.(NativeStore)
	if !ok {
		return false, nil
	}
	return true, g.hold(ctx, func(ctx context.Context) error {
		return ns.StoreNative(ctx, id, sample)
	})
}

// DeleteNative clears the sensor slot id. ok is false when the sensor has no
// on-device storage.
func (g *Guard) DeleteNative(ctx context.Context, id int64) (ok bool, err error) {
	ns, ok := g.sensor.(NativeStore)
	if !ok {
		return false, nil
	}
	return true, g.hold(ctx, func(ctx context.Context) error {
		return ns.DeleteNative(ctx, id)
	})
}

// hold runs fn with the sensor held and the capture timeout applied.
func (g *Guard) hold(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.sem.Release(1)

	return fn(ctx)
}

func (g *Guard) acquire(ctx context.Context) error {
	if g.policy == BusyReject {
		if !g.sem.TryAcquire(1) {
			return biometric.ErrSensorBusy
		}
		return nil
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: waited %s", biometric.ErrSensorBusy, g.timeout)
		}
		return err
	}
	return nil
}

// captureError maps an expired capture deadline to ErrCaptureTimeout.
func captureError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", biometric.ErrCaptureTimeout, err)
	}
	return err
}
