// Package biometric holds the data model and error taxonomy shared by the
// extractor, gallery, classifier, match policy and workflows.
package biometric

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity is returned when an identity id is already enrolled.
	ErrDuplicateIdentity = errors.New("identity already enrolled")

	// ErrDuplicateFeature is returned when an enrolled record already holds a
	// bit-identical feature vector.
	ErrDuplicateFeature = errors.New("sample already enrolled")

	// ErrNotFound is returned when an identity id is not enrolled.
	ErrNotFound = errors.New("identity not found")

	// ErrEmptyGallery is returned by a classifier that has nothing trained.
	ErrEmptyGallery = errors.New("gallery is empty")

	// ErrSensorBusy is returned when another workflow holds the sensor.
	ErrSensorBusy = errors.New("sensor busy")

	// ErrCaptureTimeout is returned when no sample was presented in time.
	ErrCaptureTimeout = errors.New("capture timed out")

	// ErrInvalidAlias is returned when an enrollment carries no usable alias.
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrDimensionMismatch is returned when a feature vector length differs
	// from the dimensionality fixed for the deployment.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// ExtractionError reports a sample that failed shape validation.
type ExtractionError struct {
	Reason string
	cause  error
}

// NewExtractionError creates an ExtractionError with an optional cause.
func NewExtractionError(reason string, cause error) *ExtractionError {
	return &ExtractionError{Reason: reason, cause: cause}
}

func (e *ExtractionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("feature extraction failed: %s: %v", e.Reason, e.cause)
	}
	return "feature extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.cause }

// PersistenceError reports a failed write or read of durable gallery state.
type PersistenceError struct {
	Op  string // "load" or "persist"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("gallery %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether the operation may succeed if the caller simply
// tries again (sensor contention, abandoned capture).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSensorBusy) ||
		errors.Is(err, ErrCaptureTimeout) ||
		errors.Is(err, context.Canceled)
}

// IsExtractionError reports whether err is or wraps an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// IsPersistenceError reports whether err is or wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
