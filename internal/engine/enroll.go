package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/classifier"
	"github.com/kozaktomas/fingerprint-id/internal/database"
	"github.com/kozaktomas/fingerprint-id/internal/features"
	"github.com/kozaktomas/fingerprint-id/internal/samples"
)

// maxAliasLength bounds aliases in runes.
const maxAliasLength = 128

// EnrollRequest asks to enroll one identity. ID 0 assigns the next free id.
type EnrollRequest struct {
	ID    int64
	Alias string
}

// EnrollResult is a committed enrollment.
type EnrollResult struct {
	Record biometric.Record
	// AuditErr collects failures of side effects after the commit (directory,
	// display image, sensor slot). The enrollment itself succeeded.
	AuditErr error
}

// Enroll captures a sample from the sensor and enrolls it.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	sample, err := e.capture(ctx, e.captureKind)
	if err != nil {
		return EnrollResult{}, err
	}
	return e.EnrollSample(ctx, req, sample)
}

// EnrollSample enrolls an already captured sample.
//
// The record is appended, a fresh classifier is trained on the new gallery and
// both are persisted before the classifier is swapped in. Any failure after
// the append removes the record again, so on return memory and disk agree.
func (e *Engine) EnrollSample(ctx context.Context, req EnrollRequest, sample biometric.Sample) (EnrollResult, error) {
	alias := strings.TrimSpace(req.Alias)
	if alias == "" || len([]rune(alias)) > maxAliasLength {
		return EnrollResult{}, fmt.Errorf("%w: must be 1-%d characters", biometric.ErrInvalidAlias, maxAliasLength)
	}
	if req.ID < 0 {
		return EnrollResult{}, fmt.Errorf("invalid identity id %d", req.ID)
	}

	vec, err := e.extractor.Extract(sample)
	if err != nil {
		return EnrollResult{}, err
	}

	var audit []error
	rec, err := e.commitEnrollment(ctx, req.ID, alias, vec, sample, &audit)
	if err != nil {
		return EnrollResult{}, err
	}

	// The slot write is sensor I/O and happens outside the gallery lock.
	if ok, err := e.storeNative(ctx, rec.ID, sample); ok && err != nil {
		log.Warn().Err(err).Int64("id", rec.ID).Msg("storing template on sensor failed")
		audit = append(audit, fmt.Errorf("sensor slot: %w", err))
	}

	enrollment := biometric.Enrollment{
		IdentityID: rec.ID,
		Alias:      rec.Alias,
		SampleRef:  rec.SampleRef,
		EnrolledAt: e.now().UTC(),
	}
	if sample.IsImage() {
		if png, err := features.EncodePNG(sample); err == nil {
			enrollment.DisplayImage = png
		}
	}
	if err := e.directory.RecordEnrollment(ctx, enrollment); err != nil {
		log.Warn().Err(err).Int64("id", rec.ID).Msg("directory rejected enrollment")
		audit = append(audit, fmt.Errorf("directory: %w", err))
	}

	log.Info().Int64("id", rec.ID).Str("alias", rec.Alias).Msg("identity enrolled")
	return EnrollResult{Record: rec, AuditErr: errors.Join(audit...)}, nil
}

func (e *Engine) commitEnrollment(ctx context.Context, id int64, alias string, vec []float32, sample biometric.Sample, audit *[]error) (biometric.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == 0 {
		id = e.gallery.NextID()
	}
	if e.gallery.Has(id) {
		return biometric.Record{}, fmt.Errorf("%w: %d", biometric.ErrDuplicateIdentity, id)
	}
	if existing, ok := e.gallery.FindFeatures(vec); ok {
		return biometric.Record{}, fmt.Errorf("%w: matches identity %d", biometric.ErrDuplicateFeature, existing.ID)
	}

	rec := biometric.Record{ID: id, Alias: alias, Features: vec}
	rec.SampleRef = e.storeDisplayImage(ctx, id, sample, audit)

	if err := e.gallery.Append(rec); err != nil {
		e.dropDisplayImage(ctx, rec.SampleRef)
		return biometric.Record{}, err
	}

	clf, state, err := e.retrainForCommit()
	if err == nil {
		err = e.gallery.Persist(ctx, database.GalleryChange{Op: database.OpAppend, Record: rec}, state)
	}
	if err != nil {
		if _, _, rmErr := e.gallery.Remove(id); rmErr != nil {
			// cannot happen: the record was appended above under the same lock
			log.Error().Err(rmErr).Int64("id", id).Msg("rollback of enrollment failed")
		}
		e.dropDisplayImage(ctx, rec.SampleRef)
		log.Error().Err(err).Int64("id", id).Msg("enrollment rolled back")
		return biometric.Record{}, err
	}
	e.clf = clf
	return rec, nil
}

// retrainForCommit trains a classifier on the current gallery without
// touching the live one.
func (e *Engine) retrainForCommit() (clfOut classifier.Classifier, state database.ClassifierState, err error) {
	clf, err := e.train(e.gallery.All())
	if err != nil {
		return nil, state, err
	}
	state, err = classifierState(clf)
	if err != nil {
		return nil, state, err
	}
	return clf, state, nil
}

func (e *Engine) storeNative(ctx context.Context, id int64, sample biometric.Sample) (bool, error) {
	if e.guard == nil {
		return false, nil
	}
	return e.guard.StoreNative(ctx, id, sample)
}

// storeDisplayImage uploads the PNG of an image sample. Failures only lose
// the audit image and are reported through audit.
func (e *Engine) storeDisplayImage(ctx context.Context, id int64, sample biometric.Sample, audit *[]error) string {
	if !sample.IsImage() {
		return ""
	}
	png, err := features.EncodePNG(sample)
	if err == nil {
		var ref string
		ref, err = e.samples.Put(ctx, samples.NewKey(id), png)
		if err == nil {
			return ref
		}
	}
	log.Warn().Err(err).Int64("id", id).Msg("storing display image failed")
	*audit = append(*audit, fmt.Errorf("display image: %w", err))
	return ""
}

func (e *Engine) dropDisplayImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := e.samples.Delete(ctx, ref); err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("removing display image failed")
	}
}
