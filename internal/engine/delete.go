package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// DeleteResult is a committed deletion.
type DeleteResult struct {
	Record   biometric.Record
	AuditErr error
}

// Delete removes an identity. Deleting the last identity leaves an Empty
// classifier. Deleting an unknown id fails with biometric.ErrNotFound and
// changes nothing.
func (e *Engine) Delete(ctx context.Context, id int64) (DeleteResult, error) {
	rec, err := e.commitDeletion(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	// A slot left behind is never matched: the policy ignores ids outside
	// the gallery.
	var audit []error
	if e.guard != nil {
		if ok, err := e.guard.DeleteNative(ctx, id); ok && err != nil {
			log.Warn().Err(err).Int64("id", id).Msg("clearing sensor slot failed")
			audit = append(audit, fmt.Errorf("sensor slot: %w", err))
		}
	}

	if rec.SampleRef != "" {
		if err := e.samples.Delete(ctx, rec.SampleRef); err != nil {
			log.Warn().Err(err).Str("ref", rec.SampleRef).Msg("removing display image failed")
			audit = append(audit, fmt.Errorf("display image: %w", err))
		}
	}
	if err := e.directory.RecordDeletion(ctx, id); err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("directory rejected deletion")
		audit = append(audit, fmt.Errorf("directory: %w", err))
	}

	log.Info().Int64("id", id).Str("alias", rec.Alias).Msg("identity deleted")
	return DeleteResult{Record: rec, AuditErr: errors.Join(audit...)}, nil
}

func (e *Engine) commitDeletion(ctx context.Context, id int64) (biometric.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, pos, err := e.gallery.Remove(id)
	if err != nil {
		return biometric.Record{}, err
	}

	clf, state, err := e.retrainForCommit()
	if err == nil {
		err = e.gallery.Persist(ctx, database.GalleryChange{Op: database.OpRemove, Record: rec}, state)
	}
	if err != nil {
		e.gallery.Restore(rec, pos)
		log.Error().Err(err).Int64("id", id).Msg("deletion rolled back")
		return biometric.Record{}, err
	}
	e.clf = clf
	return rec, nil
}

// Rebuild retrains the classifier from the gallery and rewrites the durable
// state. Membership does not change.
func (e *Engine) Rebuild(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	clf, state, err := e.retrainForCommit()
	if err == nil {
		err = e.gallery.Persist(ctx, database.GalleryChange{Op: database.OpRebuild}, state)
	}
	if err == nil {
		e.clf = clf
	}
	n := e.gallery.Len()
	e.mu.Unlock()

	if err != nil {
		return Stats{}, err
	}
	log.Info().Int("records", n).Msg("classifier rebuilt")
	return e.Stats(), nil
}
