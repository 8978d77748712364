// Package gallery holds the ordered set of enrolled records and writes it
// through to a durable backend.
//
// Store is not safe for concurrent use; the engine serializes access together
// with the classifier under one read-write lock.
package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// Store is the in-memory gallery backed by a database.GalleryBackend.
type Store struct {
	backend  database.GalleryBackend
	strategy string
	dim      int
	records  []biometric.Record
	index    map[int64]int // identity id -> position in records
}

// New creates an empty store for vectors of the given dimensionality.
func New(backend database.GalleryBackend, strategy string, dim int) *Store {
	return &Store{
		backend:  backend,
		strategy: strategy,
		dim:      dim,
		index:    make(map[int64]int),
	}
}

// Dim returns the fixed feature dimensionality.
func (s *Store) Dim() int { return s.dim }

// Len returns the number of live records.
func (s *Store) Len() int { return len(s.records) }

// Append adds a record at the end of the gallery.
func (s *Store) Append(rec biometric.Record) error {
	if len(rec.Features) != s.dim {
		return fmt.Errorf("%w: expected %d, got %d", biometric.ErrDimensionMismatch, s.dim, len(rec.Features))
	}
	if _, ok := s.index[rec.ID]; ok {
		return fmt.Errorf("%w: id %d", biometric.ErrDuplicateIdentity, rec.ID)
	}
	if existing, ok := s.FindFeatures(rec.Features); ok {
		return fmt.Errorf("%w: matches identity %d", biometric.ErrDuplicateFeature, existing.ID)
	}

	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec.Clone())
	return nil
}

// Remove deletes the record with the given id and returns it together with
// its former position, so the caller can Restore it.
func (s *Store) Remove(id int64) (biometric.Record, int, error) {
	pos, ok := s.index[id]
	if !ok {
		return biometric.Record{}, -1, fmt.Errorf("%w: id %d", biometric.ErrNotFound, id)
	}
	rec := s.records[pos]
	s.records = append(s.records[:pos:pos], s.records[pos+1:]...)
	s.reindex()
	return rec, pos, nil
}

// Restore re-inserts a removed record at its former position.
func (s *Store) Restore(rec biometric.Record, pos int) {
	pos = max(0, min(pos, len(s.records)))
	s.records = append(s.records[:pos], append([]biometric.Record{rec}, s.records[pos:]...)...)
	s.reindex()
}

// Get returns the record for id.
func (s *Store) Get(id int64) (biometric.Record, bool) {
	pos, ok := s.index[id]
	if !ok {
		return biometric.Record{}, false
	}
	return s.records[pos].Clone(), true
}

// Has reports whether id is enrolled.
func (s *Store) Has(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// FindFeatures returns the record whose vector is bit-identical to vec.
func (s *Store) FindFeatures(vec []float32) (biometric.Record, bool) {
	for i := range s.records {
		if biometric.SameFeatures(s.records[i].Features, vec) {
			return s.records[i], true
		}
	}
	return biometric.Record{}, false
}

// All returns a copy of the live records in enrollment order.
func (s *Store) All() []biometric.Record {
	out := make([]biometric.Record, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].Clone()
	}
	return out
}

// NextID returns one more than the highest enrolled id, starting at 1.
func (s *Store) NextID() int64 {
	var maxID int64
	for i := range s.records {
		maxID = max(maxID, s.records[i].ID)
	}
	return maxID + 1
}

// Load replaces the in-memory records with the backend's committed state. It
// returns the loaded snapshot (nil for a fresh deployment) so the caller can
// restore the classifier artifact.
func (s *Store) Load(ctx context.Context) (*database.GallerySnapshot, error) {
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return nil, &biometric.PersistenceError{Op: "load", Err: err}
	}

	s.records = nil
	s.index = make(map[int64]int)
	if snap == nil {
		return nil, nil
	}

	if len(snap.Records) > 0 && snap.Dim != s.dim {
		return nil, &biometric.PersistenceError{
			Op:  "load",
			Err: fmt.Errorf("%w: stored %d, configured %d", biometric.ErrDimensionMismatch, snap.Dim, s.dim),
		}
	}
	if len(snap.Records) > 0 && snap.Strategy != "" && snap.Strategy != s.strategy {
		return nil, &biometric.PersistenceError{
			Op:  "load",
			Err: fmt.Errorf("stored features use strategy %q, configured %q", snap.Strategy, s.strategy),
		}
	}

	for _, rec := range snap.Records {
		if err := s.Append(rec); err != nil {
			s.records = nil
			s.index = make(map[int64]int)
			return nil, &biometric.PersistenceError{Op: "load", Err: fmt.Errorf("corrupt gallery: %w", err)}
		}
	}
	return snap, nil
}

// Persist commits the current records together with the classifier artifact.
// On failure the caller must roll back its in-memory mutation.
func (s *Store) Persist(ctx context.Context, change database.GalleryChange, classifier database.ClassifierState) error {
	snap := &database.GallerySnapshot{
		Version:    database.CurrentSnapshotVersion,
		Strategy:   s.strategy,
		Dim:        s.dim,
		Records:    s.All(),
		Classifier: classifier,
		SavedAt:    time.Now().UTC(),
	}
	if err := s.backend.Save(ctx, snap, change); err != nil {
		return &biometric.PersistenceError{Op: "persist", Err: err}
	}
	return nil
}

func (s *Store) reindex() {
	s.index = make(map[int64]int, len(s.records))
	for i := range s.records {
		s.index[s.records[i].ID] = i
	}
}
