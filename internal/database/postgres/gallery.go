package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// GalleryRepository is a database.GalleryBackend. Feature vectors live in a
// pgvector column; the header and classifier artifact in gallery_meta. Every
// Save is one transaction.
type GalleryRepository struct {
	pool *Pool
}

var _ database.GalleryBackend = (*GalleryRepository)(nil)

// NewGalleryRepository creates a new PostgreSQL gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// Load returns the committed gallery or nil when gallery_meta is empty.
func (r *GalleryRepository) Load(ctx context.Context) (*database.GallerySnapshot, error) {
	snap := &database.GallerySnapshot{}
	var classifier []byte
	err := r.pool.QueryRow(ctx, `
		SELECT version, strategy, dim, classifier_kind, classifier, saved_at
		FROM gallery_meta
		WHERE id = 1
	`).Scan(&snap.Version, &snap.Strategy, &snap.Dim, &snap.Classifier.Kind, &classifier, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query gallery meta: %w", err)
	}
	if len(classifier) > 0 {
		snap.Classifier.Data = classifier
	}

	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, alias, sample_ref, features
		FROM gallery_records
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec biometric.Record
		var vec pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Alias, &rec.SampleRef, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery record: %w", err)
		}
		rec.Features = vec.Slice()
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery records: %w", err)
	}
	return snap, nil
}

// Save applies change and replaces the header and classifier artifact in a
// single transaction. If the incremental change does not leave the table
// matching snap, the table is rewritten from snap.
func (r *GalleryRepository) Save(ctx context.Context, snap *database.GallerySnapshot, change database.GalleryChange) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := applyChange(ctx, tx, change); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM gallery_records").Scan(&count); err != nil {
		return fmt.Errorf("count gallery records: %w", err)
	}
	if count != len(snap.Records) {
		log.Warn().Int("stored", count).Int("expected", len(snap.Records)).Msg("gallery table drifted, rewriting")
		if err := rewriteRecords(ctx, tx, snap.Records); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gallery_meta (id, version, strategy, dim, classifier_kind, classifier, saved_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			strategy = EXCLUDED.strategy,
			dim = EXCLUDED.dim,
			classifier_kind = EXCLUDED.classifier_kind,
			classifier = EXCLUDED.classifier,
			saved_at = EXCLUDED.saved_at
	`, snap.Version, snap.Strategy, snap.Dim, snap.Classifier.Kind, snap.Classifier.Data, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("upsert gallery meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gallery: %w", err)
	}
	return nil
}

func applyChange(ctx context.Context, tx *sql.Tx, change database.GalleryChange) error {
	switch change.Op {
	case database.OpAppend:
		rec := change.Record
		_, err := tx.ExecContext(ctx, `
			INSERT INTO gallery_records (identity_id, position, alias, sample_ref, features)
			VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM gallery_records), $2, $3, $4)
		`, rec.ID, rec.Alias, rec.SampleRef, pgvector.NewVector(rec.Features))
		if err != nil {
			return fmt.Errorf("insert gallery record %d: %w", rec.ID, err)
		}
	case database.OpRemove:
		if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_records WHERE identity_id = $1", change.Record.ID); err != nil {
			return fmt.Errorf("delete gallery record %d: %w", change.Record.ID, err)
		}
	}
	// OpRebuild changes no membership.
	return nil
}

func rewriteRecords(ctx context.Context, tx *sql.Tx, records []biometric.Record) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_records"); err != nil {
		return fmt.Errorf("clear gallery records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gallery_records (identity_id, position, alias, sample_ref, features)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare gallery insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, i+1, rec.Alias, rec.SampleRef, pgvector.NewVector(rec.Features)); err != nil {
			return fmt.Errorf("insert gallery record %d: %w", rec.ID, err)
		}
	}
	return nil
}
