package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// DirectoryRepository is a database.Directory backed by the identities and
// match_events tables.
type DirectoryRepository struct {
	pool *Pool
}

var _ database.Directory = (*DirectoryRepository)(nil)

// NewDirectoryRepository creates a new PostgreSQL directory repository.
func NewDirectoryRepository(pool *Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// RecordEnrollment upserts the identity. Re-enrolling a deleted id revives it.
func (r *DirectoryRepository) RecordEnrollment(ctx context.Context, e biometric.Enrollment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (identity_id, alias, sample_ref, display_image, enrolled_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (identity_id) DO UPDATE SET
			alias = EXCLUDED.alias,
			sample_ref = EXCLUDED.sample_ref,
			display_image = EXCLUDED.display_image,
			enrolled_at = EXCLUDED.enrolled_at,
			deleted_at = NULL
	`, e.IdentityID, e.Alias, e.SampleRef, e.DisplayImage, e.EnrolledAt)
	if err != nil {
		return fmt.Errorf("record enrollment %d: %w", e.IdentityID, err)
	}
	return nil
}

// RecordMatch appends a match event.
func (r *DirectoryRepository) RecordMatch(ctx context.Context, ev biometric.MatchEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO match_events (event_id, identity_id, alias, confidence, source, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.EventID, ev.IdentityID, ev.Alias, ev.Confidence, string(ev.Source), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("record match %s: %w", ev.EventID, err)
	}
	return nil
}

// RecordDeletion marks the identity deleted. Its match history is kept.
func (r *DirectoryRepository) RecordDeletion(ctx context.Context, identityID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE identities SET deleted_at = NOW(), display_image = NULL
		WHERE identity_id = $1 AND deleted_at IS NULL
	`, identityID)
	if err != nil {
		return fmt.Errorf("record deletion %d: %w", identityID, err)
	}
	return nil
}

// Aliases lists live identities ordered by id.
func (r *DirectoryRepository) Aliases(ctx context.Context) ([]database.IdentityAlias, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, alias, sample_ref, enrolled_at
		FROM identities
		WHERE deleted_at IS NULL
		ORDER BY identity_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.IdentityAlias
	for rows.Next() {
		var a database.IdentityAlias
		if err := rows.Scan(&a.IdentityID, &a.Alias, &a.SampleRef, &a.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MatchCount returns the number of match events recorded for an identity.
func (r *DirectoryRepository) MatchCount(ctx context.Context, identityID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM match_events WHERE identity_id = $1", identityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count match events: %w", err)
	}
	return n, nil
}
