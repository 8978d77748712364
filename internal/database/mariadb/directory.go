package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fp_identities (
		identity_id   BIGINT PRIMARY KEY,
		alias         VARCHAR(255) NOT NULL,
		sample_ref    VARCHAR(512) NOT NULL DEFAULT '',
		display_image MEDIUMBLOB NULL,
		enrolled_at   DATETIME(6) NOT NULL,
		deleted_at    DATETIME(6) NULL
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS fp_match_events (
		event_id    CHAR(36) PRIMARY KEY,
		identity_id BIGINT NOT NULL,
		alias       VARCHAR(255) NOT NULL DEFAULT '',
		confidence  DOUBLE NOT NULL,
		source      VARCHAR(32) NOT NULL,
		matched_at  DATETIME(6) NOT NULL,
		INDEX idx_fp_match_events_identity (identity_id, matched_at)
	) CHARACTER SET utf8mb4`,
}

// EnsureSchema creates the directory tables if they are missing.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating directory schema: %w", err)
		}
	}
	return nil
}

// Directory is a database.Directory on MariaDB.
type Directory struct {
	pool *Pool
}

var _ database.Directory = (*Directory)(nil)

// NewDirectory creates a MariaDB directory. Call EnsureSchema first.
func NewDirectory(pool *Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) RecordEnrollment(ctx context.Context, e biometric.Enrollment) error {
	_, err := d.pool.db.ExecContext(ctx, `
		INSERT INTO fp_identities (identity_id, alias, sample_ref, display_image, enrolled_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON DUPLICATE KEY UPDATE
			alias = VALUES(alias),
			sample_ref = VALUES(sample_ref),
			display_image = VALUES(display_image),
			enrolled_at = VALUES(enrolled_at),
			deleted_at = NULL
	`, e.IdentityID, e.Alias, e.SampleRef, e.DisplayImage, e.EnrolledAt.UTC())
	if err != nil {
		return fmt.Errorf("record enrollment %d: %w", e.IdentityID, err)
	}
	return nil
}

func (d *Directory) RecordMatch(ctx context.Context, ev biometric.MatchEvent) error {
	_, err := d.pool.db.ExecContext(ctx, `
		INSERT INTO fp_match_events (event_id, identity_id, alias, confidence, source, matched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.EventID, ev.IdentityID, ev.Alias, ev.Confidence, string(ev.Source), ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record match %s: %w", ev.EventID, err)
	}
	return nil
}

func (d *Directory) RecordDeletion(ctx context.Context, identityID int64) error {
	_, err := d.pool.db.ExecContext(ctx, `
		UPDATE fp_identities SET deleted_at = UTC_TIMESTAMP(6), display_image = NULL
		WHERE identity_id = ? AND deleted_at IS NULL
	`, identityID)
	if err != nil {
		return fmt.Errorf("record deletion %d: %w", identityID, err)
	}
	return nil
}

func (d *Directory) Aliases(ctx context.Context) ([]database.IdentityAlias, error) {
	rows, err := d.pool.db.QueryContext(ctx, `
		SELECT identity_id, alias, sample_ref, enrolled_at
		FROM fp_identities
		WHERE deleted_at IS NULL
		ORDER BY identity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}
