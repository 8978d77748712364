package database

import (
	"context"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// GalleryBackend is durable storage for the gallery and classifier artifact.
type GalleryBackend interface {
	// Load returns the last committed snapshot, or nil if nothing was ever committed.
	Load(ctx context.Context) (*GallerySnapshot, error)
	// Save commits snap as the new durable state. The feature table, alias
	// table and classifier artifact change together or not at all.
	Save(ctx context.Context, snap *GallerySnapshot, change GalleryChange) error
}

// Directory is the remote metadata store: a write-mostly audit log and alias
// directory. It is never consulted for matching decisions.
type Directory interface {
	// RecordEnrollment stores the identity's alias and optional display image.
	RecordEnrollment(ctx context.Context, e biometric.Enrollment) error
	// RecordMatch appends a match event.
	RecordMatch(ctx context.Context, ev biometric.MatchEvent) error
	// RecordDeletion notifies the directory that an identity was deleted.
	RecordDeletion(ctx context.Context, identityID int64) error
	// Aliases lists the known identities for display.
	Aliases(ctx context.Context) ([]IdentityAlias, error)
}
