package database

import (
	"time"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// ChangeOp is the kind of gallery mutation being persisted.
type ChangeOp string

const (
	OpAppend  ChangeOp = "append"
	OpRemove  ChangeOp = "remove"
	OpRebuild ChangeOp = "rebuild" // full rewrite, no membership change
)

// GalleryChange describes the mutation that produced a snapshot. Backends that
// store the gallery incrementally apply it; whole-state backends ignore it.
type GalleryChange struct {
	Op     ChangeOp
	Record biometric.Record
}

// ClassifierState is the serialized classifier artifact.
type ClassifierState struct {
	Kind string // classifier implementation name
	Data []byte // nil when the classifier is empty
}

// GallerySnapshot is the complete durable state of a deployment: the
// feature/label table, the alias table and the classifier artifact.
type GallerySnapshot struct {
	Version    int
	Strategy   string // feature extraction strategy
	Dim        int    // feature dimensionality
	Records    []biometric.Record
	Classifier ClassifierState
	SavedAt    time.Time
}

// CurrentSnapshotVersion is written into every persisted snapshot.
const CurrentSnapshotVersion = 1

// IdentityAlias is a row of the metadata directory's alias listing.
type IdentityAlias struct {
	IdentityID int64     `json:"identity_id"`
	Alias      string    `json:"alias"`
	SampleRef  string    `json:"sample_ref,omitempty"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
