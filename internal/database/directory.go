package database

import (
	"context"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// NopDirectory discards everything. It is used when no directory backend is configured.
type NopDirectory struct{}

func (NopDirectory) RecordEnrollment(context.Context, biometric.Enrollment) error { return nil }
func (NopDirectory) RecordMatch(context.Context, biometric.MatchEvent) error       { return nil }
func (NopDirectory) RecordDeletion(context.Context, int64) error                  { return nil }
func (NopDirectory) Aliases(context.Context) ([]IdentityAlias, error)             { return nil, nil }
