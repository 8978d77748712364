// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// MockGalleryBackend is an in-memory database.GalleryBackend.
type MockGalleryBackend struct {
	mu      sync.Mutex
	current *database.GallerySnapshot
	changes []database.GalleryChange

	// Error injection
	LoadError error
	SaveError error
}

// NewMockGalleryBackend creates an empty backend.
func NewMockGalleryBackend() *MockGalleryBackend {
	return &MockGalleryBackend{}
}

// Load returns a copy of the last saved snapshot.
func (m *MockGalleryBackend) Load(ctx context.Context) (*database.GallerySnapshot, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.current), nil
}

// Save stores a copy of snap.
func (m *MockGalleryBackend) Save(ctx context.Context, snap *database.GallerySnapshot, change database.GalleryChange) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = cloneSnapshot(snap)
	m.changes = append(m.changes, change)
	return nil
}

// Snapshot returns the last committed snapshot.
func (m *MockGalleryBackend) Snapshot() *database.GallerySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.current)
}

// Changes returns the mutations persisted so far.
func (m *MockGalleryBackend) Changes() []database.GalleryChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.GalleryChange(nil), m.changes...)
}

func cloneSnapshot(s *database.GallerySnapshot) *database.GallerySnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Records = make([]biometric.Record, len(s.Records))
	for i := range s.Records {
		out.Records[i] = s.Records[i].Clone()
	}
	out.Classifier.Data = append([]byte(nil), s.Classifier.Data...)
	return &out
}

// MockDirectory is an in-memory database.Directory that records every call.
type MockDirectory struct {
	mu          sync.Mutex
	enrollments map[int64]biometric.Enrollment
	matches     []biometric.MatchEvent
	deletions   []int64

	// Error injection
	EnrollmentError error
	MatchError      error
	DeletionError   error
	AliasesError    error
}

// NewMockDirectory creates an empty directory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{enrollments: make(map[int64]biometric.Enrollment)}
}

// RecordEnrollment stores the enrollment.
func (m *MockDirectory) RecordEnrollment(ctx context.Context, e biometric.Enrollment) error {
	if m.EnrollmentError != nil {
		return m.EnrollmentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.IdentityID] = e
	return nil
}

// RecordMatch appends the match event.
func (m *MockDirectory) RecordMatch(ctx context.Context, ev biometric.MatchEvent) error {
	if m.MatchError != nil {
		return m.MatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, ev)
	return nil
}

// RecordDeletion removes the enrollment and records the notification.
func (m *MockDirectory) RecordDeletion(ctx context.Context, identityID int64) error {
	if m.DeletionError != nil {
		return m.DeletionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.enrollments, identityID)
	m.deletions = append(m.deletions, identityID)
	return nil
}

// Aliases lists the recorded enrollments ordered by id.
func (m *MockDirectory) Aliases(ctx context.Context) ([]database.IdentityAlias, error) {
	if m.AliasesError != nil {
		return nil, m.AliasesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.IdentityAlias, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		out = append(out, database.IdentityAlias{
			IdentityID: e.IdentityID,
			Alias:      e.Alias,
			SampleRef:  e.SampleRef,
			EnrolledAt: e.EnrolledAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

// Enrollment returns the recorded enrollment for id.
func (m *MockDirectory) Enrollment(id int64) (biometric.Enrollment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	return e, ok
}

// Matches returns the recorded match events.
func (m *MockDirectory) Matches() []biometric.MatchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]biometric.MatchEvent(nil), m.matches...)
}

// Deletions returns the recorded deletion notifications.
func (m *MockDirectory) Deletions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.deletions...)
}
