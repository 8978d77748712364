package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

func testSnapshot(records ...biometric.Record) *database.GallerySnapshot {
	return &database.GallerySnapshot{
		Version:    database.CurrentSnapshotVersion,
		Strategy:   "flatten",
		Dim:        3,
		Records:    records,
		Classifier: database.ClassifierState{Kind: "exact", Data: []byte("model")},
		SavedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func readCurrent(t *testing.T, s *Store) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.Dir(), CurrentFile))
	if err != nil {
		t.Fatalf("reading CURRENT: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestLoad_Fresh(t *testing.T) {
	s := newStore(t)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil for fresh state", snap)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	want := testSnapshot(
		biometric.Record{ID: 1, Alias: "alice", Features: []float32{1, 0, 0}, SampleRef: "samples/1.png"},
		biometric.Record{ID: 2, Alias: "bob", Features: []float32{0, 0.6, 0.8}},
	)

	if err := s.Save(ctx, want, database.GalleryChange{Op: database.OpAppend}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Strategy != want.Strategy || got.Dim != want.Dim || got.Version != want.Version {
		t.Errorf("header = %s/%d/v%d, want %s/%d/v%d", got.Strategy, got.Dim, got.Version, want.Strategy, want.Dim, want.Version)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, want.SavedAt)
	}
	if got.Classifier.Kind != "exact" || string(got.Classifier.Data) != "model" {
		t.Errorf("Classifier = %+v", got.Classifier)
	}
	if len(got.Records) != len(want.Records) {
		t.Fatalf("records = %d, want %d", len(got.Records), len(want.Records))
	}
	for i := range want.Records {
		g, w := got.Records[i], want.Records[i]
		if g.ID != w.ID || g.Alias != w.Alias || g.SampleRef != w.SampleRef || !biometric.SameFeatures(g.Features, w.Features) {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
	}

	for _, name := range []string{ClassifierFile, FeaturesFile, AliasesFile} {
		if _, err := os.Stat(filepath.Join(s.Dir(), readCurrent(t, s), name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
}

func TestSave_EmptyGallery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	snap := testSnapshot()
	snap.Classifier = database.ClassifierState{Kind: "exact"}

	if err := s.Save(ctx, snap, database.GalleryChange{Op: database.OpRemove}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || len(got.Records) != 0 {
		t.Fatalf("Load() = %+v, want empty snapshot", got)
	}
	if got.Classifier.Data != nil {
		t.Errorf("classifier data = %q, want nil", got.Classifier.Data)
	}
}

func TestSave_AdvancesGenerationAndPrunes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		snap := testSnapshot(biometric.Record{ID: int64(i), Features: []float32{float32(i), 0, 0}})
		if err := s.Save(ctx, snap, database.GalleryChange{}); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
		if got, want := readCurrent(t, s), generationName(i); got != want {
			t.Errorf("CURRENT = %s, want %s", got, want)
		}
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	var gens []string
	for _, e := range entries {
		if e.IsDir() {
			gens = append(gens, e.Name())
		}
	}
	if len(gens) != keepGenerations {
		t.Errorf("generations on disk = %v, want %d", gens, keepGenerations)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].ID != 4 {
		t.Errorf("Load() records = %+v, want the last commit", got.Records)
	}
}

func TestLoad_IgnoresUncommittedGeneration(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, testSnapshot(biometric.Record{ID: 1, Features: []float32{1, 0, 0}}), database.GalleryChange{}); err != nil {
		t.Fatal(err)
	}

	// a crash after writing a generation but before switching CURRENT
	stale := filepath.Join(s.Dir(), generationName(2))
	if err := os.MkdirAll(stale, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, FeaturesFile), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(s.Dir(), tmpPrefix+"123"), 0o750); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].ID != 1 {
		t.Errorf("Load() = %+v, want committed generation", got.Records)
	}

	// the next commit replaces the stale generation and cleans temp dirs
	if err := s.Save(ctx, testSnapshot(), database.GalleryChange{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), tmpPrefix+"123")); !os.IsNotExist(err) {
		t.Error("abandoned temp directory not pruned")
	}
}

func TestSave_CancelledContext(t *testing.T) {
	s := newStore(t)
	if err := s.Save(context.Background(), testSnapshot(biometric.Record{ID: 1, Features: []float32{1, 0, 0}}), database.GalleryChange{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, testSnapshot(), database.GalleryChange{}); err == nil {
		t.Fatal("Save() with cancelled context should fail")
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Records) != 1 {
		t.Errorf("failed save changed committed state: %+v", got.Records)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Store)
	}{
		{
			name: "invalid CURRENT",
			setup: func(t *testing.T, s *Store) {
				if err := os.WriteFile(filepath.Join(s.Dir(), CurrentFile), []byte("latest"), 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "CURRENT points nowhere",
			setup: func(t *testing.T, s *Store) {
				if err := os.WriteFile(filepath.Join(s.Dir(), CurrentFile), []byte(generationName(7)), 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "alias table disagrees",
			setup: func(t *testing.T, s *Store) {
				snap := testSnapshot(biometric.Record{ID: 1, Features: []float32{1, 0, 0}})
				if err := s.Save(context.Background(), snap, database.GalleryChange{}); err != nil {
					t.Fatal(err)
				}
				path := filepath.Join(s.Dir(), readCurrent(t, s), AliasesFile)
				if err := os.WriteFile(path, []byte(`[{"id": 9, "alias": "mallory"}]`), 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "missing classifier artifact",
			setup: func(t *testing.T, s *Store) {
				snap := testSnapshot(biometric.Record{ID: 1, Features: []float32{1, 0, 0}})
				if err := s.Save(context.Background(), snap, database.GalleryChange{}); err != nil {
					t.Fatal(err)
				}
				if err := os.Remove(filepath.Join(s.Dir(), readCurrent(t, s), ClassifierFile)); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.setup(t, s)
			if _, err := s.Load(context.Background()); err == nil {
				t.Error("Load() should fail on corrupt state")
			}
		})
	}
}

func TestGenerationNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"gen-000001", 1},
		{"gen-000042", 42},
		{"gen-", 0},
		{"gen-abc", 0},
		{"CURRENT", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := generationNumber(tt.name); got != tt.want {
			t.Errorf("generationNumber(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
