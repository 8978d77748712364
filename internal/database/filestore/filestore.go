// Package filestore keeps the gallery in a local state directory.
//
// Every commit writes a complete generation directory holding the three
// artifacts (classifier.bin, features.gob, aliases.json) and then replaces the
// CURRENT pointer file. Readers only ever follow CURRENT, so the artifacts
// change together or not at all.
package filestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// Artifact names inside a generation directory.
const (
	ClassifierFile = "classifier.bin"
	FeaturesFile   = "features.gob"
	AliasesFile    = "aliases.json"
	CurrentFile    = "CURRENT"

	genPrefix = "gen-"
	tmpPrefix = ".tmp-gen-"
)

// keepGenerations is how many committed generations stay on disk.
const keepGenerations = 2

// featureTable is the gob payload of features.gob.
type featureTable struct {
	Version        int
	Strategy       string
	Dim            int
	ClassifierKind string
	SavedAt        time.Time
	IDs            []int64
	Features       [][]float32
}

type aliasEntry struct {
	ID        int64  `json:"id"`
	Alias     string `json:"alias"`
	SampleRef string `json:"sample_ref,omitempty"`
}

// Store is a database.GalleryBackend on the local filesystem.
type Store struct {
	mu  sync.Mutex
	dir string
}

var _ database.GalleryBackend = (*Store)(nil)

// New creates the state directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// Load reads the generation CURRENT points at. A directory without CURRENT is
// a fresh deployment and yields nil.
func (s *Store) Load(ctx context.Context) (*database.GallerySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.current()
	if err != nil {
		return nil, err
	}
	if gen == "" {
		return nil, nil
	}
	return readGeneration(filepath.Join(s.dir, gen))
}

// Save writes snap as a new generation and makes it current.
func (s *Store) Save(ctx context.Context, snap *database.GallerySnapshot, _ database.GalleryChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.current()
	if err != nil {
		return err
	}
	next := generationName(generationNumber(cur) + 1)

	tmp, err := os.MkdirTemp(s.dir, tmpPrefix)
	if err != nil {
		return fmt.Errorf("creating generation directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := writeGeneration(tmp, snap); err != nil {
		return err
	}

	target := filepath.Join(s.dir, next)
	// leftover of a commit that never reached CURRENT
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clearing stale generation %s: %w", next, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("publishing generation %s: %w", next, err)
	}
	committed = true
	syncDir(s.dir)

	// The commit point: until CURRENT is replaced the old generation is live.
	if err := renameio.WriteFile(filepath.Join(s.dir, CurrentFile), []byte(next+"\n"), 0o640); err != nil {
		_ = os.RemoveAll(target)
		return fmt.Errorf("switching %s to %s: %w", CurrentFile, next, err)
	}
	syncDir(s.dir)

	log.Debug().Str("generation", next).Int("records", len(snap.Records)).Msg("gallery committed")
	s.prune(next)
	return nil
}

// current returns the generation name in CURRENT, or "" when there is none.
func (s *Store) current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", CurrentFile, err)
	}
	gen := strings.TrimSpace(string(data))
	if generationNumber(gen) == 0 {
		return "", fmt.Errorf("%s holds invalid generation %q", CurrentFile, gen)
	}
	return gen, nil
}

// prune removes old generations and abandoned temp directories. Failures are
// only logged; they never affect the committed state.
func (s *Store) prune(current string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Msg("listing state directory for pruning")
		return
	}

	var gens []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case !e.IsDir():
		case strings.HasPrefix(name, tmpPrefix):
			_ = os.RemoveAll(filepath.Join(s.dir, name))
		case generationNumber(name) > 0 && name != current:
			gens = append(gens, name)
		}
	}

	sort.Slice(gens, func(i, j int) bool { return generationNumber(gens[i]) > generationNumber(gens[j]) })
	for i, name := range gens {
		if i < keepGenerations-1 {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			log.Warn().Err(err).Str("generation", name).Msg("removing old generation")
		}
	}
}

func writeGeneration(dir string, snap *database.GallerySnapshot) error {
	table := featureTable{
		Version:        snap.Version,
		Strategy:       snap.Strategy,
		Dim:            snap.Dim,
		ClassifierKind: snap.Classifier.Kind,
		SavedAt:        snap.SavedAt,
		IDs:            make([]int64, len(snap.Records)),
		Features:       make([][]float32, len(snap.Records)),
	}
	aliases := make([]aliasEntry, len(snap.Records))
	for i, rec := range snap.Records {
		table.IDs[i] = rec.ID
		table.Features[i] = rec.Features
		aliases[i] = aliasEntry{ID: rec.ID, Alias: rec.Alias, SampleRef: rec.SampleRef}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&table); err != nil {
		return fmt.Errorf("encoding %s: %w", FeaturesFile, err)
	}
	aliasJSON, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", AliasesFile, err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{ClassifierFile, snap.Classifier.Data},
		{FeaturesFile, buf.Bytes()},
		{AliasesFile, aliasJSON},
	}
	for _, f := range files {
		if err := renameio.WriteFile(filepath.Join(dir, f.name), f.data, 0o640); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	syncDir(dir)
	return nil
}

func readGeneration(dir string) (*database.GallerySnapshot, error) {
	raw, err := os.ReadFile(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FeaturesFile, err)
	}
	var table featureTable
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&table); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", FeaturesFile, err)
	}
	if table.Version > database.CurrentSnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", table.Version, database.CurrentSnapshotVersion)
	}
	if len(table.IDs) != len(table.Features) {
		return nil, fmt.Errorf("%s is inconsistent: %d ids, %d vectors", FeaturesFile, len(table.IDs), len(table.Features))
	}

	raw, err = os.ReadFile(filepath.Join(dir, AliasesFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", AliasesFile, err)
	}
	var aliases []aliasEntry
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", AliasesFile, err)
	}
	if len(aliases) != len(table.IDs) {
		return nil, fmt.Errorf("%s has %d entries, %s has %d", AliasesFile, len(aliases), FeaturesFile, len(table.IDs))
	}

	classifierData, err := os.ReadFile(filepath.Join(dir, ClassifierFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ClassifierFile, err)
	}
	if len(classifierData) == 0 {
		classifierData = nil
	}

	snap := &database.GallerySnapshot{
		Version:    table.Version,
		Strategy:   table.Strategy,
		Dim:        table.Dim,
		Classifier: database.ClassifierState{Kind: table.ClassifierKind, Data: classifierData},
		SavedAt:    table.SavedAt,
		Records:    make([]biometric.Record, len(table.IDs)),
	}
	for i, id := range table.IDs {
		if aliases[i].ID != id {
			return nil, fmt.Errorf("%s and %s disagree at row %d: id %d vs %d", AliasesFile, FeaturesFile, i, aliases[i].ID, id)
		}
		snap.Records[i] = biometric.Record{
			ID:        id,
			Alias:     aliases[i].Alias,
			Features:  table.Features[i],
			SampleRef: aliases[i].SampleRef,
		}
	}
	return snap, nil
}

func generationName(n int) string {
	return fmt.Sprintf("%s%06d", genPrefix, n)
}

// generationNumber parses "gen-000042"; anything else is 0.
func generationNumber(name string) int {
	if !strings.HasPrefix(name, genPrefix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, genPrefix))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// syncDir flushes directory entries. Best effort, as not every platform
// supports fsync on directories.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil { //nolint:gosec // state directory
		_ = d.Sync()
		_ = d.Close()
	}
}
