package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

// DefaultPollInterval is how often Spool looks for new sample files.
const DefaultPollInterval = 200 * time.Millisecond

// Spool is a sensor fed through a drop directory: the reader's capture daemon
// writes one file per presented finger, Spool consumes the oldest one.
type Spool struct {
	Dir          string
	PollInterval time.Duration
}

// NewSpool creates a spool sensor reading from dir.
func NewSpool(dir string) *Spool {
	return &Spool{Dir: dir, PollInterval: DefaultPollInterval}
}

// Capture blocks until a sample file appears or ctx is done. Consumed files
// are removed. Images are preferred when kind is KindImage, templates otherwise.
//
// A file is taken only once it has not been modified for one poll interval,
// so a daemon still writing it is not read short. Writers that can should
// write to a dot file and rename it into place.
func (s *Spool) Capture(ctx context.Context, kind biometric.SampleKind) (biometric.Sample, error) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		path, err := s.next(kind, time.Now().Add(-interval))
		if err != nil {
			return biometric.Sample{}, err
		}
		if path != "" {
			sample, err := LoadSampleFile(path)
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove consumed sample")
			}
			if err != nil {
				return biometric.Sample{}, err
			}
			return sample, nil
		}

		select {
		case <-ctx.Done():
			return biometric.Sample{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// next returns the oldest sample file of the wanted kind last modified
// before settled, or "".
func (s *Spool) next(kind biometric.SampleKind, settled time.Time) (string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", fmt.Errorf("reading spool directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		isTemplate := strings.EqualFold(filepath.Ext(e.Name()), templateExt)
		if isTemplate != (kind == biometric.KindTemplate) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(settled) {
			continue // still being written
		}
		cands = append(cands, candidate{path: filepath.Join(s.Dir, e.Name()), mod: info.ModTime()})
	}
	if len(cands) == 0 {
		return "", nil
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].path < cands[j].path
		}
		return cands[i].mod.Before(cands[j].mod)
	})
	return cands[0].path, nil
}
