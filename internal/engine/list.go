package engine

import (
	"context"

	"github.com/kozaktomas/fingerprint-id/internal/database"
)

// Identity is a listed gallery entry. Feature vectors are never exposed.
type Identity struct {
	ID        int64  `json:"id"`
	Alias     string `json:"alias"`
	SampleRef string `json:"sample_ref,omitempty"`
}

// ListQuery filters List. The zero value lists everything.
type ListQuery struct {
	// Alias keeps identities whose alias contains every word of it, ignoring
	// case and diacritics.
	Alias  string
	Offset int
	Limit  int // 0 means no limit
}

// List returns enrolled identities in enrollment order.
func (e *Engine) List(_ context.Context, q ListQuery) []Identity {
	e.mu.RLock()
	records := e.gallery.All()
	e.mu.RUnlock()

	out := make([]Identity, 0, len(records))
	for _, r := range records {
		if q.Alias != "" && !aliasMatches(r.Alias, q.Alias) {
			continue
		}
		out = append(out, Identity{ID: r.ID, Alias: r.Alias, SampleRef: r.SampleRef})
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []Identity{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

// Identity returns one enrolled identity.
func (e *Engine) Identity(id int64) (Identity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.gallery.Get(id)
	if !ok {
		return Identity{}, false
	}
	return Identity{ID: r.ID, Alias: r.Alias, SampleRef: r.SampleRef}, true
}

// DirectoryAliases lists identities as the metadata directory knows them.
// It is informational; the gallery stays authoritative.
func (e *Engine) DirectoryAliases(ctx context.Context) ([]database.IdentityAlias, error) {
	return e.directory.Aliases(ctx)
}
