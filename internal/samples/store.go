// Package samples stores display images of enrolled fingerprints. The images
// are for audit display only and never take part in matching.
package samples

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a sample does not exist.
var ErrNotFound = errors.New("sample not found")

// Store is a blob store for PNG display images keyed by opaque references.
type Store interface {
	// Put stores data and returns its reference.
	Put(ctx context.Context, key string, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	// Delete removes ref. Deleting a missing sample succeeds.
	Delete(ctx context.Context, ref string) error
}

// NewKey returns a fresh object key for an identity's display image.
func NewKey(identityID int64) string {
	return fmt.Sprintf("fingerprints/%d-%s.png", identityID, uuid.NewString())
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean == "." || strings.HasPrefix(clean, "../") || clean != key {
		return "", fmt.Errorf("invalid sample key %q", key)
	}
	return clean, nil
}

// Nop discards images. Put returns an empty reference.
type Nop struct{}

func (Nop) Put(context.Context, string, []byte) (string, error) { return "", nil }
func (Nop) Get(context.Context, string) ([]byte, error)         { return nil, ErrNotFound }
func (Nop) Delete(context.Context, string) error                { return nil }
