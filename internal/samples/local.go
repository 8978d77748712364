package samples

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// Local keeps samples as files below a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating samples directory: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put writes the file atomically. The reference is the key.
func (l *Local) Put(ctx context.Context, key string, data []byte) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("creating sample directory: %w", err)
	}
	if err := renameio.WriteFile(p, data, 0o640); err != nil {
		return "", fmt.Errorf("writing sample %s: %w", key, err)
	}
	return key, nil
}

func (l *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	p, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // path validated by cleanKey
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading sample %s: %w", ref, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing sample %s: %w", ref, err)
	}
	return nil
}
