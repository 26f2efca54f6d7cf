package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local stores originals as files under one directory
type Local struct {
	dir string
}

// NewLocal creates the directory if needed
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Upload saves data as <uuid><ext>; the external id is that file name
func (l *Local) Upload(ctx context.Context, name, contentType string, data []byte) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	id := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	if err := os.WriteFile(filepath.Join(l.dir, id), data, 0644); err != nil {
		return Object{}, fmt.Errorf("failed to save file: %w", err)
	}
	return Object{ExternalID: id}, nil
}

// Delete removes one stored file
func (l *Local) Delete(ctx context.Context, externalID string) error {
	if externalID != filepath.Base(externalID) || externalID == "." {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, externalID)
	}
	err := os.Remove(filepath.Join(l.dir, externalID))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, externalID)
	}
	return err
}

// DeleteAll removes every regular file in the directory
func (l *Local) DeleteAll(ctx context.Context) (int, []error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, []error{fmt.Errorf("failed to list storage directory: %w", err)}
	}
	var (
		deleted int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", e.Name(), err))
			continue
		}
		deleted++
	}
	return deleted, errs
}
