// Package storage keeps the original bytes of uploaded documents.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Backends
const (
	BackendLocal = "local"
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// ErrObjectNotFound is returned when deleting an id the store does not hold
var ErrObjectNotFound = errors.New("stored object not found")

// Object identifies an uploaded original
type Object struct {
	ExternalID string
	Link       string
}

// Store is the document store collaborator
type Store interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, externalID string) error
	// DeleteAll removes every object and reports per-object failures
	DeleteAll(ctx context.Context) (int, []error)
}

// Options configures New
type Options struct {
	Backend  string
	LocalDir string

	DriveCredentialsFile string
	DriveFolderName      string
	DriveShareDomain     string

	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string
}

// New opens the configured backend
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendLocal, "":
		return NewLocal(opts.LocalDir)
	case BackendDrive:
		return NewDrive(ctx, opts.DriveCredentialsFile, opts.DriveFolderName, opts.DriveShareDomain)
	case BackendGCS:
		return NewGCS(ctx, opts.GCSBucket, opts.GCSPrefix, opts.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", opts.Backend)
	}
}
