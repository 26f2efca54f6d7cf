package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores originals as objects in a Cloud Storage bucket
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS opens a client for bucket
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string, extra ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) objectName(id string) string {
	if g.prefix == "" {
		return id
	}
	return path.Join(g.prefix, id)
}

// Upload writes data under <prefix>/<uuid>-<name>
func (g *GCS) Upload(ctx context.Context, name, contentType string, data []byte) (Object, error) {
	id := uuid.New().String() + "-" + path.Base(name)
	w := g.client.Bucket(g.bucket).Object(g.objectName(id)).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("upload to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("upload to gcs: %w", err)
	}
	return Object{
		ExternalID: id,
		Link:       fmt.Sprintf("https://storage.cloud.google.com/%s/%s", g.bucket, g.objectName(id)),
	}, nil
}

// Delete removes one object
func (g *GCS) Delete(ctx context.Context, externalID string) error {
	err := g.client.Bucket(g.bucket).Object(g.objectName(externalID)).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, externalID)
	}
	return err
}

// DeleteAll removes every object under the prefix
func (g *GCS) DeleteAll(ctx context.Context) (int, []error) {
	bkt := g.client.Bucket(g.bucket)
	query := &gcs.Query{}
	if g.prefix != "" {
		query.Prefix = g.prefix + "/"
	}

	var (
		deleted int
		errs    []error
	)
	it := bkt.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("list gcs objects: %w", err))
			break
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", attrs.Name, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

// Close releases the client
func (g *GCS) Close() error { return g.client.Close() }
