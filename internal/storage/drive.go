package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Drive stores originals in one Google Drive folder
type Drive struct {
	srv         *drive.Service
	folderID    string
	shareDomain string
}

// NewDrive authenticates with a service account and resolves (or creates)
// the upload folder
func NewDrive(ctx context.Context, credentialsFile, folderName, shareDomain string, extra ...option.ClientOption) (*Drive, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	d := &Drive{srv: srv, shareDomain: shareDomain}
	if d.folderID, err = d.ensureFolder(ctx, folderName); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Drive) ensureFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	list, err := d.srv.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("find drive folder: %w", err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := d.srv.Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create drive folder: %w", err)
	}
	return folder.Id, nil
}

// Upload creates the file and shares it read-only with the domain, or with
// anyone holding the link when no domain is configured
func (d *Drive) Upload(ctx context.Context, name, contentType string, data []byte) (Object, error) {
	file, err := d.srv.Files.Create(&drive.File{Name: name, Parents: []string{d.folderID}}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id, webViewLink").Context(ctx).Do()
	if err != nil {
		return Object{}, fmt.Errorf("upload to drive: %w", err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if d.shareDomain != "" {
		perm = &drive.Permission{Type: "domain", Role: "reader", Domain: d.shareDomain}
	}
	if _, err := d.srv.Permissions.Create(file.Id, perm).Context(ctx).Do(); err != nil {
		_ = d.srv.Files.Delete(file.Id).Context(context.WithoutCancel(ctx)).Do()
		return Object{}, fmt.Errorf("share drive file: %w", err)
	}

	return Object{ExternalID: file.Id, Link: file.WebViewLink}, nil
}

// Delete removes one file
func (d *Drive) Delete(ctx context.Context, externalID string) error {
	err := d.srv.Files.Delete(externalID).Context(ctx).Do()
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, externalID)
	}
	return err
}

// DeleteAll removes every file in the upload folder
func (d *Drive) DeleteAll(ctx context.Context) (int, []error) {
	var ids []string
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(d.folderID))
	err := d.srv.Files.List().Q(q).Fields("nextPageToken, files(id)").Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			ids = append(ids, f.Id)
		}
		return nil
	})
	if err != nil {
		return 0, []error{fmt.Errorf("list drive folder: %w", err)}
	}

	var (
		deleted int
		errs    []error
	)
	for _, id := range ids {
		if err := d.srv.Files.Delete(id).Context(ctx).Do(); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// escapeQuery quotes a value for a Drive search expression
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
