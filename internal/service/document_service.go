package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/ingest"
	"github.com/liliang-cn/ragmentor/internal/storage"
)

// Ingester turns an uploaded file into indexed chunks
type Ingester interface {
	IngestDocument(ctx context.Context, src ingest.Source) (int, error)
}

// DocumentIndex is the chunk side of document management
type DocumentIndex interface {
	DeleteByProvenance(ctx context.Context, externalID string) (domain.DeleteResult, error)
	DeleteAll(ctx context.Context) (int, error)
	List(ctx context.Context, limit int) ([]domain.StoredChunk, error)
	CollectionInfo() domain.CollectionInfo
}

// DocumentRecords persists document rows
type DocumentRecords interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.Document, error)
	List(ctx context.Context, page domain.Page) ([]*domain.Document, int, error)
	DeleteByExternalID(ctx context.Context, externalID string) error
	DeleteAll(ctx context.Context) (int, error)
}

// DocumentService coordinates the document store, the ingestion pipeline,
// the vector index and the relational records
type DocumentService struct {
	files    storage.Store
	pipeline Ingester
	index    DocumentIndex
	repo     DocumentRecords
	logger   *zap.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(files storage.Store, pipeline Ingester, index DocumentIndex, repo DocumentRecords, logger *zap.Logger) *DocumentService {
	return &DocumentService{files: files, pipeline: pipeline, index: index, repo: repo, logger: logger}
}

// Upload stores the original, indexes it and records it. When indexing
// fails the stored original is removed again.
func (s *DocumentService) Upload(ctx context.Context, userID int64, filename, contentType string, data []byte) (*domain.Document, error) {
	filename = filepath.Base(filename)
	if !ingest.IsSupported(ingest.DetectFileType(filename)) {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidRequest, filepath.Ext(filename))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidRequest)
	}

	obj, err := s.files.Upload(ctx, filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("%w: store %s: %v", domain.ErrUpstream, filename, err)
	}

	chunks, err := s.pipeline.IngestDocument(ctx, ingest.Source{
		Data:       data,
		Filename:   filename,
		Link:       obj.Link,
		ExternalID: obj.ExternalID,
	})
	if err != nil {
		s.discardObject(ctx, obj.ExternalID)
		if errors.Is(err, ingest.ErrNoText) || errors.Is(err, ingest.ErrUnsupportedFileType) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: ingest %s: %v", domain.ErrUpstream, filename, err)
	}

	doc := &domain.Document{
		Name:       filename,
		SharedLink: obj.Link,
		ExternalID: obj.ExternalID,
		UserID:     userID,
		ChunkCount: chunks,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if _, derr := s.index.DeleteByProvenance(context.WithoutCancel(ctx), obj.ExternalID); derr != nil {
			s.logger.Error("Failed to remove chunks of unrecorded document",
				zap.String("external_id", obj.ExternalID), zap.Error(derr))
		}
		s.discardObject(ctx, obj.ExternalID)
		return nil, fmt.Errorf("record document: %w", err)
	}

	s.logger.Info("Document uploaded",
		zap.Int64("document_id", doc.ID),
		zap.String("name", doc.Name),
		zap.String("external_id", doc.ExternalID),
		zap.Int("chunks", chunks))
	return doc, nil
}

func (s *DocumentService) discardObject(ctx context.Context, externalID string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), externalID); err != nil {
		s.logger.Error("Failed to remove stored original", zap.String("external_id", externalID), zap.Error(err))
	}
}

// List returns recorded documents, most recent first
func (s *DocumentService) List(ctx context.Context, page domain.Page) (*domain.DocumentListResponse, error) {
	docs, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	return &domain.DocumentListResponse{Documents: docs, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// Delete removes a document from the document store, the index and the
// records, in that order. A document store failure aborts before anything
// else is touched; index failures are reported in the result.
func (s *DocumentService) Delete(ctx context.Context, externalID string) (domain.DeleteResult, error) {
	doc, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	if doc == nil {
		return domain.DeleteResult{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, externalID)
	}

	if err := s.files.Delete(ctx, externalID); err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return domain.DeleteResult{}, fmt.Errorf("%w: delete stored original: %v", domain.ErrUpstream, err)
		}
		s.logger.Warn("Stored original already gone", zap.String("external_id", externalID))
	}

	result, err := s.index.DeleteByProvenance(ctx, externalID)
	if err != nil {
		s.logger.Error("Failed to delete document chunks", zap.String("external_id", externalID), zap.Error(err))
		result.Error = err.Error()
	}

	if err := s.repo.DeleteByExternalID(ctx, externalID); err != nil {
		return result, fmt.Errorf("delete document record: %w", err)
	}

	s.logger.Info("Document deleted", zap.String("external_id", externalID), zap.Int("chunks", result.DeletedCount))
	return result, nil
}

// DeleteAll empties every subsystem. Each one is attempted regardless of
// the others; the report is advisory and not transactional.
func (s *DocumentService) DeleteAll(ctx context.Context) domain.DeleteAllReport {
	var report domain.DeleteAllReport

	deleted, errs := s.files.DeleteAll(ctx)
	report.DocumentStore = domain.SubsystemReport{Deleted: deleted, Errors: errorStrings(errs)}

	if n, err := s.index.DeleteAll(ctx); err != nil {
		report.VectorStore = domain.SubsystemReport{Errors: []string{err.Error()}}
	} else {
		report.VectorStore = domain.SubsystemReport{Deleted: n, Errors: []string{}}
	}

	if n, err := s.repo.DeleteAll(ctx); err != nil {
		report.Database = domain.SubsystemReport{Errors: []string{err.Error()}}
	} else {
		report.Database = domain.SubsystemReport{Deleted: n, Errors: []string{}}
	}

	report.Summarize()
	if report.Summary.Success {
		s.logger.Info("All documents deleted", zap.Int("total_deleted", report.Summary.TotalDeleted))
	} else {
		s.logger.Warn("Bulk document deletion finished with errors",
			zap.Int("total_deleted", report.Summary.TotalDeleted),
			zap.Int("total_errors", report.Summary.TotalErrors))
	}
	return report
}

// CollectionInfo describes the vector collection
func (s *DocumentService) CollectionInfo() domain.CollectionInfo {
	return s.index.CollectionInfo()
}

// ListChunks returns the collection summary and up to limit indexed chunks
func (s *DocumentService) ListChunks(ctx context.Context, limit int) (*domain.ChunkListing, error) {
	chunks, err := s.index.List(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list chunks", zap.Error(err))
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return &domain.ChunkListing{CollectionInfo: s.index.CollectionInfo(), Documents: chunks}, nil
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
