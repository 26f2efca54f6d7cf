// Package ingest turns uploaded files into chunks in the retrieval store.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// FileType constants
const (
	FileTypePDF  = "pdf"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
	FileTypeHTML = "html"
)

var (
	// ErrUnsupportedFileType is returned for formats without an extractor
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrNoText is returned when extraction yields no usable text
	ErrNoText = errors.New("no extractable text")
)

// DetectFileType detects file type from filename
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FileTypePDF
	case ".md", ".markdown":
		return FileTypeMD
	case ".txt":
		return FileTypeTXT
	case ".html", ".htm":
		return FileTypeHTML
	case "":
		return ""
	default:
		return ext[1:]
	}
}

// IsSupported checks if file type is supported
func IsSupported(fileType string) bool {
	switch fileType {
	case FileTypePDF, FileTypeMD, FileTypeTXT, FileTypeHTML:
		return true
	}
	return false
}

// Indexer receives chunks ready for embedding
type Indexer interface {
	Ingest(ctx context.Context, chunks []domain.Chunk) error
}

// Source is an uploaded file plus its document store provenance
type Source struct {
	Data       []byte
	Filename   string
	Link       string
	ExternalID string
}

// Pipeline extracts, splits and indexes documents
type Pipeline struct {
	splitter textsplitter.TextSplitter
	indexer  Indexer
	logger   *zap.Logger
}

// NewPipeline creates a pipeline splitting on character length
func NewPipeline(indexer Indexer, chunkSize, chunkOverlap int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		indexer: indexer,
		logger:  logger,
	}
}

// IngestDocument indexes src and returns the number of chunks written.
// Nothing is indexed unless every step before the write succeeds.
func (p *Pipeline) IngestDocument(ctx context.Context, src Source) (int, error) {
	chunks, err := p.Chunk(ctx, src)
	if err != nil {
		p.logger.Error("document preparation failed", zap.String("filename", src.Filename), zap.Error(err))
		return 0, err
	}

	if err := p.indexer.Ingest(ctx, chunks); err != nil {
		p.logger.Error("document indexing failed", zap.String("filename", src.Filename), zap.Error(err))
		return 0, fmt.Errorf("index %s: %w", src.Filename, err)
	}

	p.logger.Info("document ingested",
		zap.String("filename", src.Filename),
		zap.String("external_id", src.ExternalID),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Chunk extracts and splits src without indexing it
func (p *Pipeline) Chunk(ctx context.Context, src Source) ([]domain.Chunk, error) {
	pages, err := extractPages(ctx, src)
	if err != nil {
		return nil, err
	}

	parts, err := textsplitter.SplitDocuments(p.splitter, pages)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", src.Filename, err)
	}

	prefix := src.Filename
	if prefix == "" {
		prefix = uuid.NewString()
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	for _, part := range parts {
		text := strings.TrimSpace(part.PageContent)
		if text == "" {
			continue
		}
		idx := len(chunks)

		meta := map[string]string{
			domain.MetadataKeySource:  src.Filename,
			domain.MetadataKeyChunkID: strconv.Itoa(idx),
			domain.MetadataKeyPage:    pageOf(part),
		}
		if src.Link != "" {
			meta[domain.MetadataKeyLink] = src.Link
		}
		if src.ExternalID != "" {
			meta[domain.MetadataKeyFileID] = src.ExternalID
		}

		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("%s_%d", prefix, idx),
			Text:     text,
			Metadata: meta,
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", src.Filename, ErrNoText)
	}
	return chunks, nil
}

func extractPages(ctx context.Context, src Source) ([]schema.Document, error) {
	fileType := DetectFileType(src.Filename)
	r := bytes.NewReader(src.Data)

	var (
		docs []schema.Document
		err  error
	)
	switch fileType {
	case FileTypePDF:
		docs, err = documentloaders.NewPDF(r, int64(len(src.Data))).Load(ctx)
	case FileTypeTXT, FileTypeMD:
		docs, err = documentloaders.NewText(r).Load(ctx)
	case FileTypeHTML:
		docs, err = documentloaders.NewHTML(r).Load(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", src.Filename, err)
	}

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		if _, ok := docs[i].Metadata[domain.MetadataKeyPage]; !ok {
			docs[i].Metadata[domain.MetadataKeyPage] = i + 1
		}
	}
	return docs, nil
}

func pageOf(doc schema.Document) string {
	switch v := doc.Metadata[domain.MetadataKeyPage].(type) {
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	case nil:
		return "1"
	default:
		return fmt.Sprint(v)
	}
}
