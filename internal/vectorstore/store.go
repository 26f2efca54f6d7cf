// Package vectorstore adapts a chromem collection into the retrieval store
// used for document chunks.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// DefaultTopK is the number of hits returned when the caller passes k <= 0
const DefaultTopK = 4

// DefaultListLimit caps List when the caller passes limit <= 0
const DefaultListLimit = 100

// previewRunes is the length of the content preview returned by List
const previewRunes = 200

// listAnchor is embedded to rank the collection for List; chromem has no
// plain scan, so listing is a nearest-neighbour query over every chunk.
const listAnchor = "document"

const (
	statusActive = "active"
	statusError  = "error"

	// batchKey tags every chunk of one Ingest call so a failed batch can be
	// removed as a unit.
	batchKey = "ingest_batch"
)

// ErrEmptyProvenance is returned when deleting by an empty external id
var ErrEmptyProvenance = errors.New("external file id is empty")

// resetter is implemented by embedders holding a shared cache
type resetter interface {
	Reset()
}

// Store wraps one chromem collection. Writes and deletes are serialized so
// that count differences are exact; searches run concurrently.
type Store struct {
	db       *chromem.DB
	name     string
	embedder embeddings.Embedder
	logger   *zap.Logger

	mu  sync.RWMutex
	col *chromem.Collection
}

// New opens (or creates) the named collection. An empty path keeps the
// index in memory.
func New(path, name string, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	s := &Store{db: db, name: name, embedder: embedder, logger: logger}
	col, err := db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", name, err)
	}
	s.col = col

	logger.Info("vector collection ready", zap.String("collection", name), zap.Int("count", col.Count()))
	return s, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.EmbedQuery(ctx, text)
}

// Ingest embeds every chunk and writes it to the collection. If the write
// fails midway, the chunks already written for this call are removed.
func (s *Store) Ingest(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	// ingest vectors are never queried again
	if r, ok := s.embedder.(resetter); ok {
		defer r.Reset()
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		s.logger.Error("embedding chunks failed", zap.Error(err))
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	batch := uuid.NewString()
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]string, len(c.Metadata)+1)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta[batchKey] = batch

		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		s.logger.Error("adding chunks failed, removing partial batch",
			zap.String("batch", batch), zap.Int("chunks", len(docs)), zap.Error(err))
		if derr := s.col.Delete(context.WithoutCancel(ctx), map[string]string{batchKey: batch}, nil); derr != nil {
			s.logger.Error("removing partial batch failed", zap.String("batch", batch), zap.Error(derr))
		}
		return fmt.Errorf("add chunks: %w", err)
	}

	s.logger.Info("chunks ingested", zap.Int("chunks", len(docs)), zap.Int("total", s.col.Count()))
	return nil
}

// Search returns the k chunks most similar to query, best first
func (s *Store) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if r, ok := s.embedder.(resetter); ok {
		defer r.Reset()
	}
	if k <= 0 {
		k = DefaultTopK
	}

	s.mu.RLock()
	col := s.col
	s.mu.RUnlock()

	n := col.Count()
	if n == 0 {
		return []domain.SearchHit{}, nil
	}
	if k > n {
		k = n
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(results))
	for _, r := range results {
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key != batchKey {
				meta[key] = v
			}
		}
		hits = append(hits, domain.SearchHit{Content: r.Content, Metadata: meta, Similarity: r.Similarity})
	}
	return hits, nil
}

// List returns up to limit stored chunks ordered by id, with a short
// content preview next to the full text
func (s *Store) List(ctx context.Context, limit int) ([]domain.StoredChunk, error) {
	if r, ok := s.embedder.(resetter); ok {
		defer r.Reset()
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	col := s.col
	s.mu.RUnlock()

	n := col.Count()
	if n == 0 {
		return []domain.StoredChunk{}, nil
	}
	if limit > n {
		limit = n
	}

	vector, err := s.embedder.EmbedQuery(ctx, listAnchor)
	if err != nil {
		return nil, fmt.Errorf("embed list anchor: %w", err)
	}
	results, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	chunks := make([]domain.StoredChunk, 0, len(results))
	for _, r := range results {
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key != batchKey {
				meta[key] = v
			}
		}
		chunks = append(chunks, domain.StoredChunk{
			ID:          r.ID,
			Content:     preview(r.Content),
			FullContent: r.Content,
			Metadata:    meta,
		})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// DeleteByProvenance removes every chunk carrying externalID. A miss is
// reported with a zero count and an informational message.
func (s *Store) DeleteByProvenance(ctx context.Context, externalID string) (domain.DeleteResult, error) {
	result := domain.DeleteResult{ExternalID: externalID}
	if externalID == "" {
		return result, ErrEmptyProvenance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.col.Count()
	if err := s.col.Delete(ctx, map[string]string{domain.MetadataKeyFileID: externalID}, nil); err != nil {
		result.Error = err.Error()
		result.DeletedCount = before - s.col.Count()
		return result, fmt.Errorf("delete chunks of %s: %w", externalID, err)
	}

	result.DeletedCount = before - s.col.Count()
	if result.DeletedCount == 0 {
		result.Message = "No documents found"
	}
	s.logger.Info("chunks deleted by provenance",
		zap.String("external_id", externalID), zap.Int("deleted", result.DeletedCount))
	return result, nil
}

// DeleteAll drops and recreates the collection, returning the previous count
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.col.Count()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return 0, fmt.Errorf("delete collection %q: %w", s.name, err)
	}

	col, err := s.db.CreateCollection(s.name, nil, s.embed)
	if err != nil {
		return 0, fmt.Errorf("recreate collection %q: %w", s.name, err)
	}
	s.col = col

	s.logger.Info("collection reset", zap.String("collection", s.name), zap.Int("deleted", before))
	return before, nil
}

// CollectionInfo describes the collection
func (s *Store) CollectionInfo() domain.CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.col == nil {
		return domain.CollectionInfo{Name: s.name, Status: statusError, Error: "collection is not open"}
	}
	return domain.CollectionInfo{Name: s.name, Count: s.col.Count(), Status: statusActive}
}
