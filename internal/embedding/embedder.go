// Package embedding builds the text embedder used for chunks and queries.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config selects and configures the embedding backend
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
}

// New creates an embedder for the configured provider
func New(cfg Config) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai embedding client: %w", err)
		}
		client = llm
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedding client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	var opts []embeddings.Option
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	return embeddings.NewEmbedder(client, opts...)
}

// Cache memoizes vectors by text in front of another embedder. It is
// shared across requests, so callers Reset it once a search is done.
type Cache struct {
	inner embeddings.Embedder

	mu      sync.Mutex
	vectors map[string][]float32
}

// NewCache wraps inner with a memo table
func NewCache(inner embeddings.Embedder) *Cache {
	return &Cache{inner: inner, vectors: make(map[string][]float32)}
}

// EmbedDocuments embeds texts, only sending the ones not seen before
func (c *Cache) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, t := range texts {
		if v, ok := c.vectors[t]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	c.mu.Lock()
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.vectors[missing[j]] = v
	}
	c.mu.Unlock()
	return out, nil
}

// EmbedQuery embeds a single text
func (c *Cache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	v, ok := c.vectors[text]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.vectors[text] = v
	c.mu.Unlock()
	return v, nil
}

// Len reports how many vectors are cached
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

// Reset drops every cached vector
func (c *Cache) Reset() {
	c.mu.Lock()
	c.vectors = make(map[string][]float32)
	c.mu.Unlock()
}
