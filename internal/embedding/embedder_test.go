package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	documentCalls [][]string
	queryCalls    []string
	err           error
}

func (e *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.documentCalls = append(e.documentCalls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queryCalls = append(e.queryCalls, text)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCacheEmbedDocumentsSkipsKnownTexts(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner)
	ctx := context.Background()

	_, err := cache.EmbedDocuments(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	vecs, err := cache.EmbedDocuments(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[1])
	assert.Equal(t, []float32{1, 1}, vecs[2])

	require.Len(t, inner.documentCalls, 2)
	assert.Equal(t, []string{"ccc"}, inner.documentCalls[1])
}

func TestCacheEmbedQueryAndReset(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCache(inner)
	ctx := context.Background()

	_, err := cache.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	_, err = cache.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	assert.Len(t, inner.queryCalls, 1)
	assert.Equal(t, 1, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	assert.Len(t, inner.queryCalls, 2)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("offline")}
	cache := NewCache(inner)

	_, err := cache.EmbedQuery(context.Background(), "q")
	assert.Error(t, err)
	_, err = cache.EmbedDocuments(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "word2vec"})
	assert.Error(t, err)
}
