package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

func TestDocumentCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	ctx := context.Background()
	owner := createUser(t, db, "kim@example.com")

	doc := &domain.Document{Name: "sql.pdf", SharedLink: "https://x/1", ExternalID: "ext-1", UserID: owner.ID, ChunkCount: 4}
	require.NoError(t, repo.Create(ctx, doc))
	assert.NotZero(t, doc.ID)

	got, err := repo.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sql.pdf", got.Name)
	assert.Equal(t, owner.ID, got.UserID)
	assert.Equal(t, 4, got.ChunkCount)

	missing, err := repo.GetByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, &domain.Document{Name: "dup.pdf", ExternalID: "ext-1"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDocumentWithoutOwnerOrLink(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Document{Name: "local.txt", ExternalID: "local-1"}))
	got, err := repo.GetByExternalID(ctx, "local-1")
	require.NoError(t, err)
	assert.Zero(t, got.UserID)
	assert.Empty(t, got.SharedLink)
}

func TestDocumentListAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Document{Name: fmt.Sprintf("d%d.txt", i), ExternalID: fmt.Sprintf("e%d", i)}))
	}

	docs, total, err := repo.List(ctx, domain.NewPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, docs, 2)
	assert.Equal(t, "e4", docs[0].ExternalID)

	require.NoError(t, repo.DeleteByExternalID(ctx, "e0"))
	assert.ErrorIs(t, repo.DeleteByExternalID(ctx, "e0"), domain.ErrNotFound)

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	_, total, err = repo.List(ctx, domain.NewPage(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}
