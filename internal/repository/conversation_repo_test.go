package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

func TestConversationLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "grace@example.com")

	conv, err := repo.Create(ctx, user.ID)
	require.NoError(t, err)
	assert.NotZero(t, conv.ID)
	assert.Empty(t, conv.Messages)

	conv.Messages = append(conv.Messages,
		domain.Message{Role: domain.RoleUser, Content: "hi"},
		domain.Message{Role: domain.RoleAssistant, Content: "hello"},
	)
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return repo.WithTx(tx).UpdateMessages(ctx, conv)
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, conv.Messages, got.Messages)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestConversationGetMissing(t *testing.T) {
	db := newTestDB(t)
	got, err := NewConversationRepository(db).Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConversationCreateUnknownUser(t *testing.T) {
	db := newTestDB(t)
	_, err := NewConversationRepository(db).Create(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationUpdateMissing(t *testing.T) {
	db := newTestDB(t)
	err := NewConversationRepository(db).UpdateMessages(context.Background(), &domain.Conversation{ID: 42})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "ada@example.com")

	conv, err := repo.Create(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, conv.ID))
	got, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, conv.ID), domain.ErrNotFound)
}

func TestConversationListByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, alice.ID)
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, bob.ID)
	require.NoError(t, err)

	convs, total, err := repo.ListByUser(ctx, alice.ID, domain.NewPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, convs, 2)
	for _, c := range convs {
		assert.Equal(t, alice.ID, c.UserID)
	}
}

func TestConversationAppendTurnKeepsConcurrentTurns(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "lin@example.com")

	conv, err := repo.Create(ctx, user.ID)
	require.NoError(t, err)

	first := []domain.Message{{Role: domain.RoleUser, Content: "q1"}, {Role: domain.RoleAssistant, Content: "a1"}}
	second := []domain.Message{{Role: domain.RoleUser, Content: "q2"}, {Role: domain.RoleAssistant, Content: "a2"}}

	_, err = repo.AppendTurn(ctx, conv.ID, first...)
	require.NoError(t, err)
	got, err := repo.AppendTurn(ctx, conv.ID, second...)
	require.NoError(t, err)

	assert.Equal(t, append(first, second...), got.Messages)

	stored, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)
}

func TestConversationAppendTurnMissing(t *testing.T) {
	db := newTestDB(t)
	_, err := NewConversationRepository(db).AppendTurn(context.Background(), 7, domain.Message{Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationAppendSurvivesWriteBetweenReadAndUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	questions := NewQuestionRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "ines@example.com")

	conv, err := repo.Create(ctx, user.ID)
	require.NoError(t, err)

	inserted := make(chan error, 1)
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		txRepo := repo.WithTx(tx)
		current, err := txRepo.Get(ctx, conv.ID)
		if err != nil {
			return err
		}

		// another connection writes while this transaction sits between
		// its read and its update
		go func() {
			inserted <- questions.Create(ctx, &domain.AnonymousQuestion{Topic: "Databases", Question: "why?"})
		}()
		time.Sleep(50 * time.Millisecond)

		current.Messages = append(current.Messages,
			domain.Message{Role: domain.RoleUser, Content: "q"},
			domain.Message{Role: domain.RoleAssistant, Content: "a"},
		)
		return txRepo.UpdateMessages(ctx, current)
	})
	require.NoError(t, err)
	require.NoError(t, <-inserted)

	stored, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)

	_, total, err := questions.List(ctx, "", domain.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestConversationConcurrentAppendsWithOtherWrites(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	questions := NewQuestionRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "jo@example.com")

	conv, err := repo.Create(ctx, user.ID)
	require.NoError(t, err)

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendTurn(ctx, conv.ID,
				domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("q%d", i)},
				domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			)
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, questions.Create(ctx, &domain.AnonymousQuestion{Topic: "Outros", Question: fmt.Sprintf("q%d?", i)}))
		}(i)
	}
	wg.Wait()

	stored, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2*turns)
}
