package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// ConversationRepository is the conversation state store
type ConversationRepository struct {
	db *DB
	q  querier
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db, q: db}
}

// WithTx returns a copy of the repository bound to tx
func (r *ConversationRepository) WithTx(tx *sql.Tx) *ConversationRepository {
	return &ConversationRepository{db: r.db, q: tx}
}

// Create creates a new, empty conversation for userID
func (r *ConversationRepository) Create(ctx context.Context, userID int64) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		UserID:    userID,
		Messages:  []domain.Message{},
		CreatedAt: time.Now().UTC(),
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO conversations (user_id, messages, created_at)
		VALUES (?, '[]', ?)
	`, conv.UserID, conv.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}

	if conv.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get retrieves a conversation by ID; absent conversations return (nil, nil)
func (r *ConversationRepository) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, messages, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// UpdateMessages writes back the whole message list of a conversation
func (r *ConversationRepository) UpdateMessages(ctx context.Context, conv *domain.Conversation) error {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	conv.UpdatedAt = time.Now().UTC()

	res, err := r.q.ExecContext(ctx, `
		UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?
	`, string(messagesJSON), conv.UpdatedAt, conv.ID)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendTurn appends messages to a stored conversation inside its own
// transaction. The list is reloaded first, so turns committed by other
// requests in the meantime are kept.
func (r *ConversationRepository) AppendTurn(ctx context.Context, id int64, messages ...domain.Message) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		txRepo := r.WithTx(tx)

		current, err := txRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		current.Messages = append(current.Messages, messages...)
		if err := txRepo.UpdateMessages(ctx, current); err != nil {
			return err
		}
		conv = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete removes a conversation; a missing row is ErrNotFound
func (r *ConversationRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUser lists the conversations of a user, most recent first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID int64, page domain.Page) ([]*domain.Conversation, int, error) {
	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, messages, created_at, updated_at
		FROM conversations WHERE user_id = ?
		ORDER BY COALESCE(updated_at, created_at) DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, conv)
	}
	return convs, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var messagesJSON string
	var updatedAt sql.NullTime

	if err := s.Scan(&conv.ID, &conv.UserID, &messagesJSON, &conv.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		conv.UpdatedAt = updatedAt.Time
	}
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of conversation %d: %w", conv.ID, err)
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	return conv, nil
}
