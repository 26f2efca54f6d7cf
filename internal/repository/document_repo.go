package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// DocumentRepository handles uploaded document records
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document; a duplicate external id yields domain.ErrConflict
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	doc.CreatedAt = time.Now().UTC()

	var userID any
	if doc.UserID != 0 {
		userID = doc.UserID
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (name, shared_link, external_id, user_id, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.Name, doc.SharedLink, doc.ExternalID, userID, doc.ChunkCount, doc.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	doc.ID, err = res.LastInsertId()
	return err
}

// GetByExternalID retrieves a document by its document store id
func (r *DocumentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, shared_link, external_id, user_id, chunk_count, created_at, updated_at
		FROM documents WHERE external_id = ?
	`, externalID)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// List returns a page of documents, most recent first
func (r *DocumentRepository) List(ctx context.Context, page domain.Page) ([]*domain.Document, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, shared_link, external_id, user_id, chunk_count, created_at, updated_at
		FROM documents
		ORDER BY COALESCE(updated_at, created_at) DESC, id DESC
		LIMIT ? OFFSET ?
	`, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// DeleteByExternalID removes the record of one document
func (r *DocumentRepository) DeleteByExternalID(ctx context.Context, externalID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE external_id = ?`, externalID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll removes every document record and returns how many were removed
func (r *DocumentRepository) DeleteAll(ctx context.Context) (int, error) {
	var deleted int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents`)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}

func scanDocument(s scanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var link sql.NullString
	var userID sql.NullInt64
	var updatedAt sql.NullTime

	if err := s.Scan(&doc.ID, &doc.Name, &link, &doc.ExternalID, &userID,
		&doc.ChunkCount, &doc.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.SharedLink = link.String
	doc.UserID = userID.Int64
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	return doc, nil
}
