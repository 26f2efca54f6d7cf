package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// UserRepository is the user directory
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; a duplicate email yields domain.ErrConflict
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Role == "" {
		user.Role = domain.UserRoleUser
	}
	user.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (name, email, avatar_url, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Name, user.Email, user.AvatarURL, user.Role, user.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	user.ID, err = res.LastInsertId()
	return err
}

// GetByEmail looks a user up by email; absent users return (nil, nil)
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar_url, role, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar_url, role, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

// SetRole changes the role of a user
func (r *UserRepository) SetRole(ctx context.Context, id int64, role string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, role, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var avatar sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(&user.ID, &user.Name, &user.Email, &avatar, &user.Role, &user.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.AvatarURL = avatar.String
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	}
	return user, nil
}
