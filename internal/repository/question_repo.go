package repository

import (
	"context"
	"strings"
	"time"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// QuestionRepository stores anonymous questions
type QuestionRepository struct {
	db *DB
}

// NewQuestionRepository creates a new anonymous question repository
func NewQuestionRepository(db *DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts an anonymous question
func (r *QuestionRepository) Create(ctx context.Context, q *domain.AnonymousQuestion) error {
	q.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO anonymous_questions (topic, question, created_at)
		VALUES (?, ?, ?)
	`, q.Topic, q.Question, q.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	q.ID, err = res.LastInsertId()
	return err
}

// List returns a page of questions, newest first. A non-empty topic
// filters by case-insensitive substring.
func (r *QuestionRepository) List(ctx context.Context, topic string, page domain.Page) ([]*domain.AnonymousQuestion, int, error) {
	where := ""
	var args []any
	if topic = strings.TrimSpace(topic); topic != "" {
		where = ` WHERE LOWER(topic) LIKE ?`
		args = append(args, "%"+strings.ToLower(topic)+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anonymous_questions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, topic, question, created_at FROM anonymous_questions`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var questions []*domain.AnonymousQuestion
	for rows.Next() {
		q := &domain.AnonymousQuestion{}
		if err := rows.Scan(&q.ID, &q.Topic, &q.Question, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		questions = append(questions, q)
	}
	return questions, total, rows.Err()
}

// CountByTopic returns, for every topic that has questions, the count and
// the creation time of its newest question, most common first
func (r *QuestionRepository) CountByTopic(ctx context.Context) ([]domain.TopicStat, error) {
	// joining back on the newest row keeps created_at a typed column
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.topic, g.n, q.created_at
		FROM (
			SELECT topic, COUNT(*) AS n, MAX(id) AS last_id
			FROM anonymous_questions GROUP BY topic
		) g
		JOIN anonymous_questions q ON q.id = g.last_id
		ORDER BY g.n DESC, g.topic ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.TopicStat
	for rows.Next() {
		var ts domain.TopicStat
		var latest time.Time
		if err := rows.Scan(&ts.Topic, &ts.Count, &latest); err != nil {
			return nil, err
		}
		ts.LatestQuestionDate = &latest
		stats = append(stats, ts)
	}
	return stats, rows.Err()
}
