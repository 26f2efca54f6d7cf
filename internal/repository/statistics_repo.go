package repository

import (
	"context"
	"strings"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// StatisticsRepository stores chat exchange statistics
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new statistics repository
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Create inserts one exchange statistic
func (r *StatisticsRepository) Create(ctx context.Context, s *domain.ChatExchangeStatistic) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_statistics (
			user_id, message_hash, user_email_hash, message_length, topic,
			is_question, message_type, response_time_ms, rag_context_found,
			llm_provider, hour_of_day, day_of_week, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.UserID, s.MessageHash, s.UserEmailHash, s.MessageLength, s.Topic,
		s.IsQuestion, s.MessageType, s.ResponseTimeMS, s.RAGContextFound,
		s.LLMProvider, s.HourOfDay, s.DayOfWeek, s.CreatedAt.UTC())
	if err != nil {
		return mapError(err)
	}

	s.ID, err = res.LastInsertId()
	return err
}

// Summary aggregates statistics within the filter's time bounds
func (r *StatisticsRepository) Summary(ctx context.Context, f domain.StatisticsFilter) (*domain.StatisticsSummary, error) {
	where, args := statisticsWhere(f)

	sum := &domain.StatisticsSummary{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_question), 0),
			COALESCE(SUM(CASE WHEN message_type = 'command' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(message_length), 0),
			COALESCE(AVG(response_time_ms), 0),
			COALESCE(SUM(rag_context_found), 0),
			COUNT(DISTINCT user_email_hash)
		FROM chat_statistics`+where, args...).Scan(
		&sum.TotalMessages, &sum.TotalQuestions, &sum.TotalCommands,
		&sum.AverageLength, &sum.AverageResponseMS, &sum.RAGContextFound, &sum.UniqueUsers)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(topic, ''), COUNT(*) AS n FROM chat_statistics`+where+`
		GROUP BY topic ORDER BY n DESC, topic ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tc domain.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, err
		}
		sum.Topics = append(sum.Topics, tc)
	}
	return sum, rows.Err()
}

func statisticsWhere(f domain.StatisticsFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.End.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
