package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
)

// StatisticsStore persists chat exchange statistics
type StatisticsStore interface {
	Create(ctx context.Context, s *domain.ChatExchangeStatistic) error
	Summary(ctx context.Context, f domain.StatisticsFilter) (*domain.StatisticsSummary, error)
}

// Exchange describes one finished chat turn
type Exchange struct {
	UserID          *int64
	UserEmail       string
	Message         string
	Provider        string
	ResponseTime    time.Duration
	RAGContextFound bool
}

// StatisticsService records privacy-preserving features of chat turns
type StatisticsService struct {
	repo       StatisticsStore
	classifier *classifier.Classifier
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

// NewStatisticsService creates a new statistics service. Hour and weekday
// are reported in loc.
func NewStatisticsService(repo StatisticsStore, c *classifier.Classifier, loc *time.Location, logger *zap.Logger) *StatisticsService {
	return &StatisticsService{repo: repo, classifier: c, location: loc, logger: logger, now: time.Now}
}

// Record derives and stores the statistic for ex
func (s *StatisticsService) Record(ctx context.Context, ex Exchange) error {
	now := s.now()
	local := now.In(s.location)

	stat := &domain.ChatExchangeStatistic{
		UserID:          ex.UserID,
		MessageHash:     hashText(ex.Message),
		UserEmailHash:   hashText(strings.ToLower(ex.UserEmail)),
		MessageLength:   len([]rune(ex.Message)),
		Topic:           s.classifier.Classify(ex.Message, ""),
		IsQuestion:      IsQuestion(ex.Message),
		MessageType:     MessageType(ex.Message),
		RAGContextFound: ex.RAGContextFound,
		LLMProvider:     ex.Provider,
		HourOfDay:       local.Hour(),
		DayOfWeek:       (int(local.Weekday()) + 6) % 7,
		CreatedAt:       now.UTC(),
	}
	if ex.ResponseTime > 0 {
		ms := ex.ResponseTime.Milliseconds()
		stat.ResponseTimeMS = &ms
	}

	return s.repo.Create(ctx, stat)
}

// Summary aggregates recorded statistics
func (s *StatisticsService) Summary(ctx context.Context, f domain.StatisticsFilter) (*domain.StatisticsSummary, error) {
	return s.repo.Summary(ctx, f)
}

// Public reduces the all-time summary to totals and the most discussed
// topic names
func (s *StatisticsService) Public(ctx context.Context) (*domain.PublicStatistics, error) {
	summary, err := s.repo.Summary(ctx, domain.StatisticsFilter{})
	if err != nil {
		return nil, err
	}

	out := &domain.PublicStatistics{
		TotalMessages:       summary.TotalMessages,
		TotalQuestions:      summary.TotalQuestions,
		MostDiscussedTopics: make([]string, 0, domain.PublicTopicLimit),
	}
	for _, t := range summary.Topics {
		if len(out.MostDiscussedTopics) == domain.PublicTopicLimit {
			break
		}
		if t.Topic != "" {
			out.MostDiscussedTopics = append(out.MostDiscussedTopics, t.Topic)
		}
	}
	return out, nil
}

// MessageType classifies a message as command, question or statement
func MessageType(message string) string {
	text := strings.TrimSpace(message)
	switch {
	case strings.HasPrefix(text, "/"):
		return domain.MessageTypeCommand
	case IsQuestion(text):
		return domain.MessageTypeQuestion
	default:
		return domain.MessageTypeStatement
	}
}

// hashText returns the first 16 hex chars of the SHA-256 of s
func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
