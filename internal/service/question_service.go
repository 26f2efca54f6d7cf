package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
)

// questionIndicators are matched as case-insensitive substrings
var questionIndicators = []string{
	"how", "what", "why", "when", "where", "which", "who",
	"i don't understand", "i do not understand", "can you explain",
	"could you explain", "help me", "is it possible", "what's the difference",
	"difference between",
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(is|are|can|could|should|would|does|do|did|will|has|have)\s`),
	regexp.MustCompile(`(?i)\b(explain|clarify|describe)\b`),
	regexp.MustCompile(`(?i)\bnot sure (how|what|why|if)\b`),
}

// IsQuestion reports whether message reads as a question
func IsQuestion(message string) bool {
	text := strings.TrimSpace(message)
	if strings.HasSuffix(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, indicator := range questionIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	for _, re := range questionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// QuestionStore persists anonymous questions
type QuestionStore interface {
	Create(ctx context.Context, q *domain.AnonymousQuestion) error
	List(ctx context.Context, topic string, page domain.Page) ([]*domain.AnonymousQuestion, int, error)
	CountByTopic(ctx context.Context) ([]domain.TopicStat, error)
}

// QuestionService detects and logs anonymous questions
type QuestionService struct {
	classifier *classifier.Classifier
	repo       QuestionStore
	logger     *zap.Logger
}

// NewQuestionService creates a new question service
func NewQuestionService(c *classifier.Classifier, repo QuestionStore, logger *zap.Logger) *QuestionService {
	return &QuestionService{classifier: c, repo: repo, logger: logger}
}

// DetectAndLog stores message as an anonymous question when it reads as
// one. It returns nil without side effects otherwise.
func (s *QuestionService) DetectAndLog(ctx context.Context, message, extra string) (*domain.AnonymousQuestion, error) {
	if !IsQuestion(message) {
		return nil, nil
	}

	q := &domain.AnonymousQuestion{
		Topic:    strings.TrimSpace(s.classifier.Classify(message, extra)),
		Question: message,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("log anonymous question: %w", err)
	}

	s.logger.Debug("Anonymous question logged", zap.Int64("id", q.ID), zap.String("topic", q.Topic))
	return q, nil
}

// Submit stores a manually submitted question. The topic is classified
// from the question text when the caller leaves it empty.
func (s *QuestionService) Submit(ctx context.Context, req domain.QuestionCreateRequest) (*domain.AnonymousQuestion, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = s.classifier.Classify(question, "")
	}

	q := &domain.AnonymousQuestion{Topic: topic, Question: question}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("store anonymous question: %w", err)
	}
	s.logger.Info("Anonymous question submitted", zap.Int64("id", q.ID), zap.String("topic", q.Topic))
	return q, nil
}

// List returns logged questions, optionally filtered by topic substring
func (s *QuestionService) List(ctx context.Context, topic string, page domain.Page) (*domain.QuestionListResponse, error) {
	questions, total, err := s.repo.List(ctx, strings.TrimSpace(topic), page)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []*domain.AnonymousQuestion{}
	}
	return &domain.QuestionListResponse{
		Questions: questions,
		Total:     total,
		Page:      page.Page,
		PageSize:  page.PageSize,
	}, nil
}

// Stats counts questions per topic. Every configured topic is listed, with
// zero and no latest date when nothing was logged under it.
func (s *QuestionService) Stats(ctx context.Context) (*domain.QuestionStats, error) {
	counts, err := s.repo.CountByTopic(ctx)
	if err != nil {
		return nil, err
	}

	byTopic := make(map[string]domain.TopicStat, len(counts))
	stats := &domain.QuestionStats{}
	for _, c := range counts {
		byTopic[c.Topic] = c
		stats.TotalQuestions += c.Count
	}
	for _, name := range s.classifier.Names() {
		if _, ok := byTopic[name]; !ok {
			byTopic[name] = domain.TopicStat{Topic: name}
		}
	}

	stats.Topics = make([]domain.TopicStat, 0, len(byTopic))
	for _, ts := range byTopic {
		stats.Topics = append(stats.Topics, ts)
	}
	sort.Slice(stats.Topics, func(i, j int) bool {
		a, b := stats.Topics[i], stats.Topics[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Topic < b.Topic
	})
	return stats, nil
}

// Popular returns the limit topics with the most questions
func (s *QuestionService) Popular(ctx context.Context, limit int) ([]domain.TopicStat, error) {
	if limit <= 0 {
		limit = 5
	}
	counts, err := s.repo.CountByTopic(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}
	if counts == nil {
		counts = []domain.TopicStat{}
	}
	return counts, nil
}
