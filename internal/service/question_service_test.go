package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
)

type memoryQuestions struct {
	created []*domain.AnonymousQuestion
	counts  []domain.TopicStat
	err     error
}

func (m *memoryQuestions) Create(_ context.Context, q *domain.AnonymousQuestion) error {
	if m.err != nil {
		return m.err
	}
	q.ID = int64(len(m.created) + 1)
	m.created = append(m.created, q)
	return nil
}

func (m *memoryQuestions) List(_ context.Context, _ string, _ domain.Page) ([]*domain.AnonymousQuestion, int, error) {
	return m.created, len(m.created), m.err
}

func (m *memoryQuestions) CountByTopic(context.Context) ([]domain.TopicStat, error) {
	return m.counts, m.err
}

func newQuestionService(t *testing.T, repo QuestionStore) *QuestionService {
	t.Helper()
	c, err := classifier.Default(zap.NewNop())
	require.NoError(t, err)
	return NewQuestionService(c, repo, zap.NewNop())
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"Does this compile", true},
		{"xyz?", true},
		{"12345 ?", true},
		{"How do I write a test", true},
		{"I don't understand interfaces", true},
		{"Can you explain closures", true},
		{"Please explain the output", true},
		{"Thanks, that worked perfectly", false},
		{"ok", false},
		{"/challenge recursion", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.message))
		})
	}
}

func TestDetectAndLogQuestion(t *testing.T) {
	repo := &memoryQuestions{}
	svc := newQuestionService(t, repo)

	q, err := svc.DetectAndLog(context.Background(), "Why does my loop not terminate?", "")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "Programming and Development", q.Topic)
	assert.Equal(t, "Why does my loop not terminate?", q.Question)
	assert.Len(t, repo.created, 1)
}

func TestDetectAndLogIgnoresStatements(t *testing.T) {
	repo := &memoryQuestions{}
	svc := newQuestionService(t, repo)

	q, err := svc.DetectAndLog(context.Background(), "Thanks, that worked perfectly", "")
	require.NoError(t, err)
	assert.Nil(t, q)
	assert.Empty(t, repo.created)
}

func TestDetectAndLogUnmatchedTopic(t *testing.T) {
	repo := &memoryQuestions{}
	svc := newQuestionService(t, repo)

	q, err := svc.DetectAndLog(context.Background(), "zzz?", "")
	require.NoError(t, err)
	assert.Equal(t, domain.OtherTopic, q.Topic)
}

func TestDetectAndLogPropagatesStoreFailure(t *testing.T) {
	svc := newQuestionService(t, &memoryQuestions{err: errors.New("disk full")})

	_, err := svc.DetectAndLog(context.Background(), "what?", "")
	assert.Error(t, err)
}

func TestQuestionStatsIncludesEveryTopic(t *testing.T) {
	latest := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)
	repo := &memoryQuestions{counts: []domain.TopicStat{
		{Topic: "Databases", Count: 3, LatestQuestionDate: &latest},
		{Topic: domain.OtherTopic, Count: 1, LatestQuestionDate: &latest},
	}}
	svc := newQuestionService(t, repo)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalQuestions)
	assert.Equal(t, "Databases", stats.Topics[0].Topic)
	assert.Equal(t, 3, stats.Topics[0].Count)
	require.NotNil(t, stats.Topics[0].LatestQuestionDate)
	assert.True(t, latest.Equal(*stats.Topics[0].LatestQuestionDate))
	assert.Equal(t, domain.OtherTopic, stats.Topics[1].Topic)
	assert.Len(t, stats.Topics, len(svc.classifier.Names())+1)

	for i := 2; i < len(stats.Topics)-1; i++ {
		assert.Zero(t, stats.Topics[i].Count)
		assert.Nil(t, stats.Topics[i].LatestQuestionDate)
		assert.Less(t, stats.Topics[i].Topic, stats.Topics[i+1].Topic)
	}
}

func TestPopularTopics(t *testing.T) {
	repo := &memoryQuestions{counts: []domain.TopicStat{{Topic: "A", Count: 3}, {Topic: "B", Count: 2}, {Topic: "C", Count: 1}}}
	svc := newQuestionService(t, repo)

	top, err := svc.Popular(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.TopicStat{{Topic: "A", Count: 3}, {Topic: "B", Count: 2}}, top)
}

func TestSubmitQuestion(t *testing.T) {
	repo := &memoryQuestions{}
	svc := newQuestionService(t, repo)
	ctx := context.Background()

	q, err := svc.Submit(ctx, domain.QuestionCreateRequest{Question: "  How do I write a SQL join?  "})
	require.NoError(t, err)
	assert.Equal(t, "Databases", q.Topic)
	assert.Equal(t, "How do I write a SQL join?", q.Question)

	q, err = svc.Submit(ctx, domain.QuestionCreateRequest{Topic: " Version Control ", Question: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "Version Control", q.Topic)
	assert.Len(t, repo.created, 2)

	_, err = svc.Submit(ctx, domain.QuestionCreateRequest{Question: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
