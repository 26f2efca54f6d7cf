package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
)

type memoryStatistics struct {
	created []*domain.ChatExchangeStatistic
	summary *domain.StatisticsSummary
}

func (m *memoryStatistics) Create(_ context.Context, s *domain.ChatExchangeStatistic) error {
	m.created = append(m.created, s)
	return nil
}

func (m *memoryStatistics) Summary(context.Context, domain.StatisticsFilter) (*domain.StatisticsSummary, error) {
	if m.summary != nil {
		return m.summary, nil
	}
	return &domain.StatisticsSummary{TotalMessages: len(m.created)}, nil
}

func TestRecordDerivesFeatures(t *testing.T) {
	c, err := classifier.Default(zap.NewNop())
	require.NoError(t, err)
	repo := &memoryStatistics{}
	svc := NewStatisticsService(repo, c, time.FixedZone("UTC-3", -3*3600), zap.NewNop())
	// Monday 02:30 UTC is Sunday 23:30 in UTC-3
	svc.now = func() time.Time { return time.Date(2024, 6, 3, 2, 30, 0, 0, time.UTC) }

	userID := int64(7)
	err = svc.Record(context.Background(), Exchange{
		UserID:          &userID,
		UserEmail:       "Ana@Example.com",
		Message:         "Why does my loop not terminate?",
		Provider:        "ollama",
		ResponseTime:    1500 * time.Millisecond,
		RAGContextFound: true,
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	s := repo.created[0]
	assert.Equal(t, hashText("Why does my loop not terminate?"), s.MessageHash)
	assert.Len(t, s.MessageHash, 16)
	assert.Equal(t, hashText("ana@example.com"), s.UserEmailHash)
	assert.Equal(t, 31, s.MessageLength)
	assert.Equal(t, "Programming and Development", s.Topic)
	assert.True(t, s.IsQuestion)
	assert.Equal(t, domain.MessageTypeQuestion, s.MessageType)
	require.NotNil(t, s.ResponseTimeMS)
	assert.Equal(t, int64(1500), *s.ResponseTimeMS)
	assert.Equal(t, 23, s.HourOfDay)
	assert.Equal(t, 6, s.DayOfWeek)
	assert.Equal(t, "ollama", s.LLMProvider)
	assert.Equal(t, &userID, s.UserID)
}

func TestMessageType(t *testing.T) {
	assert.Equal(t, domain.MessageTypeCommand, MessageType("/challenge loops"))
	assert.Equal(t, domain.MessageTypeQuestion, MessageType("what is a slice"))
	assert.Equal(t, domain.MessageTypeStatement, MessageType("thanks"))
}

func TestHashText(t *testing.T) {
	// sha256("abc") = ba7816bf8f01cfea...
	assert.Equal(t, "ba7816bf8f01cfea", hashText("abc"))
}

func TestPublicStatisticsNamesTopThreeTopics(t *testing.T) {
	c, err := classifier.Default(zap.NewNop())
	require.NoError(t, err)
	repo := &memoryStatistics{summary: &domain.StatisticsSummary{
		TotalMessages:  12,
		TotalQuestions: 9,
		TotalCommands:  1,
		UniqueUsers:    4,
		Topics: []domain.TopicCount{
			{Topic: "Databases", Count: 5},
			{Topic: "", Count: 3},
			{Topic: "Git and Version Control", Count: 2},
			{Topic: "Web Development", Count: 1},
			{Topic: "Data Science", Count: 1},
		},
	}}
	svc := NewStatisticsService(repo, c, time.UTC, zap.NewNop())

	public, err := svc.Public(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, public.TotalMessages)
	assert.Equal(t, 9, public.TotalQuestions)
	assert.Equal(t, []string{"Databases", "Git and Version Control", "Web Development"}, public.MostDiscussedTopics)

	repo.summary = &domain.StatisticsSummary{}
	public, err = svc.Public(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, public.MostDiscussedTopics)
	assert.Empty(t, public.MostDiscussedTopics)
}
