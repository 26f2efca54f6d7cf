package domain

import "time"

// Message classifications recorded per exchange
const (
	MessageTypeQuestion  = "question"
	MessageTypeStatement = "statement"
	MessageTypeCommand   = "command"
)

// ChatExchangeStatistic is the privacy-preserving record of one chat turn
type ChatExchangeStatistic struct {
	ID              int64     `json:"id"`
	UserID          *int64    `json:"user_id,omitempty"`
	MessageHash     string    `json:"message_hash"`
	UserEmailHash   string    `json:"user_email_hash"`
	MessageLength   int       `json:"message_length"`
	Topic           string    `json:"topic"`
	IsQuestion      bool      `json:"is_question"`
	MessageType     string    `json:"message_type"`
	ResponseTimeMS  *int64    `json:"response_time_ms,omitempty"`
	RAGContextFound bool      `json:"rag_context_found"`
	LLMProvider     string    `json:"llm_provider"`
	HourOfDay       int       `json:"hour_of_day"`
	DayOfWeek       int       `json:"day_of_week"`
	CreatedAt       time.Time `json:"created_at"`
}

// StatisticsFilter bounds a statistics summary by creation time
type StatisticsFilter struct {
	Start *time.Time
	End   *time.Time
}

// StatisticsSummary aggregates chat exchange statistics
type StatisticsSummary struct {
	TotalMessages     int          `json:"total_messages"`
	TotalQuestions    int          `json:"total_questions"`
	TotalCommands     int          `json:"total_commands"`
	AverageLength     float64      `json:"average_message_length"`
	AverageResponseMS float64      `json:"average_response_time_ms"`
	RAGContextFound   int          `json:"rag_context_found"`
	UniqueUsers       int          `json:"unique_users"`
	Topics            []TopicCount `json:"topics"`
}

// PublicTopicLimit is how many topics the public summary names
const PublicTopicLimit = 3

// PublicStatistics is the anonymous, unauthenticated view of usage
type PublicStatistics struct {
	TotalMessages       int      `json:"total_messages"`
	TotalQuestions      int      `json:"total_questions"`
	MostDiscussedTopics []string `json:"most_discussed_topics"`
}
