package domain

import "time"

// OtherTopic is assigned when no topic scores above zero
const OtherTopic = "Outros"

// AnonymousQuestion is a question logged without any user reference
type AnonymousQuestion struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// TopicCount is the number of questions logged under a topic
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TopicStat is TopicCount plus when the newest question of the topic was
// logged; LatestQuestionDate is nil for topics without questions
type TopicStat struct {
	Topic              string     `json:"topic"`
	Count              int        `json:"question_count"`
	LatestQuestionDate *time.Time `json:"latest_question_date"`
}

// QuestionCreateRequest is a manually submitted anonymous question. An
// empty topic is filled in by the classifier.
type QuestionCreateRequest struct {
	Topic    string `json:"topic"`
	Question string `json:"question" binding:"required"`
}

// QuestionListResponse is the response for listing anonymous questions
type QuestionListResponse struct {
	Questions []*AnonymousQuestion `json:"questions"`
	Total     int                  `json:"total"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"page_size"`
}

// QuestionStats summarises anonymous questions per topic
type QuestionStats struct {
	TotalQuestions int         `json:"total_questions"`
	Topics         []TopicStat `json:"topics"`
}
