package domain

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is an ordered, user-owned sequence of chat turns
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Source represents a citation source
type Source struct {
	Name string `json:"name"`
	Link string `json:"link,omitempty"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	ConversationID int64  `json:"conversation_id,omitempty"`
	Message        string `json:"message" binding:"required"`
}

// StreamChunk represents a chunk in SSE stream
type StreamChunk struct {
	Type    string `json:"type"` // content
	Content string `json:"content,omitempty"`
}

// ConversationListResponse is the response for listing conversations
type ConversationListResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Total         int             `json:"total"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}
