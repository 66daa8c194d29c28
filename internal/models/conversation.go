package models

import (
	"time"

	"github.com/google/uuid"
)

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTitle is the placeholder given to conversations created without a
// title. The first successful exchange replaces it with a snippet of the
// user's message.
const DefaultTitle = "New Chat"

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation builds a conversation with a fresh id and both timestamps
// set to now. An empty title means the default.
func NewConversation(title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewMessage builds an immutable message record for the given conversation.
func NewMessage(conversationID string, role Role, content string, at time.Time) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      at,
	}
}
