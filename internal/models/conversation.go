// ABOUTME: Conversation state: ordered message history and attached document
// ABOUTME: History is append-only; a new upload replaces the document context
package models

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentContext is the document currently attached to a conversation
type DocumentContext struct {
	LessonID   string      `json:"lesson_id,omitempty"`
	Filename   string      `json:"filename,omitempty"`
	Text       string      `json:"text"`
	Chunks     []Chunk     `json:"chunks"`
	Embeddings [][]float64 `json:"-"`
	Summary    string      `json:"summary,omitempty"`
	Framework  Framework   `json:"framework,omitempty"`
}

// Conversation is the state of one chat session
type Conversation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Messages  []Message         `json:"messages"`
	Document  *DocumentContext  `json:"document,omitempty"`
	Level     ExplanationLevel  `json:"level"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Recent returns up to n of the latest messages, oldest first
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
