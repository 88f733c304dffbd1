// ABOUTME: In-memory conversation store with append-only message history
// ABOUTME: Callers receive copies so history can't be mutated outside the lock
package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harper/distill/internal/models"
)

// ErrNotFound is returned when a stored record does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore holds chat sessions for the lifetime of the process
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
	now   func() time.Time
}

// NewConversationStore creates an empty store
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		convs: make(map[string]*models.Conversation),
		now:   time.Now,
	}
}

// Ensure returns the conversation for id, creating a fresh one when id is
// empty or unknown. created reports whether a new conversation was made.
func (s *ConversationStore) Ensure(id, userID string) (conv models.Conversation, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convs[id]; ok && id != "" {
		return snapshot(c), false
	}

	now := s.now()
	c := &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Level:     models.DefaultLevel,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[c.ID] = c
	return snapshot(c), true
}

// Get returns a copy of the conversation
func (s *ConversationStore) Get(id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return snapshot(c), nil
}

// Append adds a message to the end of the history
func (s *ConversationStore) Append(id string, role models.Role, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	msg := models.Message{Role: role, Content: content, Timestamp: s.now()}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return msg, nil
}

// SetDocument replaces the attached document context
func (s *ConversationStore) SetDocument(id string, doc *models.DocumentContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.Document = doc
	if doc != nil && doc.Framework != "" {
		c.Metadata["framework"] = string(doc.Framework)
	}
	c.UpdatedAt = s.now()
	return nil
}

// SetLevel records the explanation level preference
func (s *ConversationStore) SetLevel(id string, level models.ExplanationLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.Level = level
	c.UpdatedAt = s.now()
	return nil
}

// Len returns the number of conversations
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// ListByUser returns the user's conversations, most recently updated first.
// An empty userID lists every conversation.
func (s *ConversationStore) ListByUser(userID string) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, c := range s.convs {
		if userID == "" || c.UserID == userID {
			out = append(out, snapshot(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func snapshot(c *models.Conversation) models.Conversation {
	out := *c
	out.Messages = append([]models.Message(nil), c.Messages...)
	out.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return out
}
