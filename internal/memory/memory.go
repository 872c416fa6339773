// Package memory provides conversation history storage for multi-turn RAG interactions.
package memory

import (
	"context"
	"sync"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore persists per-session message history. History is
// bounded: implementations keep only the most recent messages.
type ConversationStore interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	History(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
}

type conversation struct {
	messages  []Message
	updatedAt time.Time
}

// Store provides in-process conversation storage. Sessions expire
// after a period of inactivity; use RedisStore when history must
// survive restarts or be shared across replicas.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int
	ttl           time.Duration
}

// NewStore creates a new conversation memory store.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	s := &Store{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
		ttl:           ttl,
	}

	// Start cleanup goroutine
	go s.cleanupLoop()

	return s
}

// Append adds a message to the session, trimming to the bound.
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		conv = &conversation{}
		s.conversations[sessionID] = conv
	}

	conv.messages = append(conv.messages, msg)
	conv.updatedAt = time.Now()

	// Trim old messages if exceeding max (keep recent ones)
	if len(conv.messages) > s.maxMessages {
		conv.messages = conv.messages[len(conv.messages)-s.maxMessages:]
	}

	return nil
}

// History returns the session's messages, oldest first. Returns nil
// for an unknown session.
func (s *Store) History(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		return nil, nil
	}

	// Return a copy to avoid race conditions
	messages := make([]Message, len(conv.messages))
	copy(messages, conv.messages)
	return messages, nil
}

// Clear removes a session's history.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
	return nil
}

// cleanupLoop periodically removes expired conversations.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.cleanup()
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, conv := range s.conversations {
		if now.Sub(conv.updatedAt) > s.ttl {
			delete(s.conversations, id)
		}
	}
}

var _ ConversationStore = (*Store)(nil)
