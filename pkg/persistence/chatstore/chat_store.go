package chatstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-go-golems/focusrelay/pkg/events"
)

// ErrPersistence classifies every storage failure surfaced by a Store.
var ErrPersistence = stderrors.New("persistence failure")

// ErrNotFound is returned by lookups for unknown conversations.
var ErrNotFound = stderrors.New("not found")

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Role of a stored turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is created once per id and never updated.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	FocusMode string    `json:"focusMode"`
}

// TurnMetadata is the metadata envelope stored with each turn. Sources is
// omitted entirely when empty.
type TurnMetadata struct {
	CreatedAt time.Time         `json:"createdAt"`
	Sources   []events.Citation `json:"sources,omitempty"`
}

// StoredTurn is one append-only row of a conversation transcript.
type StoredTurn struct {
	ConversationID string       `json:"chatId"`
	TurnID         string       `json:"messageId"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Metadata       TurnMetadata `json:"metadata"`
}

// Store persists conversations and their turns.
//
// EnsureConversation inserts a conversation if none exists with that id;
// concurrent calls for one id produce exactly one row. AppendTurn inserts a
// single row and fails when the (conversation, turn id) pair already exists.
// All write failures match ErrPersistence.
type Store interface {
	EnsureConversation(ctx context.Context, id, title, focusMode string) error
	AppendTurn(ctx context.Context, turn StoredTurn) error

	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	ListTurns(ctx context.Context, conversationID string) ([]StoredTurn, error)
	Close() error
}

func encodeMetadata(md TurnMetadata) (string, error) {
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (TurnMetadata, error) {
	var md TurnMetadata
	if s == "" {
		return md, nil
	}
	err := json.Unmarshal([]byte(s), &md)
	return md, err
}
