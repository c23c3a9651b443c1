package chatstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InMemoryStore is a process-local Store, used in tests and when no
// database is configured. A single mutex serialises all writers.
type InMemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	conversations map[string]Conversation
	turns         map[string][]StoredTurn
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:           time.Now,
		conversations: map[string]Conversation{},
		turns:         map[string][]StoredTurn{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) EnsureConversation(_ context.Context, id, title, focusMode string) error {
	if id == "" {
		return persistenceErr("ensure conversation", errors.New("empty conversation id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; ok {
		return nil
	}
	s.conversations[id] = Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		FocusMode: focusMode,
	}
	return nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn StoredTurn) error {
	if turn.ConversationID == "" || turn.TurnID == "" {
		return persistenceErr("append turn", errors.New("conversation id and turn id are required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[turn.ConversationID]; !ok {
		return persistenceErr("append turn", errors.Errorf("conversation %s does not exist", turn.ConversationID))
	}
	for _, existing := range s.turns[turn.ConversationID] {
		if existing.TurnID == turn.TurnID {
			return persistenceErr("append turn", errors.Errorf("turn %s already exists", turn.TurnID))
		}
	}
	turn.Metadata.Sources = append(turn.Metadata.Sources[:0:0], turn.Metadata.Sources...)
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], turn)
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	return c, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, conversationID string) ([]StoredTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredTurn{}, s.turns[conversationID]...), nil
}
