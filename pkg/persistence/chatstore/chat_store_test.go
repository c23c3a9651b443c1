package chatstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/focusrelay/pkg/events"
)

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemoryTestStore(t *testing.T) Store {
	t.Helper()
	return NewInMemoryStore()
}

var storeFactories = map[string]func(t *testing.T) Store{
	"sqlite": newSQLiteTestStore,
	"memory": newMemoryTestStore,
}

func TestStore_EnsureConversationIsIdempotent(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.EnsureConversation(ctx, "c1", "first question", "webSearch"))
			require.NoError(t, s.EnsureConversation(ctx, "c1", "second question", "academicSearch"))

			c, err := s.GetConversation(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, "first question", c.Title)
			require.Equal(t, "webSearch", c.FocusMode)
			require.False(t, c.CreatedAt.IsZero())

			all, err := s.ListConversations(ctx, 10)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestStore_ConcurrentEnsureConversationCreatesOneRow(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.EnsureConversation(ctx, "shared", "title", "webSearch")
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			all, err := s.ListConversations(ctx, 10)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestStore_AppendTurnAndList(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			require.NoError(t, s.EnsureConversation(ctx, "c1", "hi", "webSearch"))

			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, s.AppendTurn(ctx, StoredTurn{
				ConversationID: "c1", TurnID: "m1", Role: RoleUser, Content: "hi",
				Metadata: TurnMetadata{CreatedAt: now},
			}))
			require.NoError(t, s.AppendTurn(ctx, StoredTurn{
				ConversationID: "c1", TurnID: "a1", Role: RoleAssistant, Content: "Hello",
				Metadata: TurnMetadata{CreatedAt: now, Sources: []events.Citation{
					{PageContent: "snippet", Metadata: map[string]any{"url": "https://example.com"}},
				}},
			}))

			turns, err := s.ListTurns(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, turns, 2)
			require.Equal(t, "m1", turns[0].TurnID)
			require.Equal(t, RoleUser, turns[0].Role)
			require.Nil(t, turns[0].Metadata.Sources)
			require.True(t, turns[0].Metadata.CreatedAt.Equal(now))
			require.Equal(t, "Hello", turns[1].Content)
			require.Len(t, turns[1].Metadata.Sources, 1)
			require.Equal(t, "https://example.com", turns[1].Metadata.Sources[0].Metadata["url"])
		})
	}
}

func TestStore_AppendTurnNeverOverwrites(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			require.NoError(t, s.EnsureConversation(ctx, "c1", "hi", "webSearch"))

			turn := StoredTurn{ConversationID: "c1", TurnID: "m1", Role: RoleUser, Content: "original"}
			require.NoError(t, s.AppendTurn(ctx, turn))
			turn.Content = "replacement"
			err := s.AppendTurn(ctx, turn)
			require.ErrorIs(t, err, ErrPersistence)

			turns, err := s.ListTurns(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, turns, 1)
			require.Equal(t, "original", turns[0].Content)
		})
	}
}

func TestStore_AppendTurnRequiresConversation(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			err := s.AppendTurn(context.Background(), StoredTurn{ConversationID: "missing", TurnID: "m1", Role: RoleUser})
			require.ErrorIs(t, err, ErrPersistence)
		})
	}
}

func TestStore_GetConversationNotFound(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			_, err := newStore(t).GetConversation(context.Background(), "nope")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMetadataOmitsEmptySources(t *testing.T) {
	md, err := encodeMetadata(TurnMetadata{CreatedAt: time.Unix(0, 0).UTC(), Sources: []events.Citation{}})
	require.NoError(t, err)
	require.JSONEq(t, `{"createdAt":"1970-01-01T00:00:00Z"}`, md)
}

func TestSQLiteStore_ClosedDatabaseIsPersistenceFailure(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.EnsureConversation(context.Background(), "c1", "t", "webSearch")
	require.ErrorIs(t, err, ErrPersistence)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "ensure conversation", perr.Op)
}
