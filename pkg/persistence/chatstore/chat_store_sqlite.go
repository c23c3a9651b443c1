package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore is the durable Store. Uniqueness constraints in the schema are
// the authority for conversation idempotence and turn-id uniqueness.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite chat store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile returns a DSN with WAL, a busy timeout and foreign keys on.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite chat store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			focus_mode TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			turn_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			UNIQUE (conversation_id, turn_id)
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_conversation ON turns(conversation_id, seq);`,
		`CREATE INDEX IF NOT EXISTS conversations_by_created ON conversations(created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite chat store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) EnsureConversation(ctx context.Context, id, title, focusMode string) error {
	if s == nil || s.db == nil {
		return persistenceErr("ensure conversation", errors.New("db is nil"))
	}
	if strings.TrimSpace(id) == "" {
		return persistenceErr("ensure conversation", errors.New("empty conversation id"))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, title, created_at_ms, focus_mode)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, title, s.now().UnixMilli(), focusMode)
	return persistenceErr("ensure conversation", err)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, turn StoredTurn) error {
	if s == nil || s.db == nil {
		return persistenceErr("append turn", errors.New("db is nil"))
	}
	if turn.ConversationID == "" || turn.TurnID == "" {
		return persistenceErr("append turn", errors.New("conversation id and turn id are required"))
	}
	md, err := encodeMetadata(turn.Metadata)
	if err != nil {
		return persistenceErr("append turn", errors.Wrap(err, "encode metadata"))
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns(conversation_id, turn_id, role, content, metadata_json)
		VALUES (?, ?, ?, ?, ?)
	`, turn.ConversationID, turn.TurnID, string(turn.Role), turn.Content, md)
	return persistenceErr("append turn", err)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at_ms, focus_mode FROM conversations WHERE id = ?
	`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return Conversation{}, persistenceErr("get conversation", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at_ms, focus_mode FROM conversations
		ORDER BY created_at_ms DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, persistenceErr("list conversations", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, persistenceErr("list conversations", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("list conversations", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string) ([]StoredTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, turn_id, role, content, metadata_json FROM turns
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, persistenceErr("list turns", err)
	}
	defer func() { _ = rows.Close() }()

	out := []StoredTurn{}
	for rows.Next() {
		var (
			t    StoredTurn
			role string
			md   string
		)
		if err := rows.Scan(&t.ConversationID, &t.TurnID, &role, &t.Content, &md); err != nil {
			return nil, persistenceErr("list turns", err)
		}
		t.Role = Role(role)
		if t.Metadata, err = decodeMetadata(md); err != nil {
			return nil, persistenceErr("list turns", errors.Wrapf(err, "decode metadata of %s", t.TurnID))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("list turns", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (Conversation, error) {
	var (
		c  Conversation
		ms int64
	)
	if err := r.Scan(&c.ID, &c.Title, &ms, &c.FocusMode); err != nil {
		return Conversation{}, err
	}
	c.CreatedAt = time.UnixMilli(ms).UTC()
	return c, nil
}
