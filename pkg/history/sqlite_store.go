package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteHistorySchemaV1 = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    payload_json TEXT NOT NULL,
    last_message_ms INTEGER NOT NULL DEFAULT 0,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS conversations_last_message ON conversations (last_message_ms);
`

// SQLiteStore keeps one row per conversation, with the conversation itself
// stored as a JSON payload. Name and last activity are mirrored into columns
// for inspection with the sqlite3 shell.
type SQLiteStore struct {
	mu     sync.RWMutex
	dsn    string
	store  *InMemoryStore
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite history store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		dsn:   dsn,
		store: NewInMemoryStore(),
		db:    db,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadFromDB(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id string, c *Conversation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	err := s.store.transact(func() error {
		var err error
		id, err = s.store.Put(ctx, id, c)
		return err
	}, func() error {
		return s.persistLocked(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	return s.store.Get(ctx, id)
}

func (s *SQLiteStore) List(ctx context.Context) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Delete(ctx, id)
	}, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		return err
	})
}

func (s *SQLiteStore) Rename(ctx context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Rename(ctx, id, name)
	}, func() error {
		return s.persistLocked(ctx, id)
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Clear(ctx)
	}, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM conversations`)
		return err
	})
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	if s.db == nil {
		return errors.New("sqlite history store: db is nil")
	}
	if _, err := s.db.Exec(sqliteHistorySchemaV1); err != nil {
		return errors.Wrap(err, "could not create history schema")
	}
	return nil
}

func (s *SQLiteStore) loadFromDB() error {
	rows, err := s.db.Query(`SELECT id, payload_json FROM conversations ORDER BY id ASC`)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	s.store = NewInMemoryStore()
	for rows.Next() {
		var id string
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}

		c := &Conversation{}
		if err := json.Unmarshal([]byte(payload), c); err != nil {
			return errors.Wrapf(err, "sqlite history store: invalid payload for %q", id)
		}
		if err := ValidateConversation(c); err != nil {
			return errors.Wrapf(err, "sqlite history store: invalid conversation %q", id)
		}
		s.store.conversations[id] = c
	}
	return rows.Err()
}

func (s *SQLiteStore) persistLocked(ctx context.Context, id string) error {
	c, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		return err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO conversations (id, name, payload_json, last_message_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    payload_json = excluded.payload_json,
    last_message_ms = excluded.last_message_ms,
    updated_at_ms = excluded.updated_at_ms`,
		id,
		c.Name,
		string(payload),
		c.LastMessage.UnixMilli(),
		time.Now().UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	if s.db == nil {
		return errors.New("sqlite history store db is nil")
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite history store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
