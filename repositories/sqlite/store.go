// Package sqlite provides a SQLite-backed MessageStore.
// SQLite has no change stream: connections catch up through polling.
package sqlite

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	_ contract.MessageStore = (*Store)(nil)
	_ contract.HeadReader   = (*Store)(nil)
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at INTEGER NOT NULL,
  author     TEXT    NOT NULL,
  content    TEXT    NOT NULL CHECK (length(content) > 0)
)`

type Store struct {
	sqlDB *sql.DB
	limit int
	now   func() time.Time
}

// Open opens the database at path and creates the schema. QuerySince returns
// at most limit rows, zero means unbounded.
func Open(path string, limit int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps AUTOINCREMENT ids committed in order
	sqlDB.SetMaxOpenConns(1)
	if err = sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, limit: limit, now: func() time.Time { return time.Now().UTC().Round(0) }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, author, content string) (domain.Message, error) {
	msg := domain.Message{CreatedAt: s.now(), Author: author, Content: content}
	var id int64
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO messages (created_at, author, content) VALUES (?, ?, ?) RETURNING id`,
		msg.CreatedAt.UnixNano(), author, content,
	).Scan(&id)
	if err != nil {
		return domain.Message{}, classify(err)
	}
	msg.ID = domain.MessageID(id)
	return msg, nil
}

func (s *Store) QuerySince(ctx context.Context, id domain.MessageID) ([]domain.Message, error) {
	query := `SELECT id, created_at, author, content FROM messages WHERE id > ? ORDER BY id`
	args := []any{int64(id)}
	if s.limit > 0 {
		query += ` LIMIT ?`
		args = append(args, s.limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msgID     int64
			createdAt int64
			msg       domain.Message
		)
		if err = rows.Scan(&msgID, &createdAt, &msg.Author, &msg.Content); err != nil {
			return nil, classify(err)
		}
		msg.ID = domain.MessageID(msgID)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}

func (s *Store) Head(ctx context.Context) (domain.MessageID, error) {
	var head sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(id) FROM messages`).Scan(&head); err != nil {
		return 0, classify(err)
	}
	return domain.MessageID(head.Int64), nil
}

// classify maps constraint violations to ErrStoreRejected, everything else
// is treated as the store being unavailable.
func classify(err error) error {
	var sqliteErr *msqlite.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL, sqlite3lib.SQLITE_TOOBIG:
			return fmt.Errorf("%w: %v", errors.ErrStoreRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
}
