package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLStore implements store.Store on database/sql. It runs against sqlite3
// (default, and in tests via ":memory:") or postgres.
type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// A second pool connection to ":memory:" would see a different
		// database entirely.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	// Timestamps are unix milliseconds so range comparisons behave the same
	// under both drivers.
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_ref TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		direct BOOLEAN NOT NULL,
		group_name TEXT NOT NULL DEFAULT '',
		group_picture_ref TEXT NOT NULL DEFAULT '',
		disappearing BOOLEAN NOT NULL DEFAULT FALSE,
		last_activity_ms BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		chat_id TEXT NOT NULL REFERENCES chats(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		admin BOOLEAN NOT NULL DEFAULT FALSE,
		removed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		author_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		file_ref TEXT NOT NULL DEFAULT '',
		disappearing BOOLEAN NOT NULL DEFAULT FALSE,
		created_at_ms BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_members_user ON members (user_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}
