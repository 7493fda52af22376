package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps named state blobs in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS state (
        name TEXT PRIMARY KEY,
        data BLOB NOT NULL,
        updated_at DATETIME NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// State returns the blob stored under name as a State.
func (s *SQLiteStore) State(name string) *SQLiteState {
	return &SQLiteState{db: s.db, name: name}
}

type SQLiteState struct {
	db   *sql.DB
	name string
}

func (s *SQLiteState) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM state WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state %q: %w", s.name, err)
	}
	return data, nil
}

func (s *SQLiteState) Save(ctx context.Context, data []byte) error {
	query := `
        INSERT INTO state (name, data, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
    `
	if _, err := s.db.ExecContext(ctx, query, s.name, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save state %q: %w", s.name, err)
	}
	return nil
}
