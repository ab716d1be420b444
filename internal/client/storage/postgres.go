package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key TEXT PRIMARY KEY,
    value JSONB NOT NULL
);
`

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps entries in a kv_entries table. Used when several
// client processes on one host share a database instead of a local file.
type PostgresStore struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresStore creates a PostgresStore over db. db must be connected to
// PostgreSQL; call Migrate before first use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Migrate creates the kv_entries table if it does not exist.
func (s *PostgresStore) Migrate() error {
	if _, err := s.DB.Exec(kvSchema); err != nil {
		return fmt.Errorf("create kv schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(key string, dest any) (bool, error) {
	var raw []byte
	err := s.DB.QueryRow(`SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *PostgresStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.DB.Exec(`
		INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, raw)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(key string) error {
	if _, err := s.DB.Exec(`DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
