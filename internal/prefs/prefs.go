// Package prefs keeps the operator's UI preferences in a local sqlite file.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DarkModeKey is the storage key of the dark-mode flag.
const DarkModeKey = "dmk"

const schema = `CREATE TABLE IF NOT EXISTS prefs (key TEXT PRIMARY KEY, value TEXT NOT NULL)`

type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open prefs %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init prefs: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DarkMode returns the stored flag, or fallback when nothing usable is
// stored yet.
func (s *Store) DarkMode(ctx context.Context, fallback bool) (bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM prefs WHERE key = ?`, DarkModeKey)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("read %s: %w", DarkModeKey, err)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

func (s *Store) SetDarkMode(ctx context.Context, on bool) error {
	const q = `
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, DarkModeKey, strconv.FormatBool(on)); err != nil {
		return fmt.Errorf("write %s: %w", DarkModeKey, err)
	}
	return nil
}
