package premium

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store keeps the premium flag per Telegram user id in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		premium INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Store{db: db}, nil
}

// IsPremium reports the flag for userID. Unknown users are not premium.
func (s *Store) IsPremium(ctx context.Context, userID int64) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT premium FROM users WHERE id = ?`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query premium: %w", err)
	}
	return v == 1, nil
}

// SetPremium writes the flag for userID.
func (s *Store) SetPremium(ctx context.Context, userID int64, premium bool) error {
	v := 0
	if premium {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, premium) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET premium = excluded.premium`, userID, v)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
