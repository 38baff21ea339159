package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore хранит окна в таблице rate_limit_windows того же файла, что и платежи,
// поэтому счётчики переживают рестарт процесса в пределах окна.
// Чтение и запись идут в одной транзакции (БД открыта с _txlock=immediate).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		prev       *WindowState
		count      int64
		startNanos int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT count, window_start FROM rate_limit_windows WHERE client_key = ?`, key).
		Scan(&count, &startNanos)
	switch {
	case err == nil:
		prev = &WindowState{Count: count, WindowStart: time.Unix(0, startNanos)}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return Decision{}, fmt.Errorf("select window: %w", err)
	}

	d := Advance(prev, now, window, limit)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rate_limit_windows (client_key, count, window_start) VALUES (?, ?, ?)
		 ON CONFLICT(client_key) DO UPDATE SET count = excluded.count, window_start = excluded.window_start`,
		key, d.Count, d.WindowStart.UnixNano())
	if err != nil {
		return Decision{}, fmt.Errorf("upsert window: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Decision{}, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}
