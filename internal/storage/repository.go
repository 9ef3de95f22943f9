// Package storage holds the durable session store adapters: SQLite with
// embedded migrations and Redis.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"loancalc/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores one encoded session per row with an idle expiry.
type SQLiteRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ session.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, ttl time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, ttl: ttl, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements session.Store. A successful load extends the expiry.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (*session.State, error) {
	var (
		data      []byte
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT state, expires_at FROM sessions WHERE id = ?`, id).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := r.now()
	if now.Unix() > expiresAt {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			slog.WarnContext(ctx, "Failed to drop expired session", "session_id", id, "error", err)
		}
		return nil, session.ErrSessionNotFound
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE id = ?`, now.Add(r.ttl).Unix(), id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	return session.Decode(data)
}

// Save implements session.Store.
func (r *SQLiteRepository) Save(ctx context.Context, id string, st *session.State) error {
	data, err := session.Encode(st)
	if err != nil {
		return err
	}
	now := r.now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		id, data, now.Add(r.ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Ping implements session.Store.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// PurgeExpired removes every session past its expiry and returns the count.
func (r *SQLiteRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired sessions", "component", "storage", "count", n)
	}
	return n, nil
}
