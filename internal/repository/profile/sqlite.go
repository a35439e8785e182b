package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"storefront/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS browser_storage (
    profile_id TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (profile_id, key)
)`

type sqliteRepo struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLite opens (creating if needed) a SQLite file holding browser
// profiles. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, logger *log.Logger) (Repository, func() error, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &sqliteRepo{db: db, logger: logger}, db.Close, nil
}

func (r *sqliteRepo) Get(ctx context.Context, profileID, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM browser_storage WHERE profile_id = ? AND key = ?`, profileID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		r.logger.Printf("profile repo: sqlite get profile_id=%s key=%s error=%v", profileID, key, err)
		return "", err
	}
	return value, nil
}

func (r *sqliteRepo) Set(ctx context.Context, profileID, key, value string) error {
	const q = `
INSERT INTO browser_storage (profile_id, key, value, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (profile_id, key) DO UPDATE SET
    value = excluded.value,
    updated_at = CURRENT_TIMESTAMP
`
	if _, err := r.db.ExecContext(ctx, q, profileID, key, value); err != nil {
		r.logger.Printf("profile repo: sqlite set profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *sqliteRepo) Delete(ctx context.Context, profileID, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM browser_storage WHERE profile_id = ? AND key = ?`, profileID, key); err != nil {
		r.logger.Printf("profile repo: sqlite delete profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *sqliteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
