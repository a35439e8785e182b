package profile

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres stores profile values in the browser_storage table created by
// internal/migrate.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Get(ctx context.Context, profileID, key string) (string, error) {
	const q = `
SELECT value
FROM browser_storage
WHERE profile_id = $1 AND key = $2
`
	var value string
	if err := r.pool.QueryRow(ctx, q, profileID, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		r.logger.Printf("profile repo: get profile_id=%s key=%s error=%v", profileID, key, err)
		return "", err
	}
	return value, nil
}

func (r *postgresRepo) Set(ctx context.Context, profileID, key, value string) error {
	const q = `
INSERT INTO browser_storage (profile_id, key, value)
VALUES ($1, $2, $3)
ON CONFLICT (profile_id, key) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = now()
`
	if _, err := r.pool.Exec(ctx, q, profileID, key, value); err != nil {
		r.logger.Printf("profile repo: set profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *postgresRepo) Delete(ctx context.Context, profileID, key string) error {
	const q = `
DELETE FROM browser_storage
WHERE profile_id = $1 AND key = $2
`
	if _, err := r.pool.Exec(ctx, q, profileID, key); err != nil {
		r.logger.Printf("profile repo: delete profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *postgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
