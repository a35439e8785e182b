package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/repository/profile"
)

// openStorage builds the browser profile repository selected by
// STORAGE_DRIVER. Postgres expects cmd/migrate to have run.
func openStorage(ctx context.Context, cfg config.Config, logger *log.Logger) (profile.Repository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return profile.NewMemory(), func() {}, nil
	case config.StorageSQLite:
		repo, closeDB, err := profile.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := closeDB(); err != nil {
				logger.Printf("close sqlite: %v", err)
			}
		}, nil
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg.DBConnString, logger)
		if err != nil {
			return nil, nil, err
		}
		return profile.NewPostgres(pool, logger), pool.Close, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return profile.NewRedis(client, "storefront", logger), func() {
			if err := client.Close(); err != nil {
				logger.Printf("close redis: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
