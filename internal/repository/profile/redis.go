package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

type redisRepo struct {
	client *redis.Client
	prefix string
	logger *log.Logger
}

// NewRedis stores profile values under "<prefix>:profile:<profileID>:<key>".
func NewRedis(client *redis.Client, prefix string, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if prefix == "" {
		prefix = "storefront"
	}
	return &redisRepo{client: client, prefix: prefix, logger: logger}
}

func (r *redisRepo) namespaceKey(profileID, key string) string {
	return fmt.Sprintf("%s:profile:%s:%s", r.prefix, profileID, key)
}

func (r *redisRepo) Get(ctx context.Context, profileID, key string) (string, error) {
	value, err := r.client.Get(ctx, r.namespaceKey(profileID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		r.logger.Printf("profile repo: redis get profile_id=%s key=%s error=%v", profileID, key, err)
		return "", err
	}
	return value, nil
}

func (r *redisRepo) Set(ctx context.Context, profileID, key, value string) error {
	if err := r.client.Set(ctx, r.namespaceKey(profileID, key), value, 0).Err(); err != nil {
		r.logger.Printf("profile repo: redis set profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *redisRepo) Delete(ctx context.Context, profileID, key string) error {
	if err := r.client.Del(ctx, r.namespaceKey(profileID, key)).Err(); err != nil {
		r.logger.Printf("profile repo: redis delete profile_id=%s key=%s error=%v", profileID, key, err)
		return err
	}
	return nil
}

func (r *redisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
