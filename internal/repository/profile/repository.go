package profile

import (
	"context"
	"sync"

	"storefront/internal/domain"
)

// Repository stores string values per browser profile and key.
// Get returns domain.ErrNotFound when the key has never been written.
type Repository interface {
	Get(ctx context.Context, profileID, key string) (string, error)
	Set(ctx context.Context, profileID, key, value string) error
	Delete(ctx context.Context, profileID, key string) error
	Ping(ctx context.Context) error
}

// Store is a Repository bound to one browser profile.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	repo      Repository
	profileID string
}

// Scope binds repo to profileID.
func Scope(repo Repository, profileID string) Store {
	return &scoped{repo: repo, profileID: profileID}
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.repo.Get(ctx, s.profileID, key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, s.profileID, key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, s.profileID, key)
}

type memoryRepo struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemory returns a process-local Repository.
func NewMemory() Repository {
	return &memoryRepo{values: make(map[string]map[string]string)}
}

func (r *memoryRepo) Get(_ context.Context, profileID, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[profileID][key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (r *memoryRepo) Set(_ context.Context, profileID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, ok := r.values[profileID]
	if !ok {
		keys = make(map[string]string)
		r.values[profileID] = keys
	}
	keys[key] = value
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, profileID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if keys, ok := r.values[profileID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.values, profileID)
		}
	}
	return nil
}

func (r *memoryRepo) Ping(context.Context) error {
	return nil
}
