package product

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"storefront/internal/domain"
)

// Catalog is the remote product lookup.
type Catalog interface {
	GetProduct(ctx context.Context, id domain.ID) (*domain.Product, error)
}

type Service struct {
	catalog Catalog
	cache   *expirable.LRU[domain.ID, domain.Product]
	logger  *log.Logger
}

// New caches up to size products for ttl. A size of zero disables caching.
func New(catalog Catalog, size int, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Service{catalog: catalog, logger: logger}
	if size > 0 {
		s.cache = expirable.NewLRU[domain.ID, domain.Product](size, nil, ttl)
	}
	return s
}

func (s *Service) Get(ctx context.Context, id domain.ID) (*domain.Product, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(id); ok {
			return &p, nil
		}
	}
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		s.logger.Printf("product service: get product_id=%s error=%v", id, err)
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(id, *p)
	}
	return p, nil
}

// Forget drops a cached product so the next Get goes to the API.
func (s *Service) Forget(id domain.ID) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}
