// Package session keeps one signed-in state and one cart per browser
// session, keyed by the session cookie.
package session

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/auth"
	"storefront/internal/metrics"
	"storefront/internal/remote"
	"storefront/internal/repository/profile"
	cartsvc "storefront/internal/service/cart"
)

// Session is one browser session.
type Session struct {
	ID   string
	Auth *auth.Session
	Cart *cartsvc.Engine
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

type Config struct {
	// TTL is how long an idle session stays in memory. Its profile data
	// outlives it and is picked up again when the cookie comes back.
	TTL     time.Duration
	TaxRate decimal.Decimal
}

type Registry struct {
	repo     profile.Repository
	api      *remote.Client
	products cartsvc.ProductLookup
	cfg      Config
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func New(repo profile.Repository, api *remote.Client, products cartsvc.ProductLookup, cfg Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &Registry{
		repo:     repo,
		api:      api,
		products: products,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Open returns the session for id. An empty or malformed id gets a fresh
// session ID; created reports that case so the caller can set the cookie.
func (r *Registry) Open(ctx context.Context, id string) (sess *Session, created bool, err error) {
	parsed, parseErr := uuid.Parse(id)
	if parseErr != nil {
		id = uuid.NewString()
		created = true
	} else {
		id = parsed.String()
	}

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok && r.now().Sub(e.lastSeen) <= r.cfg.TTL {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.session, created, nil
	}
	r.mu.Unlock()

	built := r.build(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && r.now().Sub(e.lastSeen) <= r.cfg.TTL {
		// lost a race with another request for the same cookie
		built.Cart.Close()
		e.lastSeen = r.now()
		return e.session, created, nil
	} else if ok {
		e.session.Cart.Close()
	}
	r.sessions[id] = &entry{session: built, lastSeen: r.now()}
	metrics.SetActiveSessions(len(r.sessions))
	return built, created, nil
}

func (r *Registry) build(ctx context.Context, id string) *Session {
	store := profile.Scope(r.repo, id)
	client := r.api.WithTokenSource(nil)
	authSession := auth.NewSession(client, store, r.logger)
	client.UseTokenSource(authSession)

	engine := cartsvc.New(cartsvc.Deps{
		Store:    store,
		Remote:   client,
		Products: r.products,
		Auth:     authSession,
		Logger:   r.logger,
	}, cartsvc.WithTaxRate(r.cfg.TaxRate))

	if err := authSession.Restore(ctx); err != nil {
		r.logger.Printf("session registry: restore auth session_id=%s error=%v", id, err)
	}
	if err := engine.Start(ctx); err != nil {
		r.logger.Printf("session registry: start cart session_id=%s error=%v", id, err)
	}
	return &Session{ID: id, Auth: authSession, Cart: engine}
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, e := range r.sessions {
		if r.now().Sub(e.lastSeen) > r.cfg.TTL {
			e.session.Cart.Close()
			delete(r.sessions, id)
			dropped++
		}
	}
	metrics.SetActiveSessions(len(r.sessions))
	return dropped
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Printf("session registry: expired sessions=%d", n)
			}
		}
	}
}

// Len is the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close releases every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.sessions {
		e.session.Cart.Close()
		delete(r.sessions, id)
	}
	metrics.SetActiveSessions(0)
}
