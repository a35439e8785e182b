// Package auth holds the signed-in state of one browser profile: the token
// pair, the user, and the listeners that react when the user signs in or out.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"storefront/internal/domain"
	"storefront/internal/repository/profile"
)

// Keys the session persists in the browser profile.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyUserData     = "userData"
)

// Listener is told about every sign-in/sign-out transition.
type Listener = func(ctx context.Context, authenticated bool)

type accountAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Me(ctx context.Context) (*domain.User, error)
}

type subscription struct {
	id int
	fn Listener
}

// Session is the authentication state of one browser profile. It doubles as
// the oauth2.TokenSource the API client uses for bearer credentials.
type Session struct {
	api    accountAPI
	store  profile.Store
	logger *log.Logger
	now    func() time.Time

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiry       time.Time
	user         *domain.User
	listeners    []subscription
	nextID       int
}

// NewSession builds a signed-out session. store may be nil, in which case
// nothing survives a restart.
func NewSession(api accountAPI, store profile.Store, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{api: api, store: store, logger: logger, now: time.Now}
}

// Subscribe registers fn for sign-in/sign-out transitions and returns the
// function that removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// IsAuthenticated reports whether a user is signed in with an unexpired token.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

func (s *Session) authenticatedLocked() bool {
	if s.accessToken == "" || s.user == nil {
		return false
	}
	return s.expiry.IsZero() || s.now().Before(s.expiry)
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !s.expiry.IsZero() && !s.now().Before(s.expiry) {
		return nil, fmt.Errorf("%w: token expired at %s", domain.ErrUnauthenticated, s.expiry.Format(time.RFC3339))
	}
	return &oauth2.Token{
		AccessToken:  s.accessToken,
		TokenType:    "Bearer",
		RefreshToken: s.refreshToken,
		Expiry:       s.expiry,
	}, nil
}

// Login signs in with credentials, loads the user and notifies listeners.
// Signing in over another user first signs that user out.
func (s *Session) Login(ctx context.Context, creds domain.Credentials) error {
	if strings.TrimSpace(creds.Email) == "" {
		return &domain.ValidationError{Field: "email", Reason: "required"}
	}
	if creds.Password == "" {
		return &domain.ValidationError{Field: "password", Reason: "required"}
	}
	pair, err := s.api.Login(ctx, creds)
	if err != nil {
		return err
	}

	previous := s.User()
	if previous != nil {
		s.Logout(ctx)
	}

	s.setTokens(pair)
	user, err := s.api.Me(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("load user: %w", err)
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	s.persist(ctx)
	s.logger.Printf("auth: login user_id=%s", user.ID)
	s.notify(ctx, true)
	return nil
}

// Logout drops the tokens and the user, and notifies listeners if someone
// was signed in.
func (s *Session) Logout(ctx context.Context) {
	s.mu.RLock()
	was := s.user != nil
	s.mu.RUnlock()

	s.reset()
	s.forget(ctx)
	if was {
		s.logger.Printf("auth: logout")
		s.notify(ctx, false)
	}
}

// Refresh trades the refresh token for a new pair. Any failure signs the
// user out.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refreshToken := s.refreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		s.Logout(ctx)
		return fmt.Errorf("refresh: %w: no refresh token", domain.ErrUnauthenticated)
	}
	pair, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Printf("auth: refresh failed error=%v", err)
		s.Logout(ctx)
		return fmt.Errorf("refresh: %w", err)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	s.setTokens(pair)
	s.persist(ctx)
	return nil
}

// HandleAuthFailure reacts to a 401/403 from the API: try one refresh, and
// sign out when that fails.
func (s *Session) HandleAuthFailure(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Restore re-hydrates a session persisted in the browser profile and checks
// it against GET /me. An expired credential is refreshed once; a rejected
// one signs out. When the API cannot be reached the persisted user is kept.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	token, err := s.store.Get(ctx, KeyAuthToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return &domain.PersistenceError{Key: KeyAuthToken, Err: err}
	}
	refreshToken, err := s.store.Get(ctx, KeyRefreshToken)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Printf("auth: restore refresh token error=%v", err)
	}
	s.setTokens(domain.TokenPair{Token: token, RefreshToken: refreshToken})

	var cached *domain.User
	if raw, err := s.store.Get(ctx, KeyUserData); err == nil {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			cached = &u
		} else {
			s.logger.Printf("auth: restore user data error=%v", err)
		}
	}

	user, err := s.api.Me(ctx)
	if errors.Is(err, domain.ErrUnauthenticated) {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
		user, err = s.api.Me(ctx)
	}
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNetwork) && cached != nil:
		s.logger.Printf("auth: restore offline, keeping cached user_id=%s", cached.ID)
		user = cached
	default:
		s.Logout(ctx)
		return fmt.Errorf("restore: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.persist(ctx)
	s.notify(ctx, true)
	return nil
}

func (s *Session) setTokens(pair domain.TokenPair) {
	expiry := tokenExpiry(pair.Token)
	s.mu.Lock()
	s.accessToken = pair.Token
	s.refreshToken = pair.RefreshToken
	s.expiry = expiry
	s.mu.Unlock()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.expiry = time.Time{}
	s.user = nil
	s.mu.Unlock()
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.RLock()
	values := map[string]string{
		KeyAuthToken:    s.accessToken,
		KeyRefreshToken: s.refreshToken,
	}
	var user []byte
	if s.user != nil {
		user, _ = json.Marshal(s.user)
	}
	s.mu.RUnlock()
	if user != nil {
		values[KeyUserData] = string(user)
	}

	for key, value := range values {
		if value == "" {
			continue
		}
		if err := s.store.Set(ctx, key, value); err != nil {
			s.logger.Printf("auth: persist key=%s error=%v", key, err)
		}
	}
}

func (s *Session) forget(ctx context.Context) {
	if s.store == nil {
		return
	}
	for _, key := range []string{KeyAuthToken, KeyRefreshToken, KeyUserData} {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Printf("auth: forget key=%s error=%v", key, err)
		}
	}
}

func (s *Session) notify(ctx context.Context, authenticated bool) {
	s.mu.RLock()
	subs := make([]subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(ctx, authenticated)
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the API
// verifies tokens, the client only needs to know when to stop using one.
// Opaque tokens have no known expiry.
func tokenExpiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
