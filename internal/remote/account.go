package remote

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/login",
		body:   creds,
	}, &pair); err != nil {
		return domain.TokenPair{}, err
	}
	if pair.Token == "" {
		return domain.TokenPair{}, fmt.Errorf("login: %w: no token in response", domain.ErrDecode)
	}
	return pair, nil
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := c.do(ctx, request{
		op:     "refresh token",
		method: http.MethodPost,
		path:   "/token/refresh",
		body:   refreshRequest{RefreshToken: refreshToken},
	}, &pair); err != nil {
		return domain.TokenPair{}, err
	}
	if pair.Token == "" {
		return domain.TokenPair{}, fmt.Errorf("refresh token: %w: no token in response", domain.ErrDecode)
	}
	return pair, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, request{
		op:            "get me",
		method:        http.MethodGet,
		path:          "/me",
		authenticated: true,
	}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateCheckoutSession starts a payment provider checkout for the server
// cart and returns the redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context) (string, error) {
	var out checkoutResponse
	if err := c.do(ctx, request{
		op:            "create checkout session",
		method:        http.MethodPost,
		path:          "/me/checkout",
		body:          struct{}{},
		authenticated: true,
	}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("create checkout session: %w: no url in response", domain.ErrDecode)
	}
	return out.URL, nil
}
