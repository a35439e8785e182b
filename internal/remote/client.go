// Package remote is the client for the storefront REST API: the server cart,
// the product catalog, authentication and checkout.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"storefront/internal/domain"
	"storefront/internal/metrics"
)

const (
	contentTypeJSON       = "application/json"
	contentTypeMergePatch = "application/merge-patch+json"
	maxErrorBody          = 4 << 10
)

// Config configures the API client.
type Config struct {
	BaseURL string
	// Timeout bounds each request; zero leaves requests to the caller's context.
	Timeout time.Duration
	// BreakerFailureThreshold consecutive network or 5xx failures open the breaker.
	BreakerFailureThreshold uint32
	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the storefront API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     *log.Logger

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

type response struct {
	status int
	body   []byte
}

type request struct {
	op            string
	method        string
	path          string
	body          interface{}
	contentType   string
	authenticated bool
}

// New builds a Client. Bearer credentials are attached once a token source
// is installed with UseTokenSource.
func New(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("remote: breaker name=%s from=%s to=%s", name, from, to)
			metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
	})
	return c
}

// UseTokenSource installs the bearer credential source for authenticated calls.
func (c *Client) UseTokenSource(ts oauth2.TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// WithTokenSource returns a client for one shopper. It shares the transport
// and the circuit breaker with c.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		breaker:    c.breaker,
		logger:     c.logger,
		tokens:     ts,
	}
}

// countsAsSuccess keeps client-side rejections and caller cancellations from
// tripping the breaker; only transport failures and 5xx answers count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode < 500
	}
	return !errors.Is(err, domain.ErrNetwork)
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	started := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordRemoteRequest(req.op, 0, started)
		return &domain.NetworkError{Op: req.op, Err: err}
	}
	status := 0
	if resp != nil {
		status = resp.status
	}
	metrics.RecordRemoteRequest(req.op, status, started)
	if err != nil {
		c.logger.Printf("remote: %s %s status=%d error=%v", req.method, req.path, status, err)
		return err
	}

	if out == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", req.op, domain.ErrDecode, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.body != nil {
		contentType := req.contentType
		if contentType == "" {
			contentType = contentTypeJSON
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.authenticated {
		if err := c.authorize(httpReq); err != nil {
			return nil, fmt.Errorf("%s: %w", req.op, err)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &response{status: resp.StatusCode}, &domain.NetworkError{Op: req.op, Err: fmt.Errorf("read response: %w", err)}
	}
	out := &response{status: resp.StatusCode, body: respBody}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return out, &domain.RemoteError{Op: req.op, StatusCode: resp.StatusCode, Body: text}
	}
	return out, nil
}

func (c *Client) authorize(r *http.Request) error {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return domain.ErrUnauthenticated
	}
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	tok.SetAuthHeader(r)
	return nil
}
