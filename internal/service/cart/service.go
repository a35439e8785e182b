// Package cart is the storefront cart: a local-first list of lines that is
// mirrored to the browser profile while the shopper is a guest and becomes
// a cache of the server cart once they sign in.
//
// Every server-backed mutation is applied locally first and then confirmed
// by refetching the whole server cart, so the settled state is always the
// server's.
package cart

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/remote"
	"storefront/internal/repository/profile"
)

type Mode string

const (
	Guest        Mode = "guest"
	ServerBacked Mode = "server_backed"
)

// StorageKey is the profile key holding the guest cart document.
const StorageKey = "cart"

var defaultTaxRate = decimal.RequireFromString("0.20")

// RemoteCart is the server cart API.
type RemoteCart interface {
	GetCart(ctx context.Context) (*remote.ServerCart, error)
	AddItem(ctx context.Context, productID domain.ID, period domain.BillingPeriod) error
	RemoveItem(ctx context.Context, productID domain.ID) error
	UpdateItemQuantity(ctx context.Context, serverLineID domain.ID, quantity int) error
	CreateCheckoutSession(ctx context.Context) (string, error)
}

// ProductLookup resolves display metadata for server cart lines.
type ProductLookup interface {
	Get(ctx context.Context, id domain.ID) (*domain.Product, error)
}

// Oracle tells the engine whether someone is signed in and when that changes.
type Oracle interface {
	IsAuthenticated() bool
	Subscribe(fn func(ctx context.Context, authenticated bool)) func()
}

// authFailureHandler is implemented by oracles that can recover from a
// rejected credential (refresh, or sign out).
type authFailureHandler interface {
	HandleAuthFailure(ctx context.Context) error
}

// productForgetter is implemented by product lookups that cache; a product
// rejected by AddItem is dropped so the next lookup sees fresh data.
type productForgetter interface {
	Forget(id domain.ID)
}

type Deps struct {
	Store    profile.Store
	Remote   RemoteCart
	Products ProductLookup
	Auth     Oracle
	Logger   *log.Logger
}

type Option func(*Engine)

// WithTaxRate sets the rate applied to the subtotal in snapshots.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(e *Engine) {
		e.taxRate = rate
	}
}

// State is a read-only copy of the cart with its derived values.
type State struct {
	Lines          []domain.CartLine
	IsOpen         bool
	Mode           Mode
	Error          string
	TotalItemCount int
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Shipping       decimal.Decimal
	Total          decimal.Decimal
}

type Engine struct {
	store    profile.Store
	remote   RemoteCart
	products ProductLookup
	auth     Oracle
	logger   *log.Logger
	taxRate  decimal.Decimal

	mu            sync.Mutex
	lines         []domain.CartLine
	isOpen        bool
	authenticated bool
	lastErr       string
	// epoch changes on every sign-in/sign-out; work issued under an older
	// epoch is discarded.
	epoch uint64
	// revision changes on every change to lines.
	revision uint64
	issued   uint64
	applied  uint64

	unsubscribe func()

	persistMu sync.Mutex
	persisted uint64
}

func New(deps Deps, opts ...Option) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		store:    deps.Store,
		remote:   deps.Remote,
		products: deps.Products,
		auth:     deps.Auth,
		logger:   logger,
		taxRate:  defaultTaxRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads the cart for the first time and subscribes to sign-in changes.
// A guest cart comes from the profile before any network activity; a
// signed-in shopper gets the server cart.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.unsubscribe == nil && e.auth != nil {
		e.unsubscribe = e.auth.Subscribe(e.onAuthChange)
	}
	e.mu.Unlock()

	if e.auth != nil && e.auth.IsAuthenticated() {
		return e.transition(ctx, true)
	}
	e.restore(ctx)
	return nil
}

// Close stops listening for sign-in changes.
func (e *Engine) Close() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Snapshot returns a copy of the cart; totals are computed on every call.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	lines := cloneLines(e.lines)
	st := State{
		Lines:  lines,
		IsOpen: e.isOpen,
		Mode:   e.modeLocked(),
		Error:  e.lastErr,
	}
	e.mu.Unlock()

	st.TotalItemCount = domain.TotalQuantity(lines)
	st.Subtotal = domain.Subtotal(lines)
	st.Tax = st.Subtotal.Mul(e.taxRate)
	st.Shipping = decimal.Zero
	st.Total = st.Subtotal.Add(st.Shipping).Add(st.Tax)
	return st
}

// ToggleVisibility sets IsOpen to *explicit, or flips it when explicit is nil.
func (e *Engine) ToggleVisibility(explicit *bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if explicit != nil {
		e.isOpen = *explicit
		return
	}
	e.isOpen = !e.isOpen
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modeLocked()
}

func (e *Engine) modeLocked() Mode {
	if e.authenticated {
		return ServerBacked
	}
	return Guest
}

func (e *Engine) observe(op string, err error) error {
	metrics.RecordCartOperation(op, string(e.Mode()), err)
	return err
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}
