package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/remote"
	"storefront/internal/repository/profile"
)

type stubRemote struct {
	mu sync.Mutex

	carts       []*remote.ServerCart
	getErr      error
	gates       map[int]chan struct{}
	started     chan int
	addErr      error
	removeErr   error
	updateErr   error
	checkoutURL string
	checkoutErr error

	getCalls          int
	addCalls          int
	removeCalls       int
	updateCalls       int
	lastAddProduct    domain.ID
	lastAddPeriod     domain.BillingPeriod
	lastRemoveProduct domain.ID
	lastUpdateLineID  domain.ID
	lastUpdateQty     int
}

func (s *stubRemote) GetCart(context.Context) (*remote.ServerCart, error) {
	s.mu.Lock()
	call := s.getCalls
	s.getCalls++
	gate := s.gates[call]
	err := s.getErr
	var cart *remote.ServerCart
	if len(s.carts) > 0 {
		idx := call
		if idx >= len(s.carts) {
			idx = len(s.carts) - 1
		}
		cart = s.carts[idx]
	}
	started := s.started
	s.mu.Unlock()

	if started != nil {
		started <- call
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if cart == nil {
		cart = &remote.ServerCart{}
	}
	return cart, nil
}

func (s *stubRemote) AddItem(_ context.Context, productID domain.ID, period domain.BillingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	s.lastAddProduct = productID
	s.lastAddPeriod = period
	return s.addErr
}

func (s *stubRemote) RemoveItem(_ context.Context, productID domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	s.lastRemoveProduct = productID
	return s.removeErr
}

func (s *stubRemote) UpdateItemQuantity(_ context.Context, serverLineID domain.ID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	s.lastUpdateLineID = serverLineID
	s.lastUpdateQty = quantity
	return s.updateErr
}

func (s *stubRemote) CreateCheckoutSession(context.Context) (string, error) {
	return s.checkoutURL, s.checkoutErr
}

func (s *stubRemote) calls() (get, add, remove, update int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.addCalls, s.removeCalls, s.updateCalls
}

type stubProducts struct {
	products  map[domain.ID]domain.Product
	forgotten []domain.ID
}

func (s *stubProducts) Forget(id domain.ID) {
	s.forgotten = append(s.forgotten, id)
}

func (s *stubProducts) Get(_ context.Context, id domain.ID) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

type stubOracle struct {
	mu            sync.Mutex
	authenticated bool
	listeners     []func(context.Context, bool)
	failureCalls  int
}

func (s *stubOracle) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *stubOracle) Subscribe(fn func(ctx context.Context, authenticated bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[idx] = nil
	}
}

func (s *stubOracle) HandleAuthFailure(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCalls++
	return nil
}

func (s *stubOracle) set(ctx context.Context, authenticated bool) {
	s.mu.Lock()
	s.authenticated = authenticated
	listeners := append([]func(context.Context, bool){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(ctx, authenticated)
		}
	}
}

func product(id domain.ID, name string, monthly, yearly string) domain.Product {
	p := domain.Product{ID: id, Name: name, Active: true}
	if monthly != "" {
		p.MonthlyAmount = decimal.NewNullDecimal(decimal.RequireFromString(monthly))
	}
	if yearly != "" {
		p.YearlyAmount = decimal.NewNullDecimal(decimal.RequireFromString(yearly))
	}
	return p
}

func serverLine(id domain.ID, period domain.BillingPeriod, qty int, price string, lineID domain.ID) remote.ServerLine {
	return remote.ServerLine{
		ProductID:     id,
		BillingPeriod: period,
		Quantity:      qty,
		UnitPrice:     decimal.RequireFromString(price),
		ServerLineID:  lineID,
	}
}

type fixture struct {
	engine   *Engine
	remote   *stubRemote
	oracle   *stubOracle
	store    profile.Store
	products *stubProducts
}

func newFixture(t *testing.T, store profile.Store) *fixture {
	t.Helper()
	if store == nil {
		store = profile.Scope(profile.NewMemory(), "browser-1")
	}
	f := &fixture{
		remote: &stubRemote{},
		oracle: &stubOracle{},
		store:  store,
		products: &stubProducts{products: map[domain.ID]domain.Product{
			"A": {ID: "A", Name: "Alpha", ImageURL: "https://img/a.png"},
			"B": {ID: "B", Name: "Beta"},
		}},
	}
	f.engine = New(Deps{Store: f.store, Remote: f.remote, Products: f.products, Auth: f.oracle})
	t.Cleanup(f.engine.Close)
	return f
}

// signedIn starts the engine for an already authenticated shopper.
func signedIn(t *testing.T, carts ...*remote.ServerCart) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	f.remote.carts = carts
	f.oracle.authenticated = true
	require.NoError(t, f.engine.Start(context.Background()))
	require.Equal(t, ServerBacked, f.engine.Snapshot().Mode)
	return f
}

func storedDocument(t *testing.T, store profile.Store) (document, bool) {
	t.Helper()
	raw, err := store.Get(context.Background(), StorageKey)
	if errors.Is(err, domain.ErrNotFound) {
		return document{}, false
	}
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc, true
}

func TestGuestAddTwiceIncrementsSingleLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.Start(ctx))

	a := product("A", "Alpha", "10", "100")
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))

	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, domain.ID("A"), st.Lines[0].ProductID)
	assert.Equal(t, domain.Monthly, st.Lines[0].BillingPeriod)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.True(t, st.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, st.Subtotal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, Guest, st.Mode)

	get, add, _, _ := f.remote.calls()
	assert.Zero(t, get+add, "guest cart must not touch the network")
}

func TestAddKeepsOneLinePerProductAndPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := product("A", "Alpha", "10", "100")
	b := product("B", "Beta", "5", "50")

	sequence := []struct {
		p      domain.Product
		period domain.BillingPeriod
	}{
		{a, domain.Monthly}, {b, domain.Yearly}, {a, domain.Yearly}, {a, domain.Monthly},
		{b, domain.Yearly}, {b, domain.Monthly}, {a, domain.Monthly},
	}
	for _, step := range sequence {
		require.NoError(t, f.engine.AddItem(ctx, step.p, step.period))
	}

	st := f.engine.Snapshot()
	seen := map[string]int{}
	for _, line := range st.Lines {
		seen[string(line.ProductID)+"/"+string(line.BillingPeriod)]++
	}
	for pair, n := range seen {
		assert.Equal(t, 1, n, pair)
	}
	require.Len(t, st.Lines, 4)
	assert.Equal(t, 3, st.Lines[0].Quantity)
	assert.Equal(t, domain.ID("B"), st.Lines[1].ProductID, "insertion order is display order")
	assert.Equal(t, 7, st.TotalItemCount)
}

func TestAddValidatesBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t)
	_, addBefore, _, _ := f.remote.calls()

	cases := map[string]struct {
		p      domain.Product
		period domain.BillingPeriod
	}{
		"unsupported period": {product("A", "Alpha", "10", "100"), domain.BillingPeriod("weekly")},
		"no yearly price":    {product("A", "Alpha", "10", ""), domain.Yearly},
		"missing id":         {product("", "Alpha", "10", ""), domain.Monthly},
		"missing name":       {product("A", "", "10", ""), domain.Monthly},
		"inactive":           {domain.Product{ID: "A", Name: "Alpha", MonthlyAmount: decimal.NewNullDecimal(decimal.NewFromInt(1))}, domain.Monthly},
	}
	for name, tc := range cases {
		err := f.engine.AddItem(ctx, tc.p, tc.period)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%s: %v", name, err)
		assert.NotEmpty(t, f.engine.Snapshot().Error, name)
	}

	_, addAfter, _, _ := f.remote.calls()
	assert.Equal(t, addBefore, addAfter)
	assert.Empty(t, f.engine.Snapshot().Lines)
}

func TestGuestRemoveItemTakesOneUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := product("A", "Alpha", "10", "")
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "3", ""), domain.Monthly))

	require.NoError(t, f.engine.RemoveItem(ctx, "A", domain.Monthly))

	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 2)
	assert.Equal(t, 1, st.Lines[0].Quantity)
	assert.Equal(t, 2, st.TotalItemCount)
	doc, ok := storedDocument(t, f.store)
	require.True(t, ok)
	assert.Equal(t, 1, doc.Lines[0].Quantity)

	require.NoError(t, f.engine.RemoveItem(ctx, "A", domain.Monthly))
	st = f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, domain.ID("B"), st.Lines[0].ProductID)

	require.NoError(t, f.engine.RemoveItem(ctx, "A", domain.Monthly), "missing line is a no-op")
	assert.Len(t, f.engine.Snapshot().Lines, 1)
	get, _, remove, update := f.remote.calls()
	assert.Zero(t, get+remove+update)
}

func TestRejectedProductIsForgotten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	inactive := product("A", "Alpha", "10", "")
	inactive.Active = false
	assert.Error(t, f.engine.AddItem(ctx, inactive, domain.Monthly))
	assert.Error(t, f.engine.AddItem(ctx, product("B", "Beta", "3", ""), domain.Yearly))
	assert.Error(t, f.engine.AddItem(ctx, product("B", "Beta", "3", ""), domain.BillingPeriod("weekly")))
	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "3", ""), domain.Monthly))

	assert.Equal(t, []domain.ID{"A", "B"}, f.products.forgotten)
}

func TestUpdateQuantityZeroOrNegativeRemovesLine(t *testing.T) {
	for _, qty := range []int{0, -1, -40} {
		ctx := context.Background()
		f := newFixture(t, nil)
		require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))
		require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "3", ""), domain.Monthly))

		require.NoError(t, f.engine.UpdateQuantity(ctx, "A", domain.Monthly, qty))

		st := f.engine.Snapshot()
		require.Len(t, st.Lines, 1, "qty=%d", qty)
		assert.Equal(t, domain.ID("B"), st.Lines[0].ProductID)
	}
}

func TestUpdateQuantityOnMissingLineIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10", "100"), domain.Monthly))
	before := f.engine.Snapshot().Lines

	require.NoError(t, f.engine.UpdateQuantity(ctx, "A", domain.Yearly, 5))
	require.NoError(t, f.engine.UpdateQuantity(ctx, "Z", domain.Monthly, 2))

	assert.Equal(t, before, f.engine.Snapshot().Lines)
}

func TestUpdateQuantitySetsGuestLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10", "100"), domain.Yearly))

	require.NoError(t, f.engine.UpdateQuantity(ctx, "A", domain.Yearly, 4))

	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 4, st.Lines[0].Quantity)
	assert.True(t, st.Subtotal.Equal(decimal.NewFromInt(400)))
	doc, ok := storedDocument(t, f.store)
	require.True(t, ok)
	assert.Equal(t, 4, doc.Lines[0].Quantity)
}

func TestSnapshotTotalsAreRecomputed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10.50", ""), domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10.50", ""), domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "", "99.99"), domain.Yearly))

	st := f.engine.Snapshot()
	assert.Equal(t, 3, st.TotalItemCount)
	assert.Equal(t, "120.99", st.Subtotal.String())
	assert.Equal(t, "24.198", st.Tax.String())
	assert.True(t, st.Shipping.IsZero())
	assert.Equal(t, "145.188", st.Total.String())

	require.NoError(t, f.engine.RemoveItem(ctx, "B", domain.Yearly))
	st = f.engine.Snapshot()
	assert.Equal(t, 2, st.TotalItemCount)
	assert.Equal(t, "21", st.Subtotal.String())

	zero := New(Deps{}, WithTaxRate(decimal.Zero))
	require.NoError(t, zero.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))
	assert.True(t, zero.Snapshot().Tax.IsZero())
}

func TestLoginReplacesGuestLinesWithServerCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.remote.carts = []*remote.ServerCart{{Lines: []remote.ServerLine{
		serverLine("B", domain.Yearly, 1, "50", "line-b"),
	}}}
	require.NoError(t, f.engine.Start(ctx))

	a := product("A", "Alpha", "10", "")
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, a, domain.Monthly))
	_, persisted := storedDocument(t, f.store)
	require.True(t, persisted)

	f.oracle.set(ctx, true)

	st := f.engine.Snapshot()
	assert.Equal(t, ServerBacked, st.Mode)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, domain.ID("B"), st.Lines[0].ProductID)
	assert.Equal(t, "Beta", st.Lines[0].DisplayName)
	assert.Equal(t, domain.PlaceholderImageURL, st.Lines[0].ImageURL)
	assert.Equal(t, domain.ID("line-b"), st.Lines[0].ServerLineID)
	for _, line := range st.Lines {
		assert.NotEqual(t, domain.ID("A"), line.ProductID)
	}

	_, add, _, _ := f.remote.calls()
	assert.Zero(t, add, "guest lines are not merged into the server cart")
	_, persisted = storedDocument(t, f.store)
	assert.False(t, persisted, "guest document is dropped on sign-in")
}

func TestLogoutStartsFreshGuestCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.store.Set(ctx, StorageKey, `{"lines":[{"productId":"OLD","billingPeriod":"month","unitPrice":"1","quantity":1,"displayName":"Old"}]}`))
	f.remote.carts = []*remote.ServerCart{{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 2, "10", "l-1")}}}
	f.oracle.authenticated = true
	require.NoError(t, f.engine.Start(ctx))
	require.Len(t, f.engine.Snapshot().Lines, 1)

	f.oracle.set(ctx, false)

	st := f.engine.Snapshot()
	assert.Equal(t, Guest, st.Mode)
	assert.Empty(t, st.Lines)
	doc, ok := storedDocument(t, f.store)
	require.True(t, ok)
	assert.Empty(t, doc.Lines)

	reloaded := New(Deps{Store: f.store, Auth: &stubOracle{}})
	require.NoError(t, reloaded.Start(ctx))
	assert.Empty(t, reloaded.Snapshot().Lines, "pre-login guest cart is not resurrected")
}

func TestGuestCartSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := profile.Scope(profile.NewMemory(), "browser-1")
	f := newFixture(t, store)
	require.NoError(t, f.engine.Start(ctx))

	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "5", "50"), domain.Yearly))
	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10.25", ""), domain.Monthly))
	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "5", "50"), domain.Yearly))
	require.NoError(t, f.engine.AddItem(ctx, product("B", "Beta", "5", "50"), domain.Monthly))
	want := f.engine.Snapshot().Lines

	reloaded := newFixture(t, store)
	require.NoError(t, reloaded.engine.Start(ctx))

	got := reloaded.engine.Snapshot().Lines
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ProductID, got[i].ProductID)
		assert.Equal(t, want[i].BillingPeriod, got[i].BillingPeriod)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice))
		assert.Equal(t, want[i].DisplayName, got[i].DisplayName)
		assert.Equal(t, want[i].ImageURL, got[i].ImageURL)
	}
	get, _, _, _ := reloaded.remote.calls()
	assert.Zero(t, get)
}

func TestRestoreToleratesBadDocuments(t *testing.T) {
	ctx := context.Background()

	corrupt := profile.Scope(profile.NewMemory(), "p")
	require.NoError(t, corrupt.Set(ctx, StorageKey, `{"lines":[`))
	f := newFixture(t, corrupt)
	require.NoError(t, f.engine.Start(ctx))
	assert.Empty(t, f.engine.Snapshot().Lines)

	messy := profile.Scope(profile.NewMemory(), "p")
	require.NoError(t, messy.Set(ctx, StorageKey, `{"lines":[
		{"productId":"A","billingPeriod":"month","unitPrice":"10","quantity":1,"displayName":"Alpha"},
		{"productId":"A","billingPeriod":"weekly","unitPrice":"10","quantity":1},
		{"productId":"B","billingPeriod":"year","unitPrice":"5","quantity":0},
		{"productId":"A","billingPeriod":"month","unitPrice":"10","quantity":2,"serverLineId":"stale"}
	]}`))
	g := newFixture(t, messy)
	require.NoError(t, g.engine.Start(ctx))
	lines := g.engine.Snapshot().Lines
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Empty(t, lines[0].ServerLineID)
}

type failingStore struct {
	profile.Store
	setCalls int
}

func (s *failingStore) Set(context.Context, string, string) error {
	s.setCalls++
	return errors.New("quota exceeded")
}

func TestGuestPersistFailureIsOnlyLogged(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: profile.Scope(profile.NewMemory(), "browser-1")}
	var logs bytes.Buffer
	engine := New(Deps{Store: store, Auth: &stubOracle{}, Logger: log.New(&logs, "", 0)})
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(engine.Close)

	require.NotPanics(t, func() {
		require.NoError(t, engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))
		require.NoError(t, engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))
	})

	st := engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.Empty(t, st.Error)
	assert.Equal(t, 2, store.setCalls)
	assert.Contains(t, logs.String(), "quota exceeded")
	assert.Contains(t, logs.String(), StorageKey)
}

func TestServerBackedAddRefetchesServerTruth(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t,
		&remote.ServerCart{},
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "9.00", "l-1")}},
	)

	require.NoError(t, f.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))

	assert.Equal(t, domain.ID("A"), f.remote.lastAddProduct)
	assert.Equal(t, domain.Monthly, f.remote.lastAddPeriod)
	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "9", st.Lines[0].UnitPrice.String(), "server price wins over the snapshot")
	assert.Equal(t, domain.ID("l-1"), st.Lines[0].ServerLineID)
	assert.Equal(t, "Alpha", st.Lines[0].DisplayName)
	assert.Equal(t, "https://img/a.png", st.Lines[0].ImageURL)
	assert.Empty(t, st.Error)
	_, persisted := storedDocument(t, f.store)
	assert.False(t, persisted, "server-backed carts are not mirrored to the profile")
}

func TestServerBackedAddNetworkFailureKeepsOptimisticLine(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{})
	f.remote.addErr = &domain.NetworkError{Op: "add cart item", Err: errors.New("connection refused")}

	err := f.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, domain.ID("A"), st.Lines[0].ProductID)
	assert.Equal(t, 1, st.Lines[0].Quantity)
	assert.Contains(t, st.Error, "connection refused")
	get, _, _, _ := f.remote.calls()
	assert.Equal(t, 1, get, "no refetch after a failed add")
}

func TestServerBackedRejectionMessage(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "l-1")}})
	f.remote.removeErr = &domain.RemoteError{Op: "remove cart item", StatusCode: 500, Body: "boom"}

	err := f.engine.RemoveItem(ctx, "A", domain.Monthly)

	assert.True(t, errors.Is(err, domain.ErrRemoteRejected))
	assert.Equal(t, "HTTP 500: boom", f.engine.Snapshot().Error)
	assert.Empty(t, f.engine.Snapshot().Lines, "optimistic removal is not rolled back")
}

func TestServerBackedRemoveLastLineViaUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t,
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 2, "10", "l-1")}},
		&remote.ServerCart{},
	)

	require.NoError(t, f.engine.UpdateQuantity(ctx, "A", domain.Monthly, 0))

	assert.Equal(t, domain.ID("A"), f.remote.lastRemoveProduct)
	assert.Equal(t, 0, f.engine.Snapshot().TotalItemCount)
	assert.Empty(t, f.engine.Snapshot().Lines)
}

func TestServerBackedRemoveItemDecrementsThenDeletes(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t,
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 2, "10", "l-1")}},
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "l-1")}},
		&remote.ServerCart{},
	)

	require.NoError(t, f.engine.RemoveItem(ctx, "A", domain.Monthly))

	assert.Equal(t, domain.ID("l-1"), f.remote.lastUpdateLineID)
	assert.Equal(t, 1, f.remote.lastUpdateQty)
	_, _, remove, update := f.remote.calls()
	assert.Zero(t, remove)
	assert.Equal(t, 1, update)
	require.Len(t, f.engine.Snapshot().Lines, 1)
	assert.Equal(t, 1, f.engine.Snapshot().Lines[0].Quantity)

	require.NoError(t, f.engine.RemoveItem(ctx, "A", domain.Monthly))

	assert.Equal(t, domain.ID("A"), f.remote.lastRemoveProduct)
	get, _, remove, update := f.remote.calls()
	assert.Equal(t, 1, remove)
	assert.Equal(t, 1, update)
	assert.Equal(t, 3, get)
	assert.Empty(t, f.engine.Snapshot().Lines)
}

func TestServerBackedUpdateQuantityPatchesServerLine(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t,
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Yearly, 1, "100", "l-7")}},
		&remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Yearly, 3, "100", "l-7")}},
	)

	require.NoError(t, f.engine.UpdateQuantity(ctx, "A", domain.Yearly, 3))

	assert.Equal(t, domain.ID("l-7"), f.remote.lastUpdateLineID)
	assert.Equal(t, 3, f.remote.lastUpdateQty)
	assert.Equal(t, 3, f.engine.Snapshot().TotalItemCount)
}

func TestServerBackedUpdateRejectsUnconfirmedLine(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{})
	f.remote.addErr = &domain.NetworkError{Op: "add cart item", Err: errors.New("timeout")}
	_ = f.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly)

	err := f.engine.UpdateQuantity(ctx, "A", domain.Monthly, 5)

	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 1, f.engine.Snapshot().Lines[0].Quantity)
	_, _, _, update := f.remote.calls()
	assert.Zero(t, update)
}

func TestRefreshFailureKeepsLastKnownGoodLines(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 2, "10", "l-1")}})
	f.remote.getErr = &domain.RemoteError{Op: "get cart", StatusCode: 503, Body: "maintenance"}

	err := f.engine.Refresh(ctx)

	require.Error(t, err)
	st := f.engine.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.Equal(t, "HTTP 503: maintenance", st.Error)
}

func TestAuthFailureIsRoutedToOracle(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{})
	f.remote.addErr = &domain.RemoteError{Op: "add cart item", StatusCode: 401, Body: "expired"}

	err := f.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly)

	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
	assert.Equal(t, 1, f.oracle.failureCalls)
	assert.Empty(t, f.engine.Snapshot().Error, "auth failures are not cart errors")
}

func TestEnrichmentDegradesUnknownProducts(t *testing.T) {
	f := signedIn(t, &remote.ServerCart{Lines: []remote.ServerLine{
		serverLine("Z", domain.Monthly, 1, "1", "l-z"),
		serverLine("A", domain.Monthly, 1, "10", "l-a"),
		serverLine("A", domain.Monthly, 2, "10", "l-a2"),
	}})

	lines := f.engine.Snapshot().Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "Z", lines[0].DisplayName)
	assert.Equal(t, domain.PlaceholderImageURL, lines[0].ImageURL)
	assert.Equal(t, 3, lines[1].Quantity, "repeated server lines fold into one")
}

func TestStaleRefreshIsDropped(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{})

	f.remote.mu.Lock()
	f.remote.carts = []*remote.ServerCart{
		{},
		{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "old")}},
		{Lines: []remote.ServerLine{serverLine("B", domain.Monthly, 5, "1", "new")}},
	}
	gate := make(chan struct{})
	f.remote.gates = map[int]chan struct{}{1: gate}
	f.remote.started = make(chan int, 4)
	f.remote.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.engine.Refresh(ctx) }()
	select {
	case call := <-f.remote.started:
		require.Equal(t, 1, call)
	case <-time.After(time.Second):
		t.Fatal("first refresh never reached the server")
	}

	require.NoError(t, f.engine.Refresh(ctx))
	<-f.remote.started
	close(gate)
	require.NoError(t, <-done)

	lines := f.engine.Snapshot().Lines
	require.Len(t, lines, 1)
	assert.Equal(t, domain.ID("new"), lines[0].ServerLineID)
}

func TestRefreshInFlightDuringLogoutIsDropped(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{})

	f.remote.mu.Lock()
	f.remote.carts = []*remote.ServerCart{{}, {Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "l-1")}}}
	gate := make(chan struct{})
	f.remote.gates = map[int]chan struct{}{1: gate}
	f.remote.started = make(chan int, 4)
	f.remote.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.engine.Refresh(ctx) }()
	<-f.remote.started

	f.oracle.set(ctx, false)
	close(gate)
	require.NoError(t, <-done)

	st := f.engine.Snapshot()
	assert.Equal(t, Guest, st.Mode)
	assert.Empty(t, st.Lines)
}

func TestClearCartIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	f := signedIn(t, &remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "l-1")}})
	getBefore, _, _, _ := f.remote.calls()

	f.engine.ClearCart()

	assert.Empty(t, f.engine.Snapshot().Lines)
	get, add, remove, update := f.remote.calls()
	assert.Equal(t, getBefore, get)
	assert.Zero(t, add+remove+update)

	g := newFixture(t, nil)
	require.NoError(t, g.engine.AddItem(ctx, product("A", "Alpha", "10", ""), domain.Monthly))
	g.engine.ClearCart()
	doc, ok := storedDocument(t, g.store)
	require.True(t, ok)
	assert.Empty(t, doc.Lines)
}

func TestToggleVisibility(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.engine.Snapshot().IsOpen)

	f.engine.ToggleVisibility(nil)
	assert.True(t, f.engine.Snapshot().IsOpen)
	f.engine.ToggleVisibility(nil)
	assert.False(t, f.engine.Snapshot().IsOpen)

	open := true
	f.engine.ToggleVisibility(&open)
	f.engine.ToggleVisibility(&open)
	assert.True(t, f.engine.Snapshot().IsOpen)
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	guest := newFixture(t, nil)
	_, err := guest.engine.Checkout(ctx)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))

	empty := signedIn(t, &remote.ServerCart{})
	_, err = empty.engine.Checkout(ctx)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	f := signedIn(t, &remote.ServerCart{Lines: []remote.ServerLine{serverLine("A", domain.Monthly, 1, "10", "l-1")}})
	f.remote.checkoutURL = "https://pay.example/s/1"
	url, err := f.engine.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s/1", url)
}

func TestCloseStopsListening(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.Start(ctx))
	f.engine.Close()

	f.oracle.set(ctx, true)
	assert.Equal(t, Guest, f.engine.Snapshot().Mode)
}
