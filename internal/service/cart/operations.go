package cart

import (
	"context"
	"fmt"

	"storefront/internal/domain"
)

// AddItem adds one unit of product at period. An existing line for the same
// product and period is incremented instead of duplicated.
func (e *Engine) AddItem(ctx context.Context, product domain.Product, period domain.BillingPeriod) error {
	line, err := newLine(product, period)
	if err != nil {
		if f, ok := e.products.(productForgetter); ok && product.ID != "" && period.Valid() {
			f.Forget(product.ID)
		}
		e.setError(err)
		return e.observe("add", err)
	}

	e.mu.Lock()
	e.lines = addLine(e.lines, line)
	pending := e.changedLocked()
	e.mu.Unlock()

	if !pending.serverBacked {
		e.persist(ctx, pending)
		return e.observe("add", nil)
	}
	if err := e.remote.AddItem(ctx, product.ID, period); err != nil {
		e.logger.Printf("cart engine: add product_id=%s period=%s error=%v", product.ID, period, err)
		return e.observe("add", e.fail(ctx, pending.epoch, err))
	}
	return e.observe("add", e.Refresh(ctx))
}

// RemoveItem takes one unit off the line for productID and period. The
// line goes away when its last unit is removed.
func (e *Engine) RemoveItem(ctx context.Context, productID domain.ID, period domain.BillingPeriod) error {
	if !period.Valid() {
		err := &domain.ValidationError{Field: "billingPeriod", Reason: fmt.Sprintf("unsupported value %q", period)}
		e.setError(err)
		return e.observe("remove", err)
	}

	e.mu.Lock()
	idx := findLine(e.lines, productID, period)
	if idx < 0 {
		e.lastErr = ""
		e.mu.Unlock()
		return e.observe("remove", nil)
	}
	quantity := e.lines[idx].Quantity - 1
	e.mu.Unlock()

	if quantity < 1 {
		return e.observe("remove", e.dropLine(ctx, productID, period))
	}
	return e.observe("remove", e.setQuantity(ctx, productID, period, quantity))
}

// UpdateQuantity sets the quantity of an existing line. A quantity of zero
// or less removes the line; a missing line is left alone.
func (e *Engine) UpdateQuantity(ctx context.Context, productID domain.ID, period domain.BillingPeriod, quantity int) error {
	if !period.Valid() {
		err := &domain.ValidationError{Field: "billingPeriod", Reason: fmt.Sprintf("unsupported value %q", period)}
		e.setError(err)
		return e.observe("update", err)
	}
	if quantity <= 0 {
		return e.observe("update", e.dropLine(ctx, productID, period))
	}
	return e.observe("update", e.setQuantity(ctx, productID, period, quantity))
}

// dropLine removes the whole line. The server cart drops it by product.
func (e *Engine) dropLine(ctx context.Context, productID domain.ID, period domain.BillingPeriod) error {
	e.mu.Lock()
	idx := findLine(e.lines, productID, period)
	if idx < 0 {
		e.lastErr = ""
		e.mu.Unlock()
		return nil
	}
	e.lines = removeLine(e.lines, idx)
	pending := e.changedLocked()
	e.mu.Unlock()

	if !pending.serverBacked {
		e.persist(ctx, pending)
		return nil
	}
	if err := e.remote.RemoveItem(ctx, productID); err != nil {
		e.logger.Printf("cart engine: remove product_id=%s error=%v", productID, err)
		return e.fail(ctx, pending.epoch, err)
	}
	return e.Refresh(ctx)
}

// setQuantity sets a positive quantity on an existing line. Server lines
// are patched by their server ID, so a line the server has not confirmed
// yet cannot be changed.
func (e *Engine) setQuantity(ctx context.Context, productID domain.ID, period domain.BillingPeriod, quantity int) error {
	e.mu.Lock()
	idx := findLine(e.lines, productID, period)
	if idx < 0 {
		e.lastErr = ""
		e.mu.Unlock()
		return nil
	}
	serverLineID := e.lines[idx].ServerLineID
	if e.authenticated && serverLineID == "" {
		err := &domain.ValidationError{Field: "serverLineId", Reason: "line is not confirmed by the server yet"}
		e.lastErr = err.Error()
		e.mu.Unlock()
		return err
	}
	e.lines[idx].Quantity = quantity
	pending := e.changedLocked()
	e.mu.Unlock()

	if !pending.serverBacked {
		e.persist(ctx, pending)
		return nil
	}
	if err := e.remote.UpdateItemQuantity(ctx, serverLineID, quantity); err != nil {
		e.logger.Printf("cart engine: update server_line_id=%s quantity=%d error=%v", serverLineID, quantity, err)
		return e.fail(ctx, pending.epoch, err)
	}
	return e.Refresh(ctx)
}

// ClearCart empties the cart locally. The server cart is not touched.
func (e *Engine) ClearCart() {
	e.mu.Lock()
	e.lines = nil
	pending := e.changedLocked()
	e.mu.Unlock()

	if !pending.serverBacked {
		e.persist(context.Background(), pending)
	}
	e.observe("clear", nil)
}

// Checkout opens a payment session for the signed-in shopper's server cart
// and returns the provider URL to redirect to.
func (e *Engine) Checkout(ctx context.Context) (string, error) {
	e.mu.Lock()
	authenticated := e.authenticated
	epoch := e.epoch
	empty := len(e.lines) == 0
	e.mu.Unlock()

	if !authenticated {
		err := fmt.Errorf("checkout: %w", domain.ErrUnauthenticated)
		e.setError(err)
		return "", e.observe("checkout", err)
	}
	if empty {
		err := &domain.ValidationError{Field: "lines", Reason: "cart is empty"}
		e.setError(err)
		return "", e.observe("checkout", err)
	}
	url, err := e.remote.CreateCheckoutSession(ctx)
	if err != nil {
		e.logger.Printf("cart engine: checkout error=%v", err)
		return "", e.observe("checkout", e.fail(ctx, epoch, err))
	}
	e.setError(nil)
	return url, e.observe("checkout", nil)
}

// pendingChange describes a local mutation that still has to be mirrored.
type pendingChange struct {
	serverBacked bool
	epoch        uint64
	revision     uint64
	lines        []domain.CartLine
}

// changedLocked records a change to lines and clears the last error.
func (e *Engine) changedLocked() pendingChange {
	e.revision++
	e.lastErr = ""
	return pendingChange{
		serverBacked: e.authenticated,
		epoch:        e.epoch,
		revision:     e.revision,
		lines:        cloneLines(e.lines),
	}
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.lastErr = ""
		return
	}
	e.lastErr = errorMessage(err)
}
