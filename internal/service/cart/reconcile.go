package cart

import (
	"context"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/remote"
)

func (e *Engine) onAuthChange(ctx context.Context, authenticated bool) {
	if err := e.transition(ctx, authenticated); err != nil {
		e.logger.Printf("cart engine: auth transition authenticated=%t error=%v", authenticated, err)
	}
}

// transition switches modes. Lines from the previous mode are discarded;
// the guest cart is never merged into the server cart and is not reloaded
// after sign-out.
func (e *Engine) transition(ctx context.Context, authenticated bool) error {
	e.mu.Lock()
	if e.authenticated == authenticated {
		e.mu.Unlock()
		return nil
	}
	e.authenticated = authenticated
	e.epoch++
	e.lines = nil
	e.lastErr = ""
	e.revision++
	pending := pendingChange{epoch: e.epoch, revision: e.revision}
	e.mu.Unlock()

	if authenticated {
		e.logger.Printf("cart engine: signed in, dropping guest cart")
		e.forget(ctx, pending)
		return e.Refresh(ctx)
	}
	e.logger.Printf("cart engine: signed out, starting empty guest cart")
	e.persist(ctx, pending)
	return nil
}

// Refresh replaces the lines with the server cart. A response is dropped
// when a later refresh was already applied or the shopper signed in or out
// while it was in flight. Guest carts have nothing to refresh.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if !e.authenticated {
		e.mu.Unlock()
		return nil
	}
	e.issued++
	ticket := e.issued
	epoch := e.epoch
	e.mu.Unlock()

	serverCart, err := e.remote.GetCart(ctx)
	if err != nil {
		metrics.RecordRefresh("failed")
		e.logger.Printf("cart engine: refresh ticket=%d error=%v", ticket, err)
		return e.fail(ctx, epoch, err)
	}
	lines := e.enrich(ctx, serverCart.Lines)

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || ticket < e.applied {
		metrics.RecordRefresh("stale")
		e.logger.Printf("cart engine: drop stale refresh ticket=%d applied=%d", ticket, e.applied)
		return nil
	}
	e.applied = ticket
	e.lines = lines
	e.revision++
	e.lastErr = ""
	metrics.RecordRefresh("applied")
	return nil
}

// enrich turns server lines into cart lines with display metadata. A
// product that cannot be looked up is shown by its ID with the placeholder
// image.
func (e *Engine) enrich(ctx context.Context, serverLines []remote.ServerLine) []domain.CartLine {
	products := make(map[domain.ID]*domain.Product)
	lines := make([]domain.CartLine, 0, len(serverLines))
	for _, sl := range serverLines {
		p, seen := products[sl.ProductID]
		if !seen {
			var err error
			if e.products != nil {
				p, err = e.products.Get(ctx, sl.ProductID)
			}
			if err != nil {
				e.logger.Printf("cart engine: enrich product_id=%s error=%v", sl.ProductID, err)
				p = nil
			}
			products[sl.ProductID] = p
		}

		line := domain.CartLine{
			ProductID:     sl.ProductID,
			BillingPeriod: sl.BillingPeriod,
			UnitPrice:     sl.UnitPrice,
			Quantity:      sl.Quantity,
			DisplayName:   string(sl.ProductID),
			ImageURL:      domain.PlaceholderImageURL,
			ServerLineID:  sl.ServerLineID,
		}
		if p != nil {
			if p.Name != "" {
				line.DisplayName = p.Name
			}
			line.ImageURL = p.Image()
		}
		if idx := findLine(lines, line.ProductID, line.BillingPeriod); idx >= 0 {
			e.logger.Printf("cart engine: server cart repeats product_id=%s period=%s, merging", line.ProductID, line.BillingPeriod)
			lines[idx].Quantity += line.Quantity
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// fail records err on the state unless the shopper signed in or out since
// the operation started. A rejected credential goes to the oracle instead.
func (e *Engine) fail(ctx context.Context, epoch uint64, err error) error {
	if errors.Is(err, domain.ErrUnauthenticated) {
		if h, ok := e.auth.(authFailureHandler); ok {
			if herr := h.HandleAuthFailure(ctx); herr != nil {
				e.logger.Printf("cart engine: auth recovery error=%v", herr)
			}
		}
		return err
	}
	e.mu.Lock()
	if epoch == e.epoch {
		e.lastErr = errorMessage(err)
	}
	e.mu.Unlock()
	return err
}

func errorMessage(err error) string {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Message()
	}
	return err.Error()
}
