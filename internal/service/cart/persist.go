package cart

import (
	"context"
	"encoding/json"
	"errors"

	"storefront/internal/domain"
)

type document struct {
	Lines []domain.CartLine `json:"lines"`
}

// persist mirrors a guest change to the profile. Writes are serialized and
// a change older than the last written one, or from a previous epoch, is
// skipped.
func (e *Engine) persist(ctx context.Context, change pendingChange) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if !e.current(change) {
		return
	}

	lines := change.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	raw, err := json.Marshal(document{Lines: lines})
	if err != nil {
		e.logger.Printf("cart engine: encode cart error=%v", err)
		return
	}
	if err := e.store.Set(ctx, StorageKey, string(raw)); err != nil {
		e.logger.Printf("cart engine: %v", &domain.PersistenceError{Key: StorageKey, Err: err})
		return
	}
	e.persisted = change.revision
}

// forget removes the guest document.
func (e *Engine) forget(ctx context.Context, change pendingChange) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if !e.current(change) {
		return
	}
	if err := e.store.Delete(ctx, StorageKey); err != nil {
		e.logger.Printf("cart engine: %v", &domain.PersistenceError{Key: StorageKey, Err: err})
		return
	}
	e.persisted = change.revision
}

func (e *Engine) current(change pendingChange) bool {
	if change.revision <= e.persisted {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return change.epoch == e.epoch
}

// restore loads the guest document. Anything unreadable leaves an empty
// cart; invalid lines are dropped and duplicates folded together.
func (e *Engine) restore(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	epoch := e.epoch
	e.mu.Unlock()

	raw, err := e.store.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Printf("cart engine: %v", &domain.PersistenceError{Key: StorageKey, Err: err})
		}
		return
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		e.logger.Printf("cart engine: %v", &domain.PersistenceError{Key: StorageKey, Err: err})
		return
	}
	lines, dropped := normalizeLines(doc.Lines)
	if dropped > 0 {
		e.logger.Printf("cart engine: restore dropped %d invalid lines", dropped)
	}
	for i := range lines {
		lines[i].ServerLineID = ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch || e.authenticated {
		return
	}
	e.lines = lines
	e.revision++
}
