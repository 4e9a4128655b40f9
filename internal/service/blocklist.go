package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// TokenBlocklist is the process-scoped revocation cache. Revocations are
// written through to the persistent store; other processes converge after
// their next Refresh. The staleness bound is therefore the refresh
// interval: a token revoked elsewhere may validate here for at most one
// interval. That window is an accepted risk, not a correctness violation
// the engine promises to close.
type TokenBlocklist struct {
	repo core.BlocklistRepository

	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewTokenBlocklist creates an empty blocklist cache. Call Refresh to
// hydrate it from the store before serving validations.
func NewTokenBlocklist(repo core.BlocklistRepository) *TokenBlocklist {
	return &TokenBlocklist{
		repo: repo,
		ids:  make(map[string]struct{}),
	}
}

// Refresh replaces the cached set with the store's current contents.
func (b *TokenBlocklist) Refresh(ctx context.Context) error {
	entries, err := b.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh blocklist: %w", err)
	}

	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.TokenID] = struct{}{}
	}

	b.mu.Lock()
	b.ids = ids
	b.mu.Unlock()
	return nil
}

// Revoke adds the token id to the cache immediately, so validations in this
// process see it without waiting for a reload, then persists the entry.
func (b *TokenBlocklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	b.mu.Lock()
	b.ids[tokenID] = struct{}{}
	b.mu.Unlock()

	if err := b.repo.Insert(ctx, model.BlocklistEntry{TokenID: tokenID, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// Contains reports whether the token id is revoked as far as this process
// knows.
func (b *TokenBlocklist) Contains(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[tokenID]
	return ok
}

// Len returns the cached set size.
func (b *TokenBlocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

// RunRefresher reloads the cache on the given interval until the context is
// cancelled. Refresh failures are logged and retried next tick; a stale
// cache is still a working cache.
func (b *TokenBlocklist) RunRefresher(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Refresh(ctx); err != nil && logger != nil {
				logger.WarnContext(ctx, "blocklist refresh failed", "error", err)
			}
		}
	}
}
