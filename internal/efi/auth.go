package efi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// expirySkew is subtracted from the advertised token lifetime so a token
// is never used right at its expiry edge.
const expirySkew = 60 * time.Second

// Token is one OAuth access token together with its advertised lifetime.
type Token struct {
	AccessToken string
	ExpiresIn   int
}

// TokenFunc performs the client-credentials exchange for one tenant.
type TokenFunc func(ctx context.Context) (Token, error)

// TokenCache keeps one access token per tenant and collapses concurrent
// refreshes for the same tenant into a single gateway call. It is an
// explicit dependency of the gateway client, never package state.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]tokenEntry
	group   singleflight.Group
	now     func() time.Time
}

type tokenEntry struct {
	accessToken string
	expiresAt   time.Time
}

// NewTokenCache builds an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		entries: make(map[uuid.UUID]tokenEntry),
		now:     time.Now,
	}
}

// Token returns a cached access token for the tenant, refreshing through
// fetch when the cached one is missing or inside the expiry skew.
func (c *TokenCache) Token(ctx context.Context, tenantID uuid.UUID, fetch TokenFunc) (string, error) {
	if token, ok := c.cached(tenantID); ok {
		return token, nil
	}

	value, err, _ := c.group.Do(tenantID.String(), func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// refreshed while this one waited.
		if token, ok := c.cached(tenantID); ok {
			return token, nil
		}

		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		entry := tokenEntry{
			accessToken: fresh.AccessToken,
			expiresAt:   c.now().Add(time.Duration(fresh.ExpiresIn)*time.Second - expirySkew),
		}
		c.mu.Lock()
		c.entries[tenantID] = entry
		c.mu.Unlock()

		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops the tenant's cached token, forcing a refresh on the
// next call. Used after the gateway rejects a token mid-lifetime.
func (c *TokenCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

func (c *TokenCache) cached(tenantID uuid.UUID) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.accessToken, true
}
