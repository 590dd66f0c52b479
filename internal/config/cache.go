package config

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// SettingsStore is the interface the cache needs from the store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Cache is a read-mostly, TTL-bounded view over the settings table. It is an
// explicitly constructed, injectable object owned by whoever builds the
// service, so tests can run several isolated instances side by side. It
// caches operational tuning only, never authorization decisions.
type Cache struct {
	store SettingsStore
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	found     bool
	fetchedAt time.Time
}

// NewCache creates a settings cache with the given TTL. A zero or negative
// TTL disables caching and every read hits the store.
func NewCache(store SettingsStore, ttl time.Duration) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// GetString returns the setting value, or fallback when the key is unset or
// the store errors. Errors are swallowed: settings tune behavior, they never
// gate it.
func (c *Cache) GetString(ctx context.Context, key, fallback string) string {
	value, found := c.lookup(ctx, key)
	if !found {
		return fallback
	}
	return value
}

// GetInt returns the setting parsed as an integer, or fallback when unset
// or unparseable.
func (c *Cache) GetInt(ctx context.Context, key string, fallback int) int {
	value, found := c.lookup(ctx, key)
	if !found {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// Set writes through to the store and updates the cached entry.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, found: true, fetchedAt: time.Now()}
	c.mu.Unlock()
	return nil
}

// Invalidate drops all cached entries.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) lookup(ctx context.Context, key string) (string, bool) {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.ttl > 0 && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.value, entry.found
	}

	value, err := c.store.GetSetting(ctx, key)
	found := err == nil
	// Negative results are cached too, so a missing key does not force a
	// store read on every request.
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, found: found, fetchedAt: now}
	c.mu.Unlock()

	return value, found
}
