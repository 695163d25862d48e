package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/complylabs/verdict/internal/store"
)

// cachePrefix namespaces cache entries within the run-scoped store.
const cachePrefix = "llm_cache/"

// EntryStatus is the lifecycle state of a cache entry.
type EntryStatus string

const (
	// StatusPending means the request was submitted to a provider batch
	// and no result is available yet.
	StatusPending EntryStatus = "pending"

	// StatusCompleted means a response payload is cached.
	StatusCompleted EntryStatus = "completed"

	// StatusFailed means the provider call failed; treated as a miss on
	// the next lookup so the request is retried.
	StatusFailed EntryStatus = "failed"
)

// CacheEntry records one cacheable request. Response is set iff completed;
// BatchID is set iff the request went through the async path.
type CacheEntry struct {
	Status   EntryStatus     `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	BatchID  string          `json:"batch_id,omitempty"`
	Model    string          `json:"model"`
	Shape    string          `json:"shape"`
}

// Cache deduplicates identical LLM requests through the persistent store.
// Entries are run-scoped working state for resumability, not a permanent
// record: the caller clears them once the whole flow succeeds.
type Cache struct {
	store store.Store
}

// NewCache creates a cache over a run-scoped store.
func NewCache(st store.Store) *Cache {
	return &Cache{store: st}
}

// Key computes the deterministic content key for a request. Identical
// (prompt, model, shape) always produce the same key; any differing input
// produces a different key.
func (c *Cache) Key(prompt, model, shape string) string {
	sum := sha256.Sum256([]byte(prompt + "\x1f" + model + "\x1f" + shape))
	return hex.EncodeToString(sum[:])
}

// Get loads an entry, returning store.ErrNotFound when absent.
func (c *Cache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := c.store.Get(ctx, cachePrefix+key)
	if err != nil {
		return nil, err
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// Set upserts an entry. A pending entry must carry the batch ID that will
// eventually resolve it.
func (c *Cache) Set(ctx context.Context, key string, entry CacheEntry) error {
	if entry.Status == StatusPending && entry.BatchID == "" {
		return fmt.Errorf("pending cache entry %s requires a batch ID", key)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.store.Save(ctx, cachePrefix+key, data)
}

// Delete removes a single entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, cachePrefix+key)
}

// Clear removes every cache entry for the run. Called once, by the caller,
// after the full analysis flow has succeeded.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.store.ListKeys(ctx, cachePrefix)
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
		}
	}
	return nil
}
