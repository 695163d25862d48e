// Package store provides run-scoped persistent key/value storage.
//
// A Store is bound to a single run at construction time; hierarchical
// slash-separated keys organise artifact types within the run (e.g.
// "llm_cache/abc123", "batch_jobs/msgbatch_01"). Multiple backends
// (memory, filesystem, sqlite, remote HTTP) share identical semantics.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("key not found")

// ReservedPrefix marks system keys (run metadata) that are hidden from
// ListKeys and preserved by Clear.
const ReservedPrefix = "system/"

// Store is the persistence contract for one run. Save is an upsert and must
// be atomic and immediately visible to a subsequent Get for the same key.
// Implementations must be safe for concurrent use within one process.
type Store interface {
	Save(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context) error
}

// Opener creates run-scoped stores and enumerates known runs. Backends that
// hold shared resources (database handle, HTTP client) implement Opener once
// and hand out lightweight per-run views.
type Opener interface {
	Open(runID string) (Store, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// isReserved reports whether key lives under the system prefix.
func isReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// validateKey rejects keys that would be ambiguous or escape the run scope.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("key %q must not start or end with a slash", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" {
			return fmt.Errorf("key %q contains an empty path segment", key)
		}
		if part == "." || part == ".." {
			return fmt.Errorf("key %q contains a relative path segment", key)
		}
	}
	return nil
}

// validateRunID rejects run identifiers that could collide across runs or
// escape the storage root.
func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID must not be empty")
	}
	if strings.ContainsAny(runID, "/\\") {
		return fmt.Errorf("run ID %q must not contain path separators", runID)
	}
	if runID == "." || runID == ".." {
		return fmt.Errorf("run ID %q is not a valid identifier", runID)
	}
	return nil
}
