package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openerFactories builds one fresh opener per backend for the conformance
// suite. The remote backend runs against a live server over the memory
// backend, so the client, server and routing are all exercised.
func openerFactories(t *testing.T) map[string]func(t *testing.T) Opener {
	t.Helper()
	return map[string]func(t *testing.T) Opener{
		"memory": func(_ *testing.T) Opener {
			return NewMemoryOpener()
		},
		"filesystem": func(t *testing.T) Opener {
			opener, err := NewFilesystemOpener(filepath.Join(t.TempDir(), "runs"))
			require.NoError(t, err)
			return opener
		},
		"sqlite": func(t *testing.T) Opener {
			opener, err := NewSQLiteOpener(filepath.Join(t.TempDir(), "store.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = opener.Close() })
			return opener
		},
		"remote": func(t *testing.T) Opener {
			srv := httptest.NewServer(NewServer(NewMemoryOpener(), slog.Default()))
			t.Cleanup(srv.Close)
			opener, err := NewRemoteOpener(srv.URL)
			require.NoError(t, err)
			return opener
		},
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()

	for name, factory := range openerFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("save and get round-trip", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				require.NoError(t, st.Save(ctx, "artifacts/findings", []byte(`{"n":1}`)))
				value, err := st.Get(ctx, "artifacts/findings")
				require.NoError(t, err)
				assert.Equal(t, []byte(`{"n":1}`), value)
			})

			t.Run("save upserts", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				require.NoError(t, st.Save(ctx, "k", []byte("old")))
				require.NoError(t, st.Save(ctx, "k", []byte("new")))

				value, err := st.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("new"), value)
			})

			t.Run("get absent key fails with ErrNotFound", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				_, err := st.Get(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("exists", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				ok, err := st.Exists(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, st.Save(ctx, "k", []byte("v")))
				ok, err = st.Exists(ctx, "k")
				require.NoError(t, err)
				assert.True(t, ok)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				require.NoError(t, st.Save(ctx, "k", []byte("v")))
				require.NoError(t, st.Delete(ctx, "k"))
				require.NoError(t, st.Delete(ctx, "k"))

				_, err := st.Get(ctx, "k")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("list keys by prefix", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				require.NoError(t, st.Save(ctx, "llm_cache/a", []byte("1")))
				require.NoError(t, st.Save(ctx, "llm_cache/b", []byte("2")))
				require.NoError(t, st.Save(ctx, "batch_jobs/x", []byte("3")))

				keys, err := st.ListKeys(ctx, "llm_cache/")
				require.NoError(t, err)
				assert.Equal(t, []string{"llm_cache/a", "llm_cache/b"}, keys)

				all, err := st.ListKeys(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, 3)
			})

			t.Run("reserved keys hidden from listings and kept by clear", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				require.NoError(t, st.Save(ctx, ReservedPrefix+"run", []byte("meta")))
				require.NoError(t, st.Save(ctx, "llm_cache/a", []byte("1")))

				keys, err := st.ListKeys(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, []string{"llm_cache/a"}, keys)

				require.NoError(t, st.Clear(ctx))

				_, err = st.Get(ctx, "llm_cache/a")
				assert.ErrorIs(t, err, ErrNotFound)

				meta, err := st.Get(ctx, ReservedPrefix+"run")
				require.NoError(t, err)
				assert.Equal(t, []byte("meta"), meta)
			})

			t.Run("runs are isolated", func(t *testing.T) {
				opener := factory(t)
				first := openRun(t, opener, "run-1")
				second := openRun(t, opener, "run-2")

				require.NoError(t, first.Save(ctx, "k", []byte("one")))
				require.NoError(t, second.Save(ctx, "k", []byte("two")))

				value, err := first.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("one"), value)

				require.NoError(t, first.Clear(ctx))
				value, err = second.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("two"), value)
			})

			t.Run("list runs", func(t *testing.T) {
				opener := factory(t)
				require.NoError(t, openRun(t, opener, "run-b").Save(ctx, "k", []byte("v")))
				require.NoError(t, openRun(t, opener, "run-a").Save(ctx, "k", []byte("v")))

				runs, err := opener.ListRuns(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"run-a", "run-b"}, runs)
			})

			t.Run("invalid keys rejected", func(t *testing.T) {
				st := openRun(t, factory(t), "run-1")

				for _, key := range []string{"", "/leading", "trailing/", "a//b", "../escape"} {
					assert.Error(t, st.Save(ctx, key, []byte("v")), "key %q", key)
				}
			})
		})
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	st := openRun(t, NewMemoryOpener(), "run-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("worker/%d/%d", n, j)
				assert.NoError(t, st.Save(ctx, key, []byte("v")))
				_, err := st.Get(ctx, key)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	keys, err := st.ListKeys(ctx, "worker/")
	require.NoError(t, err)
	assert.Len(t, keys, 8*50)
}

func TestOpenerRejectsBadRunIDs(t *testing.T) {
	opener := NewMemoryOpener()
	for _, runID := range []string{"", "a/b", "..", `a\b`} {
		_, err := opener.Open(runID)
		assert.Error(t, err, "run ID %q", runID)
	}
}

func openRun(t *testing.T, opener Opener, runID string) Store {
	t.Helper()
	st, err := opener.Open(runID)
	require.NoError(t, err)
	return st
}
