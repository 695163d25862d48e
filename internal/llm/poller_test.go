package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// submitTestBatch runs one batch-mode Complete and returns the resulting
// batch ID, leaving the mock batch in flight.
func submitTestBatch(t *testing.T, mock *MockProvider, svc *Service, groups []ItemGroup) string {
	t.Helper()
	_, err := svc.Complete(context.Background(), groups, idsPrompt, Shape{Name: "findings"}, ModeCountBased)
	pending, ok := AsPending(err)
	require.True(t, ok)
	require.Len(t, pending.BatchIDs, 1)
	return pending.BatchIDs[0]
}

func TestPollerStillProcessing(t *testing.T) {
	ctx := context.Background()
	mock := NewMockProvider("")
	st := newRunStore(t)
	svc := newTestService(t, mock, st, true)

	batchID := submitTestBatch(t, mock, svc, []ItemGroup{{Items: []Item{{ID: "a"}}}})

	poller := NewPoller(mock, st, "mock", "run-1", nil)
	result, err := poller.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.StillPending)
	assert.False(t, result.Done())
	assert.Empty(t, result.Errors)

	// The recorded status tracks the provider's view.
	job, err := LoadBatchJob(ctx, st, batchID)
	require.NoError(t, err)
	assert.Equal(t, JobInProgress, job.Status)
	assert.Nil(t, job.CompletedAt)
}

func TestPollerCompletedBatch(t *testing.T) {
	ctx := context.Background()
	mock := NewMockProvider("")
	st := newRunStore(t)
	svc := newTestService(t, mock, st, true)

	mock.Respond("validate a against ", `{"verdict":"compliant"}`)
	batchID := submitTestBatch(t, mock, svc, []ItemGroup{{Items: []Item{{ID: "a"}}}})
	mock.Release(batchID)

	poller := NewPoller(mock, st, "mock", "run-1", nil)
	result, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.True(t, result.Done())

	job, err := LoadBatchJob(ctx, st, batchID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)

	// The result landed in the cache under the submitted key, with the
	// shape recorded at submission time preserved.
	cache := NewCache(st)
	entry, err := cache.Get(ctx, job.CacheKeys[0])
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, entry.Status)
	assert.JSONEq(t, `{"verdict":"compliant"}`, string(entry.Response))
	assert.Equal(t, "findings", entry.Shape)
	assert.Equal(t, batchID, entry.BatchID)

	// Terminal jobs are not polled again.
	result, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Completed)
	assert.True(t, result.Done())
}

func TestPollerErroredRequests(t *testing.T) {
	ctx := context.Background()
	mock := NewMockProvider("")
	st := newRunStore(t)
	svc := newTestService(t, mock, st, true)

	batchID := submitTestBatch(t, mock, svc, []ItemGroup{{Items: []Item{{ID: "a"}}}})
	mock.FailBatch(batchID)

	poller := NewPoller(mock, st, "mock", "run-1", nil)
	_, err := poller.Poll(ctx)
	require.NoError(t, err)

	job, err := LoadBatchJob(ctx, st, batchID)
	require.NoError(t, err)
	entry, err := NewCache(st).Get(ctx, job.CacheKeys[0])
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Empty(t, entry.Response)
}

// stuckBatchProvider reports every batch as expired wholesale.
type stuckBatchProvider struct {
	*MockProvider
}

func (p *stuckBatchProvider) PollBatch(_ context.Context, _ string) (*BatchStatus, error) {
	return &BatchStatus{Status: JobExpired}, nil
}

func TestPollerWholesaleFailureMarksEntries(t *testing.T) {
	ctx := context.Background()
	mock := NewMockProvider("")
	st := newRunStore(t)
	svc := newTestService(t, mock, st, true)

	batchID := submitTestBatch(t, mock, svc, []ItemGroup{{Items: []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}}})

	poller := NewPoller(&stuckBatchProvider{MockProvider: mock}, st, "mock", "run-1", nil)
	result, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Done())

	job, err := LoadBatchJob(ctx, st, batchID)
	require.NoError(t, err)
	assert.Equal(t, JobExpired, job.Status)
	require.NotNil(t, job.CompletedAt)

	cache := NewCache(st)
	for _, key := range job.CacheKeys {
		entry, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, entry.Status)
	}
}

func TestPollerRefusesMismatchedJobs(t *testing.T) {
	ctx := context.Background()
	mock := NewMockProvider("")
	st := newRunStore(t)
	svc := newTestService(t, mock, st, true)

	batchID := submitTestBatch(t, mock, svc, []ItemGroup{{Items: []Item{{ID: "a"}}}})
	mock.Release(batchID)

	t.Run("provider mismatch", func(t *testing.T) {
		poller := NewPoller(mock, st, "anthropic", "run-1", nil)
		result, err := poller.Poll(ctx)
		require.NoError(t, err)

		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "mismatch")
		assert.Zero(t, result.Completed)
	})

	t.Run("model mismatch", func(t *testing.T) {
		poller := NewPoller(NewMockProvider("other-model"), st, "mock", "run-1", nil)
		result, err := poller.Poll(ctx)
		require.NoError(t, err)

		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "mismatch")
	})

	// The mismatch left the job untouched; a matching poller still works.
	poller := NewPoller(mock, st, "mock", "run-1", nil)
	result, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
}

func TestPollerNoJobs(t *testing.T) {
	mock := NewMockProvider("")
	poller := NewPoller(mock, newRunStore(t), "mock", "run-1", nil)

	result, err := poller.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Done())
	assert.Zero(t, result.Completed+result.Failed+result.StillPending)
	assert.Empty(t, result.Errors)
}
