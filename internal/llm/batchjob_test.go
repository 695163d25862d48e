package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complylabs/verdict/internal/store"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobSubmitted, false},
		{JobInProgress, false},
		{JobCompleted, true},
		{JobFailed, true},
		{JobExpired, true},
		{JobCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestBatchJobPersistence(t *testing.T) {
	ctx := context.Background()
	st := newRunStore(t)

	job := &BatchJob{
		BatchID:      "batch-1",
		RunID:        "run-1",
		Provider:     "anthropic",
		Model:        "model-a",
		Status:       JobSubmitted,
		CacheKeys:    []string{"key-1", "key-2"},
		RequestCount: 2,
		SubmittedAt:  time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}

	t.Run("round-trip", func(t *testing.T) {
		require.NoError(t, SaveBatchJob(ctx, st, job))

		got, err := LoadBatchJob(ctx, st, "batch-1")
		require.NoError(t, err)
		assert.Equal(t, job, got)
	})

	t.Run("whole-record update", func(t *testing.T) {
		updated := *job
		updated.Status = JobCompleted
		now := time.Date(2026, 8, 20, 13, 0, 0, 0, time.UTC)
		updated.CompletedAt = &now
		require.NoError(t, SaveBatchJob(ctx, st, &updated))

		got, err := LoadBatchJob(ctx, st, "batch-1")
		require.NoError(t, err)
		assert.Equal(t, JobCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, now, *got.CompletedAt)
	})

	t.Run("missing batch ID rejected", func(t *testing.T) {
		assert.Error(t, SaveBatchJob(ctx, st, &BatchJob{RunID: "run-1"}))
	})

	t.Run("absent job returns ErrNotFound", func(t *testing.T) {
		_, err := LoadBatchJob(ctx, st, "no-such-batch")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list returns every record", func(t *testing.T) {
		second := *job
		second.BatchID = "batch-2"
		require.NoError(t, SaveBatchJob(ctx, st, &second))

		jobs, err := ListBatchJobs(ctx, st)
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		ids := []string{jobs[0].BatchID, jobs[1].BatchID}
		assert.ElementsMatch(t, []string{"batch-1", "batch-2"}, ids)
	})
}
