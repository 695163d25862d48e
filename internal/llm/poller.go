package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/complylabs/verdict/internal/store"
)

// pollConcurrency bounds simultaneous provider status queries.
const pollConcurrency = 4

// PollResult summarises one Poll invocation. Errors holds non-fatal
// conditions (e.g. provider/model mismatch) that skipped a job without
// aborting the poll.
type PollResult struct {
	Completed    int
	Failed       int
	StillPending int
	Errors       []string
}

// Done reports whether no batches remain in flight.
func (r *PollResult) Done() bool {
	return r.StillPending == 0
}

// Poller reconciles provider batch completion into the cache and batch job
// records. It never blocks waiting on the provider: each Poll is one pass,
// and cadence is the caller's concern.
type Poller struct {
	store        store.Store
	cache        *Cache
	provider     BatchProvider
	providerName string
	runID        string
	logger       *slog.Logger
}

// NewPoller creates a poller for one run.
func NewPoller(provider BatchProvider, st store.Store, providerName, runID string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:        st,
		cache:        NewCache(st),
		provider:     provider,
		providerName: providerName,
		runID:        runID,
		logger:       logger,
	}
}

// Poll loads every non-terminal batch job for the run and reconciles each
// against the provider. Jobs whose recorded provider/model no longer match
// the poller's configuration are reported, not polled. Terminal batches
// have their per-request results written into the cache before the job is
// updated, so a crash between the two re-fetches rather than loses results.
func (p *Poller) Poll(ctx context.Context) (*PollResult, error) {
	jobs, err := ListBatchJobs(ctx, p.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch jobs: %w", err)
	}

	var active []*BatchJob
	for _, job := range jobs {
		if !job.Status.Terminal() {
			active = append(active, job)
		}
	}

	result := &PollResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)

	for _, job := range active {
		g.Go(func() error {
			outcome, pollErr := p.pollJob(gctx, job)

			mu.Lock()
			defer mu.Unlock()
			if pollErr != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("batch %s: %v", job.BatchID, pollErr))
				return nil
			}
			switch outcome {
			case JobCompleted:
				result.Completed++
			case JobFailed, JobExpired, JobCancelled:
				result.Failed++
			default:
				result.StillPending++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("Poll pass finished",
		"run_id", p.runID,
		"completed", result.Completed,
		"failed", result.Failed,
		"still_pending", result.StillPending,
		"errors", len(result.Errors))
	return result, nil
}

// pollJob reconciles one job and returns its resulting status.
func (p *Poller) pollJob(ctx context.Context, job *BatchJob) (JobStatus, error) {
	if job.Provider != p.providerName || job.Model != p.provider.ModelName() {
		return "", fmt.Errorf("provider/model mismatch: job has %s/%s, poller has %s/%s",
			job.Provider, job.Model, p.providerName, p.provider.ModelName())
	}

	status, err := p.provider.PollBatch(ctx, job.BatchID)
	if err != nil {
		return "", fmt.Errorf("status query failed: %w", err)
	}

	if !status.Status.Terminal() {
		// Still processing: refresh the recorded status only if it moved.
		if job.Status != status.Status {
			job.Status = status.Status
			if err := SaveBatchJob(ctx, p.store, job); err != nil {
				return "", fmt.Errorf("failed to update job: %w", err)
			}
		}
		return status.Status, nil
	}

	if status.Status == JobCompleted {
		if err := p.collectResults(ctx, job); err != nil {
			return "", err
		}
	} else {
		// Failed, expired or cancelled wholesale: every covered entry
		// becomes failed so a later Complete retries them.
		if err := p.failEntries(ctx, job); err != nil {
			return "", err
		}
	}

	now := time.Now().UTC()
	job.Status = status.Status
	job.CompletedAt = &now
	if err := SaveBatchJob(ctx, p.store, job); err != nil {
		return "", fmt.Errorf("failed to finalise job: %w", err)
	}
	return status.Status, nil
}

// collectResults fetches per-request outcomes and writes them into the
// cache, keyed by the custom ID each request was submitted with.
func (p *Poller) collectResults(ctx context.Context, job *BatchJob) error {
	results, err := p.provider.FetchBatchResults(ctx, job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to fetch results: %w", err)
	}

	byKey := make(map[string]BatchResult, len(results))
	for _, result := range results {
		byKey[result.CustomID] = result
	}

	for _, key := range job.CacheKeys {
		result, ok := byKey[key]
		if !ok {
			p.logger.Warn("Batch result missing for cache key",
				"run_id", p.runID,
				"batch_id", job.BatchID,
				"cache_key", key)
			continue
		}

		entry := CacheEntry{
			Status:  result.Status,
			BatchID: job.BatchID,
			Model:   job.Model,
			Shape:   p.entryShape(ctx, key),
		}
		if result.Status == StatusCompleted {
			entry.Response = result.Response
		}
		if err := p.cache.Set(ctx, key, entry); err != nil {
			return fmt.Errorf("failed to write cache entry %s: %w", key, err)
		}
	}
	return nil
}

// failEntries marks every covered cache entry failed.
func (p *Poller) failEntries(ctx context.Context, job *BatchJob) error {
	for _, key := range job.CacheKeys {
		if err := p.cache.Set(ctx, key, CacheEntry{
			Status:  StatusFailed,
			BatchID: job.BatchID,
			Model:   job.Model,
			Shape:   p.entryShape(ctx, key),
		}); err != nil {
			return fmt.Errorf("failed to write cache entry %s: %w", key, err)
		}
	}
	return nil
}

// entryShape preserves the shape recorded at submission time when the
// pending entry is still readable.
func (p *Poller) entryShape(ctx context.Context, key string) string {
	entry, err := p.cache.Get(ctx, key)
	if err != nil {
		return ""
	}
	return entry.Shape
}
