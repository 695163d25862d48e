package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/complylabs/verdict/internal/store"
)

// ServiceConfig configures a Service for one run.
type ServiceConfig struct {
	RunID        string
	ProviderName string // recorded on batch jobs for audit
	BatchSize    int    // count-based chunk size; 0 uses the default
	BatchMode    bool   // use the provider's batch API when available
	MaxRetries   int    // sync invocation attempts beyond the first
	RetryDelay   time.Duration
	RateLimit    int // sync requests per minute
}

// Service is the single entry point for LLM work. It composes the planner,
// cache, provider and batch job records, decides sync versus async per
// request, and raises the pending signal when results aren't ready.
type Service struct {
	provider  Provider
	cache     *Cache
	store     store.Store
	limiter   *rateLimiter
	logger    *slog.Logger
	cfg       ServiceConfig
	batchMode bool
}

// NewService creates a service over a run-scoped store. Batch mode is only
// effective when the provider implements BatchProvider; otherwise every
// request takes the sync path.
func NewService(provider Provider, st store.Store, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	_, batchCapable := provider.(BatchProvider)
	if cfg.BatchMode && !batchCapable {
		logger.Warn("Provider does not support batch mode, using sync path",
			"provider", cfg.ProviderName,
			"model", provider.ModelName())
	}

	return &Service{
		provider:  provider,
		cache:     NewCache(st),
		store:     st,
		limiter:   newRateLimiter(cfg.RateLimit),
		logger:    logger,
		cfg:       cfg,
		batchMode: cfg.BatchMode && batchCapable,
	}, nil
}

// Cache exposes the response cache so the caller can clear it once the
// whole multi-step flow has succeeded. Complete never clears implicitly:
// entries are the resume state for interrupted runs.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Complete processes groups of items and returns one structured response
// per planned batch, in plan order.
//
// Per batch: build the prompt, compute the cache key, then resolve from
// cache (completed), treat failed as a miss, or leave pending untouched.
// Sync misses are invoked inline; async misses are submitted as a single
// provider batch with one pending cache entry per key. If any key is still
// pending at the end, Complete returns a *PendingError carrying the run ID
// and outstanding batch IDs — retry later, after polling.
func (s *Service) Complete(ctx context.Context, groups []ItemGroup, builder PromptBuilder, shape Shape, mode BatchingMode) (*CompletionResult, error) {
	planner := NewPlanner(MaxPayloadTokens(s.provider.ContextWindow()), s.cfg.BatchSize)
	plan := planner.Plan(groups, mode)

	if len(plan.Skipped) > 0 {
		s.logger.Info("Planner excluded items",
			"run_id", s.cfg.RunID,
			"skipped", len(plan.Skipped),
			"batches", len(plan.Batches))
	}

	if s.batchMode {
		return s.completeBatch(ctx, plan, builder, shape)
	}
	return s.completeSync(ctx, plan, builder, shape)
}

// batchPrompt flattens a planned batch into the builder inputs and computes
// the content key. Count-based batches have no content; in extended-context
// batches the last content-bearing group wins, matching how builders render
// a combined prompt.
func (s *Service) batchPrompt(batch PlannedBatch, builder PromptBuilder, shape Shape) (prompt, key string) {
	var items []Item
	var content string
	for _, group := range batch.Groups {
		items = append(items, group.Items...)
		if group.Content != "" {
			content = group.Content
		}
	}
	prompt = builder.BuildPrompt(items, content)
	key = s.cache.Key(prompt, s.provider.ModelName(), shape.Name)
	return prompt, key
}

func (s *Service) completeSync(ctx context.Context, plan BatchPlan, builder PromptBuilder, shape Shape) (*CompletionResult, error) {
	result := &CompletionResult{Skipped: plan.Skipped}
	for _, batch := range plan.Batches {
		prompt, key := s.batchPrompt(batch, builder, shape)

		cached, err := s.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if cached != nil && cached.Status == StatusCompleted {
			result.Responses = append(result.Responses, cached.Response)
			continue
		}

		response, err := s.invoke(ctx, prompt, shape)
		if err != nil {
			// A connection failure affects this batch only: record it,
			// report its items, and keep processing the rest.
			s.logger.Warn("Provider call failed",
				"run_id", s.cfg.RunID,
				"cache_key", key,
				"error", err)
			if cacheErr := s.cache.Set(ctx, key, CacheEntry{
				Status: StatusFailed,
				Model:  s.provider.ModelName(),
				Shape:  shape.Name,
			}); cacheErr != nil {
				return nil, fmt.Errorf("failed to record failed entry: %w", cacheErr)
			}
			for _, group := range batch.Groups {
				for _, item := range group.Items {
					result.Skipped = append(result.Skipped, SkippedItem{Item: item, Reason: SkipBatchError})
				}
			}
			continue
		}

		if err := s.cache.Set(ctx, key, CacheEntry{
			Status:   StatusCompleted,
			Response: response,
			Model:    s.provider.ModelName(),
			Shape:    shape.Name,
		}); err != nil {
			return nil, fmt.Errorf("failed to cache response: %w", err)
		}
		result.Responses = append(result.Responses, response)
	}

	return result, nil
}

func (s *Service) completeBatch(ctx context.Context, plan BatchPlan, builder PromptBuilder, shape Shape) (*CompletionResult, error) {
	result := &CompletionResult{Skipped: plan.Skipped}
	var pendingBatchIDs []string
	var misses []BatchRequest

	for _, batch := range plan.Batches {
		prompt, key := s.batchPrompt(batch, builder, shape)

		cached, err := s.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			switch cached.Status {
			case StatusCompleted:
				result.Responses = append(result.Responses, cached.Response)
				continue
			case StatusPending:
				// Already in flight; never resubmit.
				pendingBatchIDs = appendUnique(pendingBatchIDs, cached.BatchID)
				continue
			case StatusFailed:
				// Treated as a miss: fall through to resubmission.
			}
		}

		misses = append(misses, BatchRequest{
			CustomID: key,
			Prompt:   prompt,
			Shape:    shape,
		})
	}

	if len(misses) > 0 {
		batchID, err := s.submit(ctx, misses, shape)
		if err != nil {
			return nil, err
		}
		pendingBatchIDs = appendUnique(pendingBatchIDs, batchID)
	}

	if len(pendingBatchIDs) > 0 {
		return nil, &PendingError{RunID: s.cfg.RunID, BatchIDs: pendingBatchIDs}
	}
	return result, nil
}

// submit sends all misses as one provider batch, records the job, and
// writes one pending cache entry per covered key.
func (s *Service) submit(ctx context.Context, misses []BatchRequest, shape Shape) (string, error) {
	provider := s.provider.(BatchProvider)

	submission, err := provider.SubmitBatch(ctx, misses)
	if err != nil {
		return "", fmt.Errorf("batch submission failed: %w", err)
	}

	keys := make([]string, 0, len(misses))
	for _, miss := range misses {
		keys = append(keys, miss.CustomID)
		if err := s.cache.Set(ctx, miss.CustomID, CacheEntry{
			Status:  StatusPending,
			BatchID: submission.BatchID,
			Model:   s.provider.ModelName(),
			Shape:   shape.Name,
		}); err != nil {
			return "", fmt.Errorf("failed to record pending entry: %w", err)
		}
	}

	job := &BatchJob{
		BatchID:      submission.BatchID,
		RunID:        s.cfg.RunID,
		Provider:     s.cfg.ProviderName,
		Model:        s.provider.ModelName(),
		Status:       JobSubmitted,
		CacheKeys:    keys,
		RequestCount: submission.RequestCount,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := SaveBatchJob(ctx, s.store, job); err != nil {
		return "", fmt.Errorf("failed to save batch job: %w", err)
	}

	s.logger.Info("Submitted provider batch",
		"run_id", s.cfg.RunID,
		"batch_id", submission.BatchID,
		"requests", submission.RequestCount)
	return submission.BatchID, nil
}

// lookup loads a cache entry, mapping absence to nil.
func (s *Service) lookup(ctx context.Context, key string) (*CacheEntry, error) {
	entry, err := s.cache.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	return entry, nil
}

// invoke performs one rate-limited sync call with bounded exponential
// backoff. Context cancellation aborts both the wait and the retries.
func (s *Service) invoke(ctx context.Context, prompt string, shape Shape) (json.RawMessage, error) {
	if err := s.limiter.wait(ctx); err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryDelay > 0 {
		policy.InitialInterval = s.cfg.RetryDelay
	}
	retries := s.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	var response json.RawMessage
	operation := func() error {
		var err error
		response, err = s.provider.InvokeStructured(ctx, prompt, shape)
		return err
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	if err != nil {
		return nil, err
	}
	return response, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
