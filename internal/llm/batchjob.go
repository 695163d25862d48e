package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/complylabs/verdict/internal/store"
)

// jobPrefix namespaces batch job records within the run-scoped store.
const jobPrefix = "batch_jobs/"

// JobStatus is the lifecycle state of a provider batch submission.
type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobExpired    JobStatus = "expired"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobExpired, JobCancelled:
		return true
	default:
		return false
	}
}

// BatchJob is the persisted record of one provider batch submission.
// Provider and model are recorded for audit: the poller refuses to poll a
// job whose recorded configuration no longer matches the current one.
// Records are whole-record load/mutate/save; there is no partial patching.
type BatchJob struct {
	BatchID      string     `json:"batch_id"`
	RunID        string     `json:"run_id"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Status       JobStatus  `json:"status"`
	CacheKeys    []string   `json:"cache_keys"`
	RequestCount int        `json:"request_count"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// SaveBatchJob upserts the job record under its batch ID.
func SaveBatchJob(ctx context.Context, st store.Store, job *BatchJob) error {
	if job.BatchID == "" {
		return fmt.Errorf("batch job requires a batch ID")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode batch job: %w", err)
	}
	return st.Save(ctx, jobPrefix+job.BatchID, data)
}

// LoadBatchJob loads one job record, returning store.ErrNotFound if absent.
func LoadBatchJob(ctx context.Context, st store.Store, batchID string) (*BatchJob, error) {
	data, err := st.Get(ctx, jobPrefix+batchID)
	if err != nil {
		return nil, err
	}

	var job BatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt batch job %s: %w", batchID, err)
	}
	return &job, nil
}

// ListBatchJobs enumerates and loads every job record for the run.
func ListBatchJobs(ctx context.Context, st store.Store) ([]*BatchJob, error) {
	keys, err := st.ListKeys(ctx, jobPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch jobs: %w", err)
	}

	jobs := make([]*BatchJob, 0, len(keys))
	for _, key := range keys {
		job, err := LoadBatchJob(ctx, st, strings.TrimPrefix(key, jobPrefix))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
