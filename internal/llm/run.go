package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/complylabs/verdict/internal/store"
)

// runMetaKey lives under the reserved prefix so run state survives Clear
// and stays out of key listings.
const runMetaKey = store.ReservedPrefix + "run"

// RunStatus is the executor-visible state of a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunInterrupted RunStatus = "interrupted"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
)

// RunMeta is the per-run record the pipeline executor and poller share.
// Provider and model pin the configuration a run was started with; the
// poller validates against them before touching any batch job.
type RunMeta struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveRunMeta upserts the run record.
func SaveRunMeta(ctx context.Context, st store.Store, meta *RunMeta) error {
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode run metadata: %w", err)
	}
	return st.Save(ctx, runMetaKey, data)
}

// LoadRunMeta loads the run record, returning store.ErrNotFound if the run
// was never initialised.
func LoadRunMeta(ctx context.Context, st store.Store) (*RunMeta, error) {
	data, err := st.Get(ctx, runMetaKey)
	if err != nil {
		return nil, err
	}

	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt run metadata: %w", err)
	}
	return &meta, nil
}

// MarkRun updates just the status of an existing run record.
func MarkRun(ctx context.Context, st store.Store, status RunStatus) error {
	meta, err := LoadRunMeta(ctx, st)
	if err != nil {
		return err
	}
	meta.Status = status
	return SaveRunMeta(ctx, st, meta)
}
