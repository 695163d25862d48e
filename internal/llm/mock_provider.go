package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is a test implementation of BatchProvider. It returns
// scripted responses, counts invocations, and holds submitted batches
// in-flight until the test releases them.
type MockProvider struct {
	model         string
	contextWindow int

	responses map[string]json.RawMessage // prompt -> response
	fallback  json.RawMessage
	invokeErr error

	invocations int
	submissions int
	batches     map[string]*mockBatch

	mu sync.Mutex
}

type mockBatch struct {
	requests []BatchRequest
	released bool
	failed   bool
}

// NewMockProvider creates a mock with a 200k-token context window.
func NewMockProvider(model string) *MockProvider {
	if model == "" {
		model = "mock-model"
	}
	return &MockProvider{
		model:         model,
		contextWindow: 200_000,
		responses:     make(map[string]json.RawMessage),
		fallback:      json.RawMessage(`{"verdict":"unknown"}`),
		batches:       make(map[string]*mockBatch),
	}
}

// Respond scripts a response for an exact prompt.
func (m *MockProvider) Respond(prompt string, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = json.RawMessage(response)
}

// FailWith makes every sync invocation return err.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeErr = err
}

// SetContextWindow overrides the advertised context window.
func (m *MockProvider) SetContextWindow(tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextWindow = tokens
}

// Invocations returns the number of sync calls made.
func (m *MockProvider) Invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invocations
}

// Submissions returns the number of batches submitted.
func (m *MockProvider) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions
}

// Release marks a batch as ended so PollBatch reports completion.
func (m *MockProvider) Release(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batch, ok := m.batches[batchID]; ok {
		batch.released = true
	}
}

// FailBatch marks a batch as ended with every request errored.
func (m *MockProvider) FailBatch(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batch, ok := m.batches[batchID]; ok {
		batch.released = true
		batch.failed = true
	}
}

func (m *MockProvider) ModelName() string {
	return m.model
}

func (m *MockProvider) ContextWindow() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextWindow
}

// InvokeStructured returns the scripted response for the prompt, or the
// fallback payload.
func (m *MockProvider) InvokeStructured(_ context.Context, prompt string, _ Shape) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invocations++
	if m.invokeErr != nil {
		return nil, m.invokeErr
	}
	if response, ok := m.responses[prompt]; ok {
		return response, nil
	}
	return m.fallback, nil
}

// SubmitBatch accepts the requests and parks them until Release.
func (m *MockProvider) SubmitBatch(_ context.Context, requests []BatchRequest) (*BatchSubmission, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("batch submission requires at least one request")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions++
	batchID := "mockbatch_" + uuid.NewString()
	m.batches[batchID] = &mockBatch{requests: requests}

	return &BatchSubmission{
		BatchID:      batchID,
		RequestCount: len(requests),
	}, nil
}

// PollBatch reports in_progress until the batch is released.
func (m *MockProvider) PollBatch(_ context.Context, batchID string) (*BatchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("unknown batch: %s", batchID)
	}

	status := &BatchStatus{TotalCount: len(batch.requests)}
	if !batch.released {
		status.Status = JobInProgress
		return status, nil
	}

	status.Status = JobCompleted
	if batch.failed {
		status.FailedCount = len(batch.requests)
	} else {
		status.CompletedCount = len(batch.requests)
	}
	return status, nil
}

// FetchBatchResults resolves each parked request against the scripted
// responses.
func (m *MockProvider) FetchBatchResults(_ context.Context, batchID string) ([]BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("unknown batch: %s", batchID)
	}
	if !batch.released {
		return nil, fmt.Errorf("batch %s still processing", batchID)
	}

	results := make([]BatchResult, 0, len(batch.requests))
	for _, req := range batch.requests {
		result := BatchResult{CustomID: req.CustomID}
		if batch.failed {
			result.Status = StatusFailed
			result.Err = "scripted batch failure"
		} else {
			result.Status = StatusCompleted
			if response, ok := m.responses[req.Prompt]; ok {
				result.Response = response
			} else {
				result.Response = m.fallback
			}
		}
		results = append(results, result)
	}
	return results, nil
}
