package llm

import (
	"errors"
	"fmt"
	"strings"
)

// PendingError signals that one or more provider batches are still
// processing. It is control flow, not a failure: the caller should leave
// the requesting artifact not-started, mark the run interrupted, and retry
// Complete once polling reports progress. Match it specifically with
// errors.As or IsPending — never swallow it in a generic error path.
type PendingError struct {
	RunID    string
	BatchIDs []string
}

// Error implements the error interface.
func (e *PendingError) Error() string {
	return fmt.Sprintf("run %s: %d batch(es) still processing: %s",
		e.RunID, len(e.BatchIDs), strings.Join(e.BatchIDs, ", "))
}

// IsPending reports whether err is (or wraps) a PendingError.
func IsPending(err error) bool {
	var pending *PendingError
	return errors.As(err, &pending)
}

// AsPending extracts the PendingError from err, if any.
func AsPending(err error) (*PendingError, bool) {
	var pending *PendingError
	if errors.As(err, &pending) {
		return pending, true
	}
	return nil, false
}
