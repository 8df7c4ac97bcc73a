package storage

import (
	"fmt"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// Repository is the durable store of collected bid notices. Implementations
// must be safe for concurrent Save calls; duplicates are skipped silently
// unless the implementation is put in strict mode.
type Repository interface {
	// Save persists one notice. It returns false with a nil error when the
	// id already exists. Writes may be buffered until Flush.
	Save(detail *bidnotice.BidNoticeDetail) (bool, error)

	// SaveBatch persists many notices, skipping duplicates, and returns the
	// count actually written.
	SaveBatch(details []*bidnotice.BidNoticeDetail) (int, error)

	// Exists reports whether an id is present in buffered or durable state.
	Exists(id string) bool

	// FindByID returns the stored notice or nil when absent.
	FindByID(id string) (*bidnotice.BidNoticeDetail, error)

	// FindAll returns stored notices, up to limit when limit > 0.
	FindAll(limit int) ([]*bidnotice.BidNoticeDetail, error)

	// Count returns the number of distinct stored ids.
	Count() int

	// Flush forces buffered writes to durable storage. Idempotent.
	Flush() error

	// Close flushes and releases resources.
	Close() error
}

// RepositoryError wraps a durable-store failure
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// DuplicateError is returned by strict-mode repositories on a duplicate id
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate bid notice: %s", e.ID)
}

// OperationMetric describes one storage operation for telemetry sinks
type OperationMetric struct {
	Operation  string
	Backend    string
	DurationNS int64
	Success    bool
	Err        error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordOperation(metric OperationMetric)
}
