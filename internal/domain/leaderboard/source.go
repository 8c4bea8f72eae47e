package leaderboard

import (
	"context"
	"fmt"
)

// BatchSource fetches the raw XP records of a single batch from the remote
// table store. Implementations live in the infrastructure layer (REST table
// store client, direct Postgres repository).
type BatchSource interface {
	// FetchBatch returns every record whose cohort_type and cohort_number
	// both equal the key's components. Order within the batch is whatever
	// the store returned; the aggregator does not depend on it.
	FetchBatch(ctx context.Context, key BatchKey) ([]XPRecord, error)
}

// FetchError reports that one of the per-batch queries of an aggregation
// failed. The whole aggregation fails with it; no partial result is kept.
type FetchError struct {
	// Batch is the key whose query failed.
	Batch BatchKey

	// Err is the underlying failure, preserved for diagnostics.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch batch %s: %v", e.Batch, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
