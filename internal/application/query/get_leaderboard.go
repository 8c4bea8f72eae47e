// Package query contains read operations following CQRS. Queries never
// modify state - they only read and return data. Each query is a
// self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
	"github.com/cohort-hub/student-dashboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Aggregates the XP standings of one or more batches: one remote query per
// batch, issued concurrently, fail-fast on the first failure. Results are
// merged in input-batch order, de-duplicated by enrollment id, sorted by XP
// descending and ranked 1..N.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the aggregation parameters.
type GetLeaderboardQuery struct {
	// Batches is the set of batches to aggregate. Empty yields an empty
	// result without error. Order matters: it decides which batch's copy of
	// a duplicated enrollment wins, and which failure is reported first.
	Batches []leaderboard.BatchKey

	// Search is an optional case-insensitive substring filter on full name.
	// Filtering produces a view; ranks are NOT renumbered.
	Search string
}

// Validate checks the query parameters.
func (q *GetLeaderboardQuery) Validate() error {
	for _, key := range q.Batches {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LeaderboardEntryDTO is one row of the response.
type LeaderboardEntryDTO struct {
	// Rank is the entry's position over the FULL standings, 1-based.
	Rank int `json:"rank"`

	// EnrollmentID uniquely identifies the student's enrollment.
	EnrollmentID string `json:"enrollment_id"`

	// FullName is the display name.
	FullName string `json:"full_name"`

	// Email is the student's contact address.
	Email string `json:"email"`

	// CohortType and CohortNumber name the batch the entry was attributed to.
	CohortType   string `json:"cohort_type"`
	CohortNumber string `json:"cohort_number"`

	// XP is the experience points the rank is based on.
	XP int `json:"xp"`

	// LastUpdated is when the store last touched the row.
	LastUpdated time.Time `json:"last_updated"`
}

// GetLeaderboardResult contains the aggregation result.
type GetLeaderboardResult struct {
	// Entries are the (possibly filtered) ranked entries in rank order.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// TotalCount is the size of the full de-duplicated standings, before
	// any search filtering.
	TotalCount int `json:"total_count"`

	// Search echoes the filter that produced the view, empty when none.
	Search string `json:"search,omitempty"`

	// GeneratedAt is when this result was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler handles leaderboard aggregation requests.
type GetLeaderboardHandler struct {
	source leaderboard.BatchSource
	log    *logger.Logger
}

// NewGetLeaderboardHandler creates a new aggregation handler. The batch
// source is constructor-injected; the handler owns no remote state.
func NewGetLeaderboardHandler(source leaderboard.BatchSource, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetLeaderboardHandler{
		source: source,
		log:    log.With(logger.Component("get_leaderboard")),
	}
}

// Handle runs the aggregation. The per-batch queries run concurrently so
// latency is bounded by the slowest batch, not the sum. If any query fails
// the whole operation fails with a *leaderboard.FetchError carrying the
// failure of the earliest batch (in input order) that failed; completed
// sibling results are discarded.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	if len(q.Batches) == 0 {
		return &GetLeaderboardResult{
			Entries:     []LeaderboardEntryDTO{},
			Search:      q.Search,
			GeneratedAt: time.Now().UTC(),
		}, nil
	}

	// Each goroutine writes only its own slot; no locking needed. Results
	// are reassembled in input order afterwards, which keeps the duplicate
	// tie-break independent of completion order.
	results := make([][]leaderboard.XPRecord, len(q.Batches))
	errs := make([]error, len(q.Batches))

	var wg sync.WaitGroup
	for i, key := range q.Batches {
		wg.Add(1)
		go func(i int, key leaderboard.BatchKey) {
			defer wg.Done()
			results[i], errs[i] = h.source.FetchBatch(ctx, key)
		}(i, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			fetchErr := &leaderboard.FetchError{Batch: q.Batches[i], Err: err}
			h.log.Error("batch fetch failed",
				logger.Batch(q.Batches[i].String()),
				logger.Err(fetchErr),
			)
			return nil, fetchErr
		}
	}

	var merged []leaderboard.XPRecord
	for _, records := range results {
		merged = append(merged, records...)
	}

	standings := leaderboard.BuildStandings(merged)
	entries := standings.FilterByName(q.Search)

	h.log.Debug("leaderboard aggregated",
		logger.Int("batches", len(q.Batches)),
		logger.Int("raw_records", len(merged)),
		logger.Int("entries", standings.Len()),
		logger.Latency(time.Since(started)),
	)

	return &GetLeaderboardResult{
		Entries:     toEntryDTOs(entries),
		TotalCount:  standings.Len(),
		Search:      q.Search,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func toEntryDTOs(entries []leaderboard.RankedEntry) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntryDTO{
			Rank:         int(e.Rank),
			EnrollmentID: e.EnrollmentID,
			FullName:     e.FullName,
			Email:        e.Email,
			CohortType:   e.CohortType,
			CohortNumber: e.CohortNumber,
			XP:           int(e.XP),
			LastUpdated:  e.LastUpdated,
		}
	}
	return out
}

// IsFetchError reports whether err is (or wraps) a batch fetch failure.
func IsFetchError(err error) bool {
	var fe *leaderboard.FetchError
	return errors.As(err, &fe)
}
