// Package leaderboard contains the domain model of the multi-batch XP
// leaderboard: batch keys, raw XP records as the remote table store returns
// them, and the ranked standings built from merged batch results.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// BatchKey identifies one cohort/batch combination. It is used as a query
// filter against the remote store, never stored.
type BatchKey struct {
	// CohortType is the program kind, e.g. "bootcamp" or "web".
	CohortType string

	// CohortNumber is the cohort ordinal within the type, kept as a string
	// because the store column is string-valued.
	CohortNumber string
}

// NewBatchKey creates a validated BatchKey.
func NewBatchKey(cohortType, cohortNumber string) (BatchKey, error) {
	key := BatchKey{
		CohortType:   strings.TrimSpace(cohortType),
		CohortNumber: strings.TrimSpace(cohortNumber),
	}
	if err := key.Validate(); err != nil {
		return BatchKey{}, err
	}
	return key, nil
}

// ParseBatchKey parses the "type:number" form used in query strings.
func ParseBatchKey(s string) (BatchKey, error) {
	typ, num, ok := strings.Cut(s, ":")
	if !ok {
		return BatchKey{}, shared.WrapError("leaderboard", "ParseBatchKey",
			shared.ErrInvalidFormat, fmt.Sprintf("expected <type>:<number>, got %q", s), nil)
	}
	return NewBatchKey(typ, num)
}

// Validate checks that both components are present.
func (k BatchKey) Validate() error {
	if k.CohortType == "" || k.CohortNumber == "" {
		return shared.ErrInvalidBatchKey
	}
	return nil
}

// String returns the "type:number" form.
func (k BatchKey) String() string {
	return k.CohortType + ":" + k.CohortNumber
}

// XP represents experience points. Always non-negative.
type XP int

// IsValid reports whether the XP value is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Rank is a 1-based position in the standings.
type Rank int

// IsValid reports whether the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// String returns the "#N" form used in logs and presentation.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS AND ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// XPRecord is one student's standing within a batch, exactly as fetched from
// the remote store. A student enrolled in several queried batches yields
// several raw records sharing an EnrollmentID; deduplication collapses them.
type XPRecord struct {
	// EnrollmentID uniquely identifies the student's enrollment.
	EnrollmentID string

	// FullName is the student's display name.
	FullName string

	// Email is the student's contact address.
	Email string

	// CohortType and CohortNumber name the batch the record was fetched under.
	CohortType   string
	CohortNumber string

	// XP is the student's experience points, never negative.
	XP XP

	// LastUpdated is when the store last touched the row. Informational only.
	LastUpdated time.Time
}

// Validate checks the record's invariants.
func (r *XPRecord) Validate() error {
	if r.EnrollmentID == "" {
		return shared.ErrEmptyEnrollment
	}
	if !r.XP.IsValid() {
		return shared.ErrInvalidXP
	}
	return nil
}

// Batch returns the key of the batch this record was fetched under.
func (r *XPRecord) Batch() BatchKey {
	return BatchKey{CohortType: r.CohortType, CohortNumber: r.CohortNumber}
}

// RankedEntry is an XPRecord augmented with its 1-based rank. Rank is
// positional, never stored, and recomputed whenever the underlying set
// changes.
type RankedEntry struct {
	XPRecord

	// Rank is the position in the standings, starting at 1, contiguous.
	// Ties do not share a rank.
	Rank Rank
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS
// ══════════════════════════════════════════════════════════════════════════════

// Standings is the display-ready ordered result of one aggregation pass.
// It is produced fresh on every fetch and replaced wholesale on refresh.
//
// Invariants held by construction:
//   - EnrollmentID values are unique (first occurrence in merge order wins)
//   - entries are sorted by XP descending, ties keep merge order
//   - ranks are exactly 1..N with no gaps, even across ties
type Standings struct {
	entries      []RankedEntry
	byEnrollment map[string]int // enrollment id -> index into entries
}

// BuildStandings merges raw records into ranked standings. The input is the
// concatenation of per-batch results in the caller's batch order, which makes
// the duplicate tie-break deterministic: the earliest record for an
// enrollment wins.
func BuildStandings(records []XPRecord) *Standings {
	deduped := make([]RankedEntry, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if rec.EnrollmentID == "" {
			continue
		}
		if _, dup := seen[rec.EnrollmentID]; dup {
			continue
		}
		seen[rec.EnrollmentID] = struct{}{}
		deduped = append(deduped, RankedEntry{XPRecord: rec})
	}

	// Stable keeps merge order on equal XP.
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].XP > deduped[j].XP
	})

	byEnrollment := make(map[string]int, len(deduped))
	for i := range deduped {
		deduped[i].Rank = Rank(i + 1)
		byEnrollment[deduped[i].EnrollmentID] = i
	}

	return &Standings{entries: deduped, byEnrollment: byEnrollment}
}

// Entries returns a copy of all ranked entries in rank order.
func (s *Standings) Entries() []RankedEntry {
	out := make([]RankedEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Standings) Len() int {
	return len(s.entries)
}

// GetByEnrollment returns the entry for an enrollment id, if present.
func (s *Standings) GetByEnrollment(enrollmentID string) (RankedEntry, bool) {
	idx, ok := s.byEnrollment[enrollmentID]
	if !ok {
		return RankedEntry{}, false
	}
	return s.entries[idx], true
}

// FilterByName returns the entries whose FullName contains the query,
// case-insensitively. The result is a view: each surviving entry keeps the
// rank it holds in the full standings, and relative order is preserved.
// An empty query returns all entries.
func (s *Standings) FilterByName(query string) []RankedEntry {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Entries()
	}

	needle := strings.ToLower(query)
	out := make([]RankedEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.FullName), needle) {
			out = append(out, e)
		}
	}
	return out
}

// TopXP returns the highest XP in the standings, zero when empty.
func (s *Standings) TopXP() XP {
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[0].XP
}
