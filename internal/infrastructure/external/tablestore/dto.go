// Package tablestore implements the remote table store client. The store
// exposes PostgREST-style endpoints; XP rows are queried per batch with
// equality filters on the cohort_type and cohort_number columns.
package tablestore

import (
	"fmt"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROW DTOs
// ══════════════════════════════════════════════════════════════════════════════

// XPRowDTO is one row of the XP table as the store returns it. This is the
// external representation, mapped to the domain model by Mapper.
type XPRowDTO struct {
	// EnrollmentID uniquely identifies the student's enrollment.
	EnrollmentID string `json:"enrollment_id"`

	// FullName is the student's display name.
	FullName string `json:"full_name"`

	// Email is the student's contact address.
	Email string `json:"email"`

	// CohortType is the program kind column the query filtered on.
	CohortType string `json:"cohort_type"`

	// CohortNumber is the cohort ordinal column the query filtered on.
	CohortNumber string `json:"cohort_number"`

	// XP is the experience points column.
	XP int `json:"xp"`

	// LastUpdated is when the row was last written.
	LastUpdated time.Time `json:"last_updated"`
}

// APIErrorDTO is the store's error body shape.
type APIErrorDTO struct {
	// Status is the HTTP status the error arrived with.
	Status int `json:"-"`

	// Code is the store's machine-readable error code.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Hint optionally suggests a fix.
	Hint string `json:"hint,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("table store error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("table store error %d: %s", e.Status, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts store rows to domain records.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// RecordFromRow maps a single row. Values are carried verbatim; the domain
// layer owns all interpretation.
func (m *Mapper) RecordFromRow(row XPRowDTO) leaderboard.XPRecord {
	return leaderboard.XPRecord{
		EnrollmentID: row.EnrollmentID,
		FullName:     row.FullName,
		Email:        row.Email,
		CohortType:   row.CohortType,
		CohortNumber: row.CohortNumber,
		XP:           leaderboard.XP(row.XP),
		LastUpdated:  row.LastUpdated,
	}
}

// RecordsFromRows maps a result set, preserving store order.
func (m *Mapper) RecordsFromRows(rows []XPRowDTO) []leaderboard.XPRecord {
	records := make([]leaderboard.XPRecord, len(rows))
	for i, row := range rows {
		records[i] = m.RecordFromRow(row)
	}
	return records
}
