package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
)

// DefaultTable is the XP table queried per batch. Matches the REST store's
// table name so both backends serve the same rows.
const DefaultTable = "xp_leaderboard"

// XPRepository reads XP rows straight from the database. It implements
// leaderboard.BatchSource and is interchangeable with the REST table store
// client.
type XPRepository struct {
	conn  *Connection
	table string
}

// NewXPRepository creates a repository over the given connection. An empty
// table name selects DefaultTable.
func NewXPRepository(conn *Connection, table string) *XPRepository {
	if table == "" {
		table = DefaultTable
	}
	return &XPRepository{conn: conn, table: table}
}

// FetchBatch returns every XP row whose cohort_type and cohort_number both
// equal the key's components, in whatever order the database yields them.
func (r *XPRepository) FetchBatch(ctx context.Context, key leaderboard.BatchKey) ([]leaderboard.XPRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	pool, err := r.conn.Pool()
	if err != nil {
		return nil, err
	}

	// The table name is config-supplied, not user input; placeholders only
	// cover the filter values.
	query := fmt.Sprintf(`
		SELECT enrollment_id, full_name, email, cohort_type, cohort_number, xp, last_updated
		FROM %s
		WHERE cohort_type = $1 AND cohort_number = $2
	`, r.table)

	rows, err := pool.Query(ctx, query, key.CohortType, key.CohortNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch batch %s: %w", key, err)
	}
	defer rows.Close()

	var records []leaderboard.XPRecord
	for rows.Next() {
		var (
			rec         leaderboard.XPRecord
			xp          int
			lastUpdated time.Time
		)
		if err := rows.Scan(
			&rec.EnrollmentID,
			&rec.FullName,
			&rec.Email,
			&rec.CohortType,
			&rec.CohortNumber,
			&xp,
			&lastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan batch %s row: %w", key, err)
		}
		rec.XP = leaderboard.XP(xp)
		rec.LastUpdated = lastUpdated
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch batch %s: %w", key, err)
	}

	return records, nil
}
