package tablestore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
)

func TestXPRowDTO_Parsing(t *testing.T) {
	jsonData := `[
    {
        "enrollment_id": "2f6c1d8a-41b7-4f02-9c55-8a9e1b7d3c20",
        "full_name": "Aisha Nurlanovna",
        "email": "aisha@example.com",
        "cohort_type": "bootcamp",
        "cohort_number": "3",
        "xp": 19800,
        "last_updated": "2026-08-20T10:15:00Z"
    }
]`

	var rows []XPRowDTO
	err := json.Unmarshal([]byte(jsonData), &rows)
	assert.NoError(t, err)
	assert.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "2f6c1d8a-41b7-4f02-9c55-8a9e1b7d3c20", row.EnrollmentID)
	assert.Equal(t, "Aisha Nurlanovna", row.FullName)
	assert.Equal(t, "bootcamp", row.CohortType)
	assert.Equal(t, "3", row.CohortNumber)
	assert.Equal(t, 19800, row.XP)
	assert.Equal(t, 2026, row.LastUpdated.Year())
}

func TestMapper_RecordFromRow(t *testing.T) {
	mapper := NewMapper()

	record := mapper.RecordFromRow(XPRowDTO{
		EnrollmentID: "S1",
		FullName:     "Aisha",
		Email:        "aisha@example.com",
		CohortType:   "bootcamp",
		CohortNumber: "3",
		XP:           1500,
	})

	assert.Equal(t, "S1", record.EnrollmentID)
	assert.Equal(t, leaderboard.XP(1500), record.XP)
	assert.Equal(t, "bootcamp:3", record.Batch().String())
}

func TestAPIErrorDTO_Error(t *testing.T) {
	withCode := &APIErrorDTO{Status: 404, Code: "PGRST205", Message: "relation not found"}
	assert.Equal(t, "table store error 404 (PGRST205): relation not found", withCode.Error())

	bare := &APIErrorDTO{Status: 500, Message: "internal"}
	assert.Equal(t, "table store error 500: internal", bare.Error())
}
