package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(enrollmentID, fullName string, xp int) XPRecord {
	return XPRecord{
		EnrollmentID: enrollmentID,
		FullName:     fullName,
		Email:        fullName + "@example.com",
		CohortType:   "bootcamp",
		CohortNumber: "1",
		XP:           XP(xp),
	}
}

func TestParseBatchKey(t *testing.T) {
	key, err := ParseBatchKey("bootcamp:3")
	require.NoError(t, err)
	assert.Equal(t, "bootcamp", key.CohortType)
	assert.Equal(t, "3", key.CohortNumber)
	assert.Equal(t, "bootcamp:3", key.String())

	_, err = ParseBatchKey("no-separator")
	assert.Error(t, err)

	_, err = ParseBatchKey(":3")
	assert.Error(t, err)

	_, err = ParseBatchKey("bootcamp:")
	assert.Error(t, err)
}

func TestNewBatchKey_TrimsWhitespace(t *testing.T) {
	key, err := NewBatchKey("  web ", " 2 ")
	require.NoError(t, err)
	assert.Equal(t, "web", key.CohortType)
	assert.Equal(t, "2", key.CohortNumber)

	_, err = NewBatchKey("   ", "2")
	assert.Error(t, err)
}

func TestBuildStandings_MergesAndDeduplicates(t *testing.T) {
	// Batch A yields S1 and S2, batch B yields S2 again and S3. The first
	// record per enrollment wins; S3 has the most XP and takes rank 1.
	batchA := []XPRecord{rec("S1", "Aisha", 500), rec("S2", "Bota", 300)}
	batchB := []XPRecord{rec("S2", "Bota", 300), rec("S3", "Chingiz", 900)}

	standings := BuildStandings(append(batchA, batchB...))

	require.Equal(t, 3, standings.Len())
	entries := standings.Entries()
	assert.Equal(t, "S3", entries[0].EnrollmentID)
	assert.Equal(t, Rank(1), entries[0].Rank)
	assert.Equal(t, "S1", entries[1].EnrollmentID)
	assert.Equal(t, Rank(2), entries[1].Rank)
	assert.Equal(t, "S2", entries[2].EnrollmentID)
	assert.Equal(t, Rank(3), entries[2].Rank)
}

func TestBuildStandings_Empty(t *testing.T) {
	standings := BuildStandings(nil)
	assert.Equal(t, 0, standings.Len())
	assert.Empty(t, standings.Entries())
	assert.Equal(t, XP(0), standings.TopXP())
}

func TestBuildStandings_RanksAreContiguousAcrossTies(t *testing.T) {
	standings := BuildStandings([]XPRecord{
		rec("S1", "Aisha", 700),
		rec("S2", "Bota", 700),
		rec("S3", "Chingiz", 100),
	})

	entries := standings.Entries()
	require.Len(t, entries, 3)

	// Ties never share a rank; equal XP keeps input order.
	assert.Equal(t, Rank(1), entries[0].Rank)
	assert.Equal(t, "S1", entries[0].EnrollmentID)
	assert.Equal(t, Rank(2), entries[1].Rank)
	assert.Equal(t, "S2", entries[1].EnrollmentID)
	assert.Equal(t, Rank(3), entries[2].Rank)
}

func TestBuildStandings_SkipsEmptyEnrollmentIDs(t *testing.T) {
	standings := BuildStandings([]XPRecord{
		rec("", "Ghost", 9000),
		rec("S1", "Aisha", 100),
	})

	require.Equal(t, 1, standings.Len())
	assert.Equal(t, "S1", standings.Entries()[0].EnrollmentID)
}

func TestBuildStandings_DuplicateKeepsFirstOccurrence(t *testing.T) {
	// The same enrollment appears with different XP in two batches; the
	// earlier record wins regardless of which value is larger.
	standings := BuildStandings([]XPRecord{
		rec("S1", "Aisha", 200),
		rec("S1", "Aisha", 800),
	})

	require.Equal(t, 1, standings.Len())
	assert.Equal(t, XP(200), standings.Entries()[0].XP)
}

func TestStandings_GetByEnrollment(t *testing.T) {
	standings := BuildStandings([]XPRecord{
		rec("S1", "Aisha", 500),
		rec("S2", "Bota", 300),
	})

	entry, ok := standings.GetByEnrollment("S2")
	require.True(t, ok)
	assert.Equal(t, Rank(2), entry.Rank)

	_, ok = standings.GetByEnrollment("missing")
	assert.False(t, ok)
}

func TestStandings_FilterByName(t *testing.T) {
	standings := BuildStandings([]XPRecord{
		rec("S1", "Aisha Nurlanovna", 900),
		rec("S2", "Bota Aisheva", 500),
		rec("S3", "Chingiz", 100),
	})

	// Case-insensitive substring match over the full name.
	matched := standings.FilterByName("aish")
	require.Len(t, matched, 2)
	assert.Equal(t, "S1", matched[0].EnrollmentID)
	assert.Equal(t, "S2", matched[1].EnrollmentID)

	// Surviving entries keep the rank they hold in the full standings.
	assert.Equal(t, Rank(1), matched[0].Rank)
	assert.Equal(t, Rank(2), matched[1].Rank)

	assert.Empty(t, standings.FilterByName("zzz"))
	assert.Len(t, standings.FilterByName(""), 3)
	assert.Len(t, standings.FilterByName("   "), 3)
}

func TestXPRecord_Validate(t *testing.T) {
	valid := rec("S1", "Aisha", 100)
	assert.NoError(t, valid.Validate())

	missing := rec("", "Aisha", 100)
	assert.Error(t, missing.Validate())

	negative := rec("S1", "Aisha", -5)
	assert.Error(t, negative.Validate())
}

func TestRank_String(t *testing.T) {
	assert.Equal(t, "#7", Rank(7).String())
	assert.True(t, Rank(1).IsValid())
	assert.False(t, Rank(0).IsValid())
}
