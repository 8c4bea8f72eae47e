package tablestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultClientConfig(server.URL, "test-api-key")
	config.RetryConfig.InitialDelay = time.Millisecond
	config.RetryConfig.MaxDelay = 5 * time.Millisecond
	return NewClient(config)
}

func TestClient_FetchBatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/xp_leaderboard", r.URL.Path)
		assert.Equal(t, "eq.bootcamp", r.URL.Query().Get("cohort_type"))
		assert.Equal(t, "eq.3", r.URL.Query().Get("cohort_number"))
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"enrollment_id": "S1",
				"full_name":     "Aisha Nurlanovna",
				"email":         "aisha@example.com",
				"cohort_type":   "bootcamp",
				"cohort_number": "3",
				"xp":            1500,
				"last_updated":  "2026-08-20T10:00:00Z",
			},
			{
				"enrollment_id": "S2",
				"full_name":     "Bota",
				"email":         "bota@example.com",
				"cohort_type":   "bootcamp",
				"cohort_number": "3",
				"xp":            900,
			},
		})
	})

	key, err := leaderboard.NewBatchKey("bootcamp", "3")
	require.NoError(t, err)

	records, err := client.FetchBatch(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "S1", records[0].EnrollmentID)
	assert.Equal(t, "Aisha Nurlanovna", records[0].FullName)
	assert.Equal(t, leaderboard.XP(1500), records[0].XP)
	assert.Equal(t, "bootcamp", records[0].CohortType)
	assert.False(t, records[0].LastUpdated.IsZero())

	assert.Equal(t, "S2", records[1].EnrollmentID)
	assert.Equal(t, leaderboard.XP(900), records[1].XP)
}

func TestClient_FetchBatchEmptyResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	key, err := leaderboard.NewBatchKey("bootcamp", "99")
	require.NoError(t, err)

	records, err := client.FetchBatch(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_FetchBatchRejectsInvalidKey(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.FetchBatch(context.Background(), leaderboard.BatchKey{})
	assert.Error(t, err)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"PGRST205","message":"relation not found"}`))
	})

	key, err := leaderboard.NewBatchKey("bootcamp", "1")
	require.NoError(t, err)

	_, err = client.FetchBatch(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	key, err := leaderboard.NewBatchKey("bootcamp", "1")
	require.NoError(t, err)

	_, err = client.FetchBatch(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_TooManyRequests(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	key, err := leaderboard.NewBatchKey("bootcamp", "1")
	require.NoError(t, err)

	_, err = client.FetchBatch(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestClient_IsHealthy(t *testing.T) {
	healthy := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, healthy.IsHealthy(context.Background()))

	// A 4xx on the bare root still means the store is reachable.
	reachable := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"permission denied"}`))
	})
	assert.True(t, reachable.IsHealthy(context.Background()))

	down := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.False(t, down.IsHealthy(context.Background()))
}
