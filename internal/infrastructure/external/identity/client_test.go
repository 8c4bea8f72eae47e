package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohort-hub/student-dashboard/internal/domain/session"
)

// signedToken builds a real JWT so expiry parsing sees a valid exp claim.
func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func grantBody(t *testing.T, accessToken string) map[string]any {
	t.Helper()
	return map[string]any{
		"access_token":  accessToken,
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-1",
		"user": map[string]any{
			"id":    "u1",
			"email": "aisha@example.com",
			"role":  "authenticated",
			"user_metadata": map[string]any{
				"role":      "student",
				"full_name": "Aisha Nurlanovna",
			},
		},
	}
}

func TestClient_SignIn(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "aisha@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, expiry)))
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))

	sess, err := client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Equal(t, expiry.Unix(), sess.ExpiresAt.Unix())

	// Role claim comes from user metadata, not the provider's generic role.
	require.NotNil(t, sess.User)
	assert.Equal(t, "student", sess.User.Role)
	assert.Equal(t, "Aisha Nurlanovna", sess.User.FullName)
}

func TestClient_SignInFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))

	_, err := client.SignIn(context.Background(), "aisha@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid login credentials")

	sess, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClient_CurrentSessionWithoutSignIn(t *testing.T) {
	client := NewClient(DefaultClientConfig("http://unused.invalid", "anon-key"))

	sess, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClient_CurrentSessionRefetchesPrincipal(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, expiry)))
		case "/auth/v1/user":
			// The role claim changed since sign-in.
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    "u1",
				"email": "aisha@example.com",
				"user_metadata": map[string]any{
					"role": "alumni",
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))
	_, err := client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)

	sess, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "alumni", sess.User.Role)
}

func TestClient_CurrentSessionRefreshesExpiredToken(t *testing.T) {
	var mu sync.Mutex
	refreshes := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			// Already-expired access token forces a refresh on the next look.
			_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, time.Now().Add(-time.Minute))))
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
			mu.Lock()
			refreshes++
			mu.Unlock()
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refresh-1", body["refresh_token"])
			_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, time.Now().Add(time.Hour))))
		case r.URL.Path == "/auth/v1/user":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "u1",
				"email":         "aisha@example.com",
				"user_metadata": map[string]any{"role": "student"},
			})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		}
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))
	_, err := client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)

	sess, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.Expired(time.Now()))

	mu.Lock()
	assert.Equal(t, 1, refreshes)
	mu.Unlock()
}

func TestClient_SignOut(t *testing.T) {
	var mu sync.Mutex
	logouts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, time.Now().Add(time.Hour))))
		case "/auth/v1/logout":
			mu.Lock()
			logouts++
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))
	_, err := client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, client.SignOut(context.Background()))

	sess, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)

	mu.Lock()
	assert.Equal(t, 1, logouts)
	mu.Unlock()

	// No session, no provider call.
	require.NoError(t, client.SignOut(context.Background()))
	mu.Lock()
	assert.Equal(t, 1, logouts)
	mu.Unlock()
}

func TestClient_SubscribeAndClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(grantBody(t, signedToken(t, time.Now().Add(time.Hour))))
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL, "anon-key"))

	var mu sync.Mutex
	var events []session.EventType
	sub := client.Subscribe(func(event session.EventType, s *session.Session) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	_, err := client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, client.SignOut(context.Background()))

	mu.Lock()
	assert.Equal(t, []session.EventType{session.EventSignedIn, session.EventSignedOut}, events)
	mu.Unlock()

	// After Close no further events arrive; Close is idempotent.
	sub.Close()
	sub.Close()

	_, err = client.SignIn(context.Background(), "aisha@example.com", "secret")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, events, 2)
	mu.Unlock()
}

func TestSessionFromDTO_FallsBackToExpiresIn(t *testing.T) {
	now := time.Now()
	sess := sessionFromDTO(&SessionDTO{
		AccessToken: "not-a-jwt",
		ExpiresIn:   60,
	}, now)

	require.NotNil(t, sess)
	assert.Equal(t, now.Add(time.Minute).Unix(), sess.ExpiresAt.Unix())
}
