package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohort-hub/student-dashboard/internal/domain/session"
)

// fakeProvider implements Provider for gate tests. It records sign-out calls
// and hands out the stored listener so tests can emit events.
type fakeProvider struct {
	mu sync.Mutex

	sess       *session.Session
	sessionErr error
	blockInit  bool

	signOutCalls int
	signOutErr   error

	listener session.Listener
	closed   bool
}

func (f *fakeProvider) CurrentSession(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	block := f.blockInit
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.sess, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	f.sess = nil
	return f.signOutErr
}

func (f *fakeProvider) Subscribe(fn session.Listener) session.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
	return fakeSubscription{provider: f}
}

func (f *fakeProvider) emit(event session.EventType, sess *session.Session) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	if fn != nil {
		fn(event, sess)
	}
}

func (f *fakeProvider) signOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

type fakeSubscription struct {
	provider *fakeProvider
}

func (s fakeSubscription) Close() {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.provider.closed = true
}

func studentSession() *session.Session {
	return &session.Session{
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
		User: &session.User{
			ID:    "u1",
			Email: "aisha@example.com",
			Role:  "student",
		},
	}
}

func TestGate_StartWithMatchingRole(t *testing.T) {
	provider := &fakeProvider{sess: studentSession()}
	gate := NewGate(provider, DefaultConfig(), nil)

	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.True(t, gate.IsAuthenticated())
	user := gate.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, "aisha@example.com", user.Email)
	assert.Zero(t, provider.signOuts())
}

func TestGate_StartWithNoSession(t *testing.T) {
	provider := &fakeProvider{}
	gate := NewGate(provider, DefaultConfig(), nil)

	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.False(t, gate.IsAuthenticated())
	assert.Nil(t, gate.CurrentUser())
	assert.Nil(t, gate.CurrentSession())
}

func TestGate_RoleMismatchForcesSignOut(t *testing.T) {
	sess := studentSession()
	sess.User.Role = "admin"
	provider := &fakeProvider{sess: sess}

	rejections := 0
	config := DefaultConfig()
	config.OnRoleRejected = func() { rejections++ }
	gate := NewGate(provider, config, nil)

	// A mismatch is converted into state, never an error.
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.False(t, gate.IsAuthenticated())
	assert.Equal(t, 1, provider.signOuts())
	assert.Equal(t, 1, rejections)
}

func TestGate_InitTimeoutResolvesUnauthenticated(t *testing.T) {
	provider := &fakeProvider{blockInit: true}
	config := DefaultConfig()
	config.InitTimeout = 20 * time.Millisecond
	gate := NewGate(provider, config, nil)

	start := time.Now()
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.False(t, gate.IsAuthenticated())
	assert.Less(t, time.Since(start), time.Second)
}

func TestGate_StartSwallowsProviderFailure(t *testing.T) {
	provider := &fakeProvider{sessionErr: errors.New("identity down")}
	gate := NewGate(provider, DefaultConfig(), nil)

	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.False(t, gate.IsAuthenticated())
}

func TestGate_ReactsToSessionEvents(t *testing.T) {
	provider := &fakeProvider{}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	assert.False(t, gate.IsAuthenticated())

	provider.emit(session.EventSignedIn, studentSession())
	assert.True(t, gate.IsAuthenticated())

	provider.emit(session.EventSignedOut, nil)
	assert.False(t, gate.IsAuthenticated())
}

func TestGate_EventWithWrongRoleIsRejected(t *testing.T) {
	provider := &fakeProvider{}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	sess := studentSession()
	sess.User.Role = "mentor"
	provider.emit(session.EventSignedIn, sess)

	assert.False(t, gate.IsAuthenticated())
	assert.Equal(t, 1, provider.signOuts())
}

func TestGate_EventsAfterCloseAreIgnored(t *testing.T) {
	provider := &fakeProvider{}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))

	gate.Close()
	assert.True(t, provider.closed)

	provider.emit(session.EventSignedIn, studentSession())
	assert.False(t, gate.IsAuthenticated())

	// Idempotent.
	gate.Close()
}

func TestGate_SignOutClearsLocalStateEvenOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{sess: studentSession(), signOutErr: errors.New("network")}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	require.True(t, gate.IsAuthenticated())

	err := gate.SignOut(context.Background())
	assert.Error(t, err)
	assert.False(t, gate.IsAuthenticated())
}

func TestGate_RefreshAuthRevalidates(t *testing.T) {
	provider := &fakeProvider{sess: studentSession()}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	require.True(t, gate.IsAuthenticated())

	// The provider's role claim changed since the last look.
	provider.mu.Lock()
	provider.sess = studentSession()
	provider.sess.User.Role = "alumni"
	provider.mu.Unlock()

	gate.RefreshAuth(context.Background())
	assert.False(t, gate.IsAuthenticated())
}

func TestGate_RefreshAuthFailureClearsState(t *testing.T) {
	provider := &fakeProvider{sess: studentSession()}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	require.True(t, gate.IsAuthenticated())

	provider.mu.Lock()
	provider.sessionErr = errors.New("identity down")
	provider.mu.Unlock()

	gate.RefreshAuth(context.Background())
	assert.False(t, gate.IsAuthenticated())
}

func TestGate_CurrentSessionReturnsCopy(t *testing.T) {
	provider := &fakeProvider{sess: studentSession()}
	gate := NewGate(provider, DefaultConfig(), nil)
	require.NoError(t, gate.Start(context.Background()))
	defer gate.Close()

	sess := gate.CurrentSession()
	require.NotNil(t, sess)
	sess.User.Role = "mutated"

	fresh := gate.CurrentSession()
	assert.Equal(t, "student", fresh.User.Role)
}
