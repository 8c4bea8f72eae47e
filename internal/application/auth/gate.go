// Package auth implements the session/role gate in front of the remote
// identity provider. The gate validates the role claim of every session it
// sees and presents "unauthenticated" to the rest of the application
// whenever the claim does not match, the provider times out, or no session
// exists. Auth failures are converted into state, never thrown upward.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/session"
	"github.com/cohort-hub/student-dashboard/internal/domain/shared"
	"github.com/cohort-hub/student-dashboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVIDER PORT
// ══════════════════════════════════════════════════════════════════════════════

// Provider is the identity-provider surface the gate consumes. The concrete
// client lives in the infrastructure layer and is constructor-injected.
type Provider interface {
	// CurrentSession returns the provider's current session, or (nil, nil)
	// when nobody is signed in. It honors ctx cancellation; the gate bounds
	// it with a timeout during initialization.
	CurrentSession(ctx context.Context) (*session.Session, error)

	// SignOut ends the current session at the provider.
	SignOut(ctx context.Context) error

	// Subscribe registers a listener for session-change events. The
	// returned subscription must be closed to stop notifications.
	Subscribe(fn session.Listener) session.Subscription
}

// ══════════════════════════════════════════════════════════════════════════════
// GATE
// ══════════════════════════════════════════════════════════════════════════════

// Config holds gate configuration.
type Config struct {
	// RequiredRole is the role claim a session must carry. Sessions with
	// any other claim are force-signed-out.
	RequiredRole string

	// InitTimeout bounds the wait on the provider during Start. Exceeding
	// it resolves to the unauthenticated state, not an error.
	InitTimeout time.Duration

	// SignOutTimeout bounds the forced sign-out call on role mismatch.
	SignOutTimeout time.Duration

	// OnRoleRejected, when set, is called once per rejected session, e.g.
	// to bump a counter.
	OnRoleRejected func()
}

// DefaultConfig returns sensible defaults for the gate.
func DefaultConfig() Config {
	return Config{
		RequiredRole:   "student",
		InitTimeout:    5 * time.Second,
		SignOutTimeout: 3 * time.Second,
	}
}

// Gate wraps the identity provider and exposes the validated session state.
// All accessors are safe for concurrent use.
type Gate struct {
	provider Provider
	config   Config
	log      *logger.Logger

	mu     sync.RWMutex
	sess   *session.Session
	closed bool

	subMu sync.Mutex
	sub   session.Subscription
}

// NewGate creates a gate around the given provider. Call Start to
// initialize state and begin listening for session changes.
func NewGate(provider Provider, config Config, log *logger.Logger) *Gate {
	if config.RequiredRole == "" {
		config.RequiredRole = DefaultConfig().RequiredRole
	}
	if config.InitTimeout <= 0 {
		config.InitTimeout = DefaultConfig().InitTimeout
	}
	if config.SignOutTimeout <= 0 {
		config.SignOutTimeout = DefaultConfig().SignOutTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Gate{
		provider: provider,
		config:   config,
		log:      log.With(logger.Component("auth_gate")),
	}
}

// Start fetches the current session with a bounded wait and subscribes to
// session-change events. A provider timeout resolves to the unauthenticated
// state; Start returns an error only for programming mistakes (nil
// provider), never for auth outcomes.
func (g *Gate) Start(ctx context.Context) error {
	if g.provider == nil {
		return errors.New("auth: gate requires a provider")
	}

	initCtx, cancel := context.WithTimeout(ctx, g.config.InitTimeout)
	defer cancel()

	sess, err := g.provider.CurrentSession(initCtx)
	switch {
	case err == nil:
		g.apply(sess)
	case errors.Is(err, context.DeadlineExceeded) || shared.IsTimeout(err):
		// Timeout is "no session", not a failure.
		g.log.Warn("session init timed out, proceeding unauthenticated",
			logger.Duration("timeout", g.config.InitTimeout))
		g.apply(nil)
	default:
		// Any other provider failure is swallowed at this boundary too; the
		// surrounding application cannot recover from a thrown auth error
		// during passive initialization.
		g.log.Error("session init failed, proceeding unauthenticated", logger.Err(err))
		g.apply(nil)
	}

	// Subscribing after the initial fetch means an event racing the init
	// simply re-applies the newer state; apply is idempotent.
	sub := g.provider.Subscribe(g.onSessionChange)

	g.subMu.Lock()
	g.sub = sub
	g.subMu.Unlock()

	// Close may have run while we were subscribing.
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		sub.Close()
	}

	return nil
}

// onSessionChange handles provider notifications. Events arriving after
// Close are ignored; the subscription teardown makes late completions from
// an earlier invocation harmless.
func (g *Gate) onSessionChange(event session.EventType, sess *session.Session) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return
	}

	g.log.Debug("session change", logger.SessionEvent(string(event)))

	switch event {
	case session.EventSignedOut:
		g.setSession(nil)
	case session.EventSignedIn, session.EventTokenRefreshed:
		g.apply(sess)
	default:
		g.log.Warn("unknown session event ignored", logger.SessionEvent(string(event)))
	}
}

// apply validates the role claim and installs the session, or clears state.
// A role mismatch is not an error: the user is force-signed-out with only a
// diagnostic log line.
func (g *Gate) apply(sess *session.Session) {
	if sess == nil || sess.User == nil {
		g.setSession(nil)
		return
	}

	if !sess.User.HasRole(g.config.RequiredRole) {
		g.log.Warn("role mismatch, forcing sign-out",
			logger.Role(sess.User.Role),
			logger.String("required_role", g.config.RequiredRole),
			logger.Email(sess.User.Email),
		)
		if g.config.OnRoleRejected != nil {
			g.config.OnRoleRejected()
		}
		g.setSession(nil)
		g.forceSignOut()
		return
	}

	g.setSession(sess.Clone())
}

// forceSignOut ends the provider session after a role mismatch. Failures
// are logged and dropped; local state is already unauthenticated.
func (g *Gate) forceSignOut() {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.SignOutTimeout)
	defer cancel()
	if err := g.provider.SignOut(ctx); err != nil {
		g.log.Error("forced sign-out failed", logger.Err(err))
	}
}

func (g *Gate) setSession(sess *session.Session) {
	g.mu.Lock()
	g.sess = sess
	g.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC STATE
// ══════════════════════════════════════════════════════════════════════════════

// IsAuthenticated reports whether a role-validated session is present.
func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sess != nil
}

// CurrentUser returns the validated principal, or nil.
func (g *Gate) CurrentUser() *session.User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.sess == nil {
		return nil
	}
	return g.sess.Clone().User
}

// CurrentSession returns a copy of the validated session, or nil.
func (g *Gate) CurrentSession() *session.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sess.Clone()
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SignOut ends the session at the provider and clears local state. Local
// state is cleared even when the provider call fails.
func (g *Gate) SignOut(ctx context.Context) error {
	g.setSession(nil)
	if err := g.provider.SignOut(ctx); err != nil {
		g.log.Error("sign-out failed", logger.Err(err))
		return shared.WrapError("session", "SignOut", shared.ErrExternalService, "provider sign-out failed", err)
	}
	return nil
}

// RefreshAuth re-fetches the current session from the provider and
// re-validates the role claim. Provider failures resolve to the
// unauthenticated state rather than an error.
func (g *Gate) RefreshAuth(ctx context.Context) {
	sess, err := g.provider.CurrentSession(ctx)
	if err != nil {
		g.log.Error("auth refresh failed, clearing session", logger.Err(err))
		g.setSession(nil)
		return
	}
	g.apply(sess)
}

// Close disposes the session-change subscription. Idempotent; events
// delivered after Close are ignored.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.subMu.Lock()
	sub := g.sub
	g.sub = nil
	g.subMu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
