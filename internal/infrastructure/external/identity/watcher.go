package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION WATCHER
// Rotates the access token before it expires so downstream subscribers see
// token-refresh events instead of surprise 401s. The expiry instant comes
// from the token's exp claim (see accessTokenExpiry).
// ══════════════════════════════════════════════════════════════════════════════

// WatcherConfig contains configuration for the session watcher.
type WatcherConfig struct {
	// CheckInterval is how often the watcher inspects the session.
	CheckInterval time.Duration

	// RefreshLeeway is how long before expiry the token is rotated.
	RefreshLeeway time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		CheckInterval: 30 * time.Second,
		RefreshLeeway: 2 * time.Minute,
	}
}

// SessionWatcher keeps the client's session fresh in the background.
type SessionWatcher struct {
	client *Client
	config WatcherConfig
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSessionWatcher creates a watcher around the given client.
func NewSessionWatcher(client *Client, config WatcherConfig) *SessionWatcher {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultWatcherConfig().CheckInterval
	}
	if config.RefreshLeeway <= 0 {
		config.RefreshLeeway = DefaultWatcherConfig().RefreshLeeway
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &SessionWatcher{
		client: client,
		config: config,
		logger: config.Logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the watcher loop. It returns immediately; call Stop (or
// cancel ctx) to end it.
func (w *SessionWatcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends the watcher loop and waits for it to exit. Idempotent.
func (w *SessionWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *SessionWatcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.maybeRefresh(ctx)
		}
	}
}

// maybeRefresh rotates the token when it is about to expire. Failures are
// logged and retried on the next tick; a session that can no longer be
// refreshed surfaces to the gate as a sign-out on the following refresh
// attempt.
func (w *SessionWatcher) maybeRefresh(ctx context.Context) {
	w.client.mu.RLock()
	sess := w.client.current
	needsRefresh := sess != nil && sess.RefreshToken != "" &&
		sess.ExpiresWithin(time.Now(), w.config.RefreshLeeway)
	w.client.mu.RUnlock()

	if !needsRefresh {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, w.client.config.Timeout)
	defer cancel()

	if _, err := w.client.Refresh(refreshCtx); err != nil {
		w.logger.Error("session refresh failed", "error", err)
	}
}
