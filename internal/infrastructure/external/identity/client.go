package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the identity provider client.
type ClientConfig struct {
	// BaseURL is the provider instance URL, e.g. "https://xyz.example.co".
	BaseURL string

	// APIKey is the public key sent as the apikey header.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables request logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the identity provider and holds the current session in
// memory. Sessions are never persisted. The client implements the auth
// gate's Provider port.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	current *session.Session

	subMu  sync.Mutex
	subs   map[uint64]session.Listener
	nextID uint64
}

// NewClient creates a new identity provider client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
		subs:   make(map[uint64]session.Listener),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SignIn authenticates with email and password and establishes a session.
// Subscribers receive a sign-in event.
func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var dto SessionDTO
	if err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &dto); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	sess := sessionFromDTO(&dto, time.Now())
	c.setSession(sess)
	c.emit(session.EventSignedIn, sess)

	return sess.Clone(), nil
}

// CurrentSession returns the current session, refreshing an expired token
// pair and re-fetching the principal so the caller always sees the
// provider's latest claims. Returns (nil, nil) when nobody is signed in.
func (c *Client) CurrentSession(ctx context.Context) (*session.Session, error) {
	c.mu.RLock()
	sess := c.current.Clone()
	c.mu.RUnlock()

	if sess == nil {
		return nil, nil
	}

	if sess.Expired(time.Now()) {
		if sess.RefreshToken == "" {
			c.setSession(nil)
			return nil, nil
		}
		refreshed, err := c.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		sess = refreshed
	}

	// Re-fetch the principal; sessions can outlive metadata edits.
	var userDTO UserDTO
	if err := c.doRequest(ctx, http.MethodGet, "/auth/v1/user", sess.AccessToken, nil, &userDTO); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	sess.User = userFromDTO(&userDTO)

	c.setSession(sess)
	return sess.Clone(), nil
}

// Refresh exchanges the refresh token for a new token pair. Subscribers
// receive a token-refresh event.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	c.mu.RLock()
	current := c.current.Clone()
	c.mu.RUnlock()

	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("refresh: no refresh token")
	}

	body := map[string]string{
		"refresh_token": current.RefreshToken,
	}

	var dto SessionDTO
	if err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &dto); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	sess := sessionFromDTO(&dto, time.Now())
	if sess.User == nil {
		sess.User = current.User
	}
	c.setSession(sess)
	c.emit(session.EventTokenRefreshed, sess)

	return sess.Clone(), nil
}

// SignOut revokes the session at the provider and clears local state.
// Local state clears regardless of the provider outcome; subscribers
// receive a sign-out event either way. Signing out without a session is a
// no-op.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	sess := c.current.Clone()
	c.mu.RUnlock()

	if sess == nil {
		return nil
	}

	c.setSession(nil)
	c.emit(session.EventSignedOut, nil)

	if err := c.doRequest(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) setSession(sess *session.Session) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// subscription is a live listener registration.
type subscription struct {
	once  sync.Once
	close func()
}

// Close implements session.Subscription. Idempotent.
func (s *subscription) Close() {
	s.once.Do(s.close)
}

// Subscribe registers a listener for session-change events. The listener
// receives no events after the returned subscription is closed.
func (c *Client) Subscribe(fn session.Listener) session.Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return &subscription{
		close: func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		},
	}
}

// emit notifies subscribers synchronously. Listeners are expected to be
// quick; the gate only swaps a pointer under a mutex.
func (c *Client) emit(event session.EventType, sess *session.Session) {
	c.subMu.Lock()
	listeners := make([]session.Listener, 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subMu.Unlock()

	for _, fn := range listeners {
		fn(event, sess.Clone())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a single HTTP request. When accessToken is empty the
// API key doubles as the bearer token, matching the provider's anonymous
// endpoints.
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.config.APIKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("identity request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
