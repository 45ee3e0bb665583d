package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the session state of a Client.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Config carries Client construction dependencies.
type Config struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:8080". Required.
	BaseURL string

	// HTTPClient overrides the transport. Defaults to a client with a
	// 30 second overall timeout.
	HTTPClient *http.Client

	// Storage persists the token pair. Defaults to in-memory storage.
	Storage TokenStorage

	// Log receives session lifecycle events. Defaults to slog.Default().
	Log *slog.Logger

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// Client is a session-holding API client. Safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	storage   TokenStorage
	log       *slog.Logger
	userAgent string

	mu      sync.Mutex
	state   State
	pair    TokenPair
	hasPair bool

	refreshGroup singleflight.Group
}

// New constructs a Client in the Unauthenticated state. Use Resume to pick
// up a previously stored session.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("client: empty base URL")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	st := cfg.Storage
	if st == nil {
		st = NewMemoryStorage()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "evtrack-client/1"
	}

	return &Client{
		base:      base,
		http:      hc,
		storage:   st,
		log:       log,
		userAgent: ua,
		state:     StateUnauthenticated,
	}, nil
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ---- session lifecycle ----

// Register creates an account and starts an authenticated session.
func (c *Client) Register(ctx context.Context, in RegisterInput) (User, error) {
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		User    User   `json:"user"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/register", nil, in, &resp, ""); err != nil {
		return User{}, err
	}
	c.adopt(TokenPair{Access: resp.Access, Refresh: resp.Refresh})
	return resp.User, nil
}

// Login authenticates with email and password and starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		User    User   `json:"user"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/login", nil, body, &resp, ""); err != nil {
		return User{}, err
	}
	c.adopt(TokenPair{Access: resp.Access, Refresh: resp.Refresh})
	return resp.User, nil
}

// Resume restores a previously stored session. It reports false without an
// error when no usable session exists (nothing stored, or the stored pair no
// longer resolves and was discarded).
func (c *Client) Resume(ctx context.Context) (User, bool, error) {
	pair, ok, err := c.storage.Load()
	if err != nil {
		return User{}, false, err
	}
	if !ok {
		return User{}, false, nil
	}

	c.mu.Lock()
	c.pair = pair
	c.hasPair = true
	c.state = StateAuthenticated
	c.mu.Unlock()

	u, err := c.Profile(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || isUnauthorized(err) {
			c.terminate()
			return User{}, false, nil
		}
		// Transport-level failure: drop the tentative in-memory session
		// but keep the stored pair for a later attempt.
		c.mu.Lock()
		c.pair = TokenPair{}
		c.hasPair = false
		c.state = StateUnauthenticated
		c.mu.Unlock()
		return User{}, false, err
	}

	c.log.Debug("client.session.resumed", "user_id", u.ID)
	return u, true, nil
}

// Logout discards the session tokens, client-side only: bearer tokens stay
// valid until expiry, there is no server-side revocation.
func (c *Client) Logout() error {
	c.mu.Lock()
	c.pair = TokenPair{}
	c.hasPair = false
	c.state = StateUnauthenticated
	c.mu.Unlock()
	return c.storage.Clear()
}

// ForceRefresh exchanges the refresh token for a new access token even when
// the current one is still valid. Tools use it to exercise the refresh path
// explicitly.
func (c *Client) ForceRefresh(ctx context.Context) error {
	pair, ok := c.currentPair()
	if !ok {
		return ErrUnauthenticated
	}
	_, err := c.refreshAccess(ctx, pair.Access)
	return err
}

// Profile fetches the identity-bound profile for the current session.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ---- request core ----

// do performs an identity-scoped request under the refresh-and-retry
// protocol: on a 401 it runs one shared refresh exchange and retries the
// request exactly once with the new access token.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	pair, ok := c.currentPair()
	if !ok {
		return ErrUnauthenticated
	}

	err := c.send(ctx, method, path, query, body, out, pair.Access)
	if !isUnauthorized(err) {
		return err
	}

	access, rerr := c.refreshAccess(ctx, pair.Access)
	if rerr != nil {
		return rerr
	}

	// Exactly one retry. If the backend rejects the fresh token too, the
	// error surfaces as-is; no second refresh is attempted.
	return c.send(ctx, method, path, query, body, out, access)
}

// refreshAccess exchanges the refresh token for a new access token. Requests
// that failed concurrently share a single in-flight exchange; each of them
// retries against its result.
func (c *Client) refreshAccess(ctx context.Context, staleAccess string) (string, error) {
	// Another request may have finished a refresh between our failure and
	// now; its token is newer than the one we failed with.
	if pair, ok := c.currentPair(); ok && pair.Access != staleAccess {
		return pair.Access, nil
	}

	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		pair, ok := c.currentPair()
		if !ok {
			return nil, ErrSessionExpired
		}
		if pair.Access != staleAccess {
			return pair.Access, nil
		}

		c.setState(StateRefreshing)
		c.log.Debug("client.session.refresh.start")

		var resp struct {
			Access string `json:"access"`
		}
		err := c.send(ctx, http.MethodPost, "/auth/refresh", nil,
			map[string]string{"refresh": pair.Refresh}, &resp, "")
		if err != nil {
			if isUnauthorized(err) || IsValidation(err) {
				c.terminate()
				c.log.Debug("client.session.refresh.rejected")
				return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
			}
			// Transport failure: the session is not known to be dead.
			c.setState(StateAuthenticated)
			return nil, err
		}

		c.adopt(TokenPair{Access: resp.Access, Refresh: pair.Refresh})
		c.log.Debug("client.session.refresh.ok")
		return resp.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// send performs a single HTTP exchange with no retry logic.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, accessToken string) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<22)).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}

	var envelope struct {
		Error struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err == nil {
		if envelope.Error.Code != "" || envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Fields = envelope.Error.Fields
		}
	}
	return apiErr
}

func isUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusUnauthorized
}

// ---- internal state helpers ----

func (c *Client) currentPair() (TokenPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair, c.hasPair
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// adopt installs a token pair and marks the session authenticated.
func (c *Client) adopt(pair TokenPair) {
	c.mu.Lock()
	c.pair = pair
	c.hasPair = true
	c.state = StateAuthenticated
	c.mu.Unlock()

	if err := c.storage.Save(pair); err != nil {
		c.log.Warn("client.storage.save.fail", "err", err)
	}
}

// terminate discards the session entirely.
func (c *Client) terminate() {
	c.mu.Lock()
	c.pair = TokenPair{}
	c.hasPair = false
	c.state = StateUnauthenticated
	c.mu.Unlock()

	if err := c.storage.Clear(); err != nil {
		c.log.Warn("client.storage.clear.fail", "err", err)
	}
}
