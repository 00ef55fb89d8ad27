// Package backend is the client for the hosted auth and data service.
package backend

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

	"mentalhealth-ai.bd/companion/internal/model"
)

const defaultTimeout = 30 * time.Second

// AuthEventKind names an auth state transition.
type AuthEventKind string

const (
	EventSignedIn     AuthEventKind = "SIGNED_IN"
	EventSignedOut    AuthEventKind = "SIGNED_OUT"
	EventTokenInvalid AuthEventKind = "TOKEN_INVALID"
)

// AuthEvent is delivered to OnAuthStateChange listeners. Session is nil for
// sign-out and invalidation.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *model.AuthSession
}

type listener struct {
	id int
	fn func(AuthEvent)
}

// Client talks to the auth (/auth/v1) and table (/rest/v1) endpoints and
// holds the current session.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	session   *model.AuthSession
	listeners []listener
	nextID    int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// OnAuthStateChange registers fn for auth transitions and returns a func that
// removes it. Listeners run synchronously on the goroutine that caused the
// transition.
func (c *Client) OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) emit(ev AuthEvent) {
	c.mu.RLock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.RUnlock()
	for _, l := range ls {
		l.fn(ev)
	}
}

// Session returns the held session, or nil.
func (c *Client) Session() *model.AuthSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession adopts a session obtained elsewhere (a restored token or an
// OAuth redirect) and announces it.
func (c *Client) SetSession(s *model.AuthSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	if s != nil {
		c.emit(AuthEvent{Kind: EventSignedIn, Session: s})
	}
}

// Restore holds a persisted session without announcing it. Callers validate
// it with GetUser and announce it with SetSession.
func (c *Client) Restore(s *model.AuthSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) clearSession(kind AuthEventKind) {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()
	if had {
		c.emit(AuthEvent{Kind: kind})
	}
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// request describes one call. auth attaches the held access token.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	var token string
	if r.auth {
		token = c.accessToken()
		if token == "" {
			return &Error{Status: http.StatusUnauthorized, Code: "no_session", Message: "Auth session missing"}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		if resp.StatusCode == http.StatusUnauthorized && token != "" && token == c.accessToken() {
			c.logger.Debug("access token rejected", slog.String("path", r.path))
			c.clearSession(EventTokenInvalid)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *Error {
	e := &Error{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		e.Code = body.Code
		e.Message = body.Message
		if e.Message == "" {
			e.Message = body.Error
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// Error is a non-2xx reply from the service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsDuplicate reports a unique-constraint violation.
func IsDuplicate(err error) bool {
	e, ok := asError(err)
	return ok && (e.Code == "23505" || e.Status == http.StatusConflict)
}

// IsNotFound reports that the requested row does not exist.
func IsNotFound(err error) bool {
	e, ok := asError(err)
	return ok && (e.Code == "PGRST116" || e.Status == http.StatusNotFound)
}

func IsUnauthorized(err error) bool {
	e, ok := asError(err)
	return ok && e.Status == http.StatusUnauthorized
}

func IsServerError(err error) bool {
	e, ok := asError(err)
	return ok && e.Status >= 500
}
