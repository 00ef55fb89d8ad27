package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mentalhealth-ai.bd/companion/internal/api"
	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/auth"
	"mentalhealth-ai.bd/companion/internal/config"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/store"
)

const anonKey = "anon"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "backend.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		JWTSecret:   "secret",
		AnonKey:     anonKey,
		SessionTTL:  time.Hour,
		AutoConfirm: true,
		AdminEmails: []string{"admin@example.com"},
		EnableChat:  true,
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	authSvc := auth.NewService(st, auth.NewTokenIssuer(cfg.JWTSecret), auth.ServiceConfig{
		SessionTTL:  cfg.SessionTTL,
		AutoConfirm: true,
		AdminEmails: cfg.AdminEmails,
	}, nil, logger)
	limiter := api.NewRateLimiter(api.RateLimiterConfigPerMinute(1000, 1000), nil)
	t.Cleanup(limiter.Stop)

	srv := httptest.NewServer(api.NewRouter(api.NewAPIHandler(authSvc, st, cfg, nil, logger), limiter, nil))
	t.Cleanup(srv.Close)
	return srv
}

type eventLog struct {
	mu     sync.Mutex
	events []AuthEventKind
}

func (l *eventLog) record(ev AuthEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.Kind)
}

func (l *eventLog) kinds() []AuthEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuthEventKind(nil), l.events...)
}

func signUp(t *testing.T, c *Client, email string) *model.AuthUser {
	t.Helper()
	ctx := context.Background()
	res, err := c.SignUp(ctx, email, "secret123", map[string]any{"full_name": "Rahim"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if res.Session == nil {
		t.Fatal("SignUp() returned no session with auto-confirm on")
	}
	if _, err := c.InsertProfile(ctx, "Rahim"); err != nil {
		t.Fatalf("InsertProfile() error = %v", err)
	}
	return res.User
}

func TestClient_AuthLifecycle(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, anonKey)
	ctx := context.Background()

	var log eventLog
	unsubscribe := c.OnAuthStateChange(log.record)

	signUp(t, c, "rahim@example.com")
	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if c.Session() != nil {
		t.Fatal("session kept after SignOut")
	}

	_, err := c.SignInWithPassword(ctx, "rahim@example.com", "nope-nope")
	if err == nil || err.Error() != "Invalid login credentials" {
		t.Fatalf("SignInWithPassword(bad) error = %v", err)
	}

	session, err := c.SignInWithPassword(ctx, "rahim@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	user, err := c.GetUser(ctx)
	if err != nil || user.ID != session.User.ID {
		t.Fatalf("GetUser() = %v, %v", user, err)
	}

	unsubscribe()
	c.SignOut(ctx)

	want := []AuthEventKind{EventSignedIn, EventSignedOut, EventSignedIn}
	got := log.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestClient_TokenInvalid(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	c := New(srv.URL, anonKey)
	signUp(t, c, "rahim@example.com")
	stale := c.Session()

	// Revoke the session from a second client holding the same token.
	other := New(srv.URL, anonKey)
	other.SetSession(stale)
	if err := other.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	var log eventLog
	c.OnAuthStateChange(log.record)
	_, err := c.GetUser(ctx)
	if !IsUnauthorized(err) {
		t.Fatalf("GetUser() error = %v, want unauthorized", err)
	}
	if c.Session() != nil {
		t.Error("session kept after 401")
	}
	if got := log.kinds(); len(got) != 1 || got[0] != EventTokenInvalid {
		t.Errorf("events = %v, want [TOKEN_INVALID]", got)
	}
}

func TestClient_Tables(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	c := New(srv.URL, anonKey)
	user := signUp(t, c, "rahim@example.com")

	if _, err := c.InsertProfile(ctx, "Rahim"); !IsDuplicate(err) {
		t.Errorf("second InsertProfile() error = %v, want duplicate", err)
	}
	profile, err := c.GetProfile(ctx, user.ID)
	if err != nil || profile.Role != model.RoleUser {
		t.Fatalf("GetProfile() = %+v, %v", profile, err)
	}
	if _, err := c.GetProfile(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("GetProfile(missing) error = %v, want not found", err)
	}

	if _, err := c.InsertChatMessage(ctx, "session_1_abcdefghi", "hello", "hi"); err != nil {
		t.Fatalf("InsertChatMessage() error = %v", err)
	}
	chats, err := c.ListChatMessages(ctx, ChatFilter{UserID: user.ID})
	if err != nil || len(chats) != 1 {
		t.Fatalf("ListChatMessages() = %d rows, %v", len(chats), err)
	}

	for _, mood := range []string{"good", "great"} {
		if _, err := c.UpsertMood(ctx, "2026-10-16", mood); err != nil {
			t.Fatalf("UpsertMood(%s) error = %v", mood, err)
		}
	}
	moods, err := c.ListMoods(ctx, user.ID, "2026-10-16")
	if err != nil || len(moods) != 1 || moods[0].Mood != "great" {
		t.Errorf("ListMoods() = %+v, %v", moods, err)
	}

	if _, err := c.InsertPost(ctx, PostFields{Title: "x", Content: "y"}); err == nil {
		t.Error("non-admin InsertPost() succeeded")
	}
}

func TestClient_AdminTables(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	userClient := New(srv.URL, anonKey)
	user := signUp(t, userClient, "user@example.com")

	admin := New(srv.URL, anonKey)
	signUp(t, admin, "admin@example.com")

	profiles, err := admin.ListProfiles(ctx, ProfileFilter{ExcludeRole: model.RoleAdmin, Limit: 50})
	if err != nil || len(profiles) != 1 {
		t.Fatalf("ListProfiles() = %d, %v", len(profiles), err)
	}

	post, err := admin.InsertPost(ctx, PostFields{Title: "Sleep Hygiene", Content: "<p>rest</p>", Status: model.PostPublished, ReadTime: 4})
	if err != nil {
		t.Fatalf("InsertPost() error = %v", err)
	}
	if post.Slug != "sleep-hygiene" {
		t.Errorf("slug = %q", post.Slug)
	}
	post, err = admin.UpdatePost(ctx, post.ID, PostFields{Title: "Sleep Hygiene", Content: "<p>rest more</p>", Status: model.PostDraft, ReadTime: 5})
	if err != nil || post.Status != model.PostDraft || post.ReadTime != 5 {
		t.Fatalf("UpdatePost() = %+v, %v", post, err)
	}
	if _, err := userClient.GetPost(ctx, post.ID); !IsNotFound(err) {
		t.Errorf("user GetPost(draft) error = %v, want not found", err)
	}

	overview, err := admin.AdminOverview(ctx, time.Now().Add(-time.Hour))
	if err != nil || overview.TotalUsers != 1 {
		t.Errorf("AdminOverview() = %+v, %v", overview, err)
	}

	if err := admin.DeletePost(ctx, post.ID); err != nil {
		t.Errorf("DeletePost() error = %v", err)
	}
	if err := admin.DeleteUser(ctx, user.ID); err != nil {
		t.Errorf("DeleteUser() error = %v", err)
	}
}

func TestClient_NoSession(t *testing.T) {
	c := New("http://127.0.0.1:1", anonKey)
	_, err := c.GetUser(context.Background())
	if !IsUnauthorized(err) {
		t.Errorf("GetUser() without session error = %v, want unauthorized", err)
	}
}

func TestClient_TransportErrorIsNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New("http://"+addr, anonKey)
	_, err = c.SignInWithPassword(context.Background(), "a@b.co", "secret123")
	if err == nil {
		t.Fatal("expected an error from a closed port")
	}
	if !apperr.IsNetwork(err) {
		t.Errorf("IsNetwork(%v) = false", err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		t.Errorf("transport failure surfaced as *Error: %v", apiErr)
	}
}

func TestErrorHelpers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.ResetPasswordForEmail(context.Background(), "a@b.co", "")
	if !IsServerError(err) {
		t.Fatalf("error = %v, want server error", err)
	}
	if err.Error() != "down" {
		t.Errorf("message = %q, want %q", err.Error(), "down")
	}
	if IsDuplicate(err) || IsNotFound(err) || IsUnauthorized(err) {
		t.Error("server error matched another class")
	}
}

func TestOAuthURL(t *testing.T) {
	c := New("http://api.test/", anonKey)
	got := c.OAuthURL("google", "http://app.test/dashboard")
	want := "http://api.test/auth/v1/authorize?provider=google&redirect_to=http%3A%2F%2Fapp.test%2Fdashboard"
	if got != want {
		t.Errorf("OAuthURL() = %q, want %q", got, want)
	}
}
