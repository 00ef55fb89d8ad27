package core

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

// fakeAuth mimics the backend SDK: it holds a session and notifies listeners
// the way *backend.Client does.
type fakeAuth struct {
	mu        sync.Mutex
	session   *model.AuthSession
	listeners map[int]func(backend.AuthEvent)
	nextID    int

	signUp        func(email, password string, metadata map[string]any) (*backend.SignUpResult, error)
	signIn        func(email, password string) (*model.AuthSession, error)
	getUser       func() (*model.AuthUser, error)
	getProfile    func(userID string) (*model.UserProfile, error)
	insertProfile func(fullName string) (*model.UserProfile, error)
	signOutErr    error

	getUserCalls  int
	insertCalls   int
	resetRedirect string
	newPassword   string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{listeners: map[int]func(backend.AuthEvent){}}
}

func (f *fakeAuth) emit(ev backend.AuthEvent) {
	f.mu.Lock()
	fns := make([]func(backend.AuthEvent), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeAuth) SignUp(_ context.Context, email, password string, metadata map[string]any) (*backend.SignUpResult, error) {
	res, err := f.signUp(email, password, metadata)
	if err == nil && res.Session != nil {
		f.SetSession(res.Session)
	}
	return res, err
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*model.AuthSession, error) {
	s, err := f.signIn(email, password)
	if err != nil {
		return nil, err
	}
	f.SetSession(s)
	return s, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	had := f.session != nil
	f.session = nil
	f.mu.Unlock()
	if had {
		f.emit(backend.AuthEvent{Kind: backend.EventSignedOut})
	}
	return f.signOutErr
}

func (f *fakeAuth) GetUser(context.Context) (*model.AuthUser, error) {
	f.mu.Lock()
	f.getUserCalls++
	f.mu.Unlock()
	return f.getUser()
}

func (f *fakeAuth) Session() *model.AuthSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeAuth) SetSession(s *model.AuthSession) {
	f.Restore(s)
	f.emit(backend.AuthEvent{Kind: backend.EventSignedIn, Session: s})
}

func (f *fakeAuth) Restore(s *model.AuthSession) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *fakeAuth) OAuthURL(provider, redirectTo string) string {
	return "http://api.test/auth/v1/authorize?" + url.Values{"provider": {provider}, "redirect_to": {redirectTo}}.Encode()
}

func (f *fakeAuth) ResetPasswordForEmail(_ context.Context, _, redirectTo string) error {
	f.resetRedirect = redirectTo
	return nil
}

func (f *fakeAuth) UpdatePassword(_ context.Context, password string) (*model.AuthUser, error) {
	f.newPassword = password
	return &model.AuthUser{}, nil
}

func (f *fakeAuth) OnAuthStateChange(fn func(backend.AuthEvent)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeAuth) GetProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	if f.getProfile == nil {
		return &model.UserProfile{ID: userID, Role: model.RoleUser}, nil
	}
	return f.getProfile(userID)
}

func (f *fakeAuth) InsertProfile(_ context.Context, fullName string) (*model.UserProfile, error) {
	f.mu.Lock()
	f.insertCalls++
	f.mu.Unlock()
	if f.insertProfile == nil {
		return &model.UserProfile{FullName: fullName}, nil
	}
	return f.insertProfile(fullName)
}

// fakeNav records every navigation.
type fakeNav struct {
	mu      sync.Mutex
	current *url.URL
	visits  []string
}

func newFakeNav(start string) *fakeNav {
	u, _ := url.Parse(start)
	return &fakeNav{current: u}
}

func (n *fakeNav) Current() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *fakeNav) Go(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, target)
	if u, err := url.Parse(target); err == nil {
		n.current = u
	}
}

func (n *fakeNav) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

func testUser(id, email string) *model.AuthUser {
	return &model.AuthUser{ID: id, Email: email, UserMetadata: map[string]any{"full_name": "Rahim Uddin"}}
}

func testSession(user *model.AuthUser, token string) *model.AuthSession {
	return &model.AuthSession{AccessToken: token, TokenType: "bearer", User: user}
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig("http://app.test/")
	cfg.InitPolicy.Sleep = noSleep
	cfg.SignInPolicy.Sleep = noSleep
	return cfg
}

type sessionFixture struct {
	auth  *fakeAuth
	local *localstore.Store
	nav   *fakeNav
	m     *SessionManager
}

func newSessionFixture(t *testing.T, start string) *sessionFixture {
	t.Helper()
	f := &sessionFixture{auth: newFakeAuth(), local: localstore.Open(""), nav: newFakeNav(start)}
	f.auth.getUser = func() (*model.AuthUser, error) { return nil, &backend.Error{Status: 401, Message: "unauthorized"} }
	f.m = NewSessionManager(f.auth, f.local, f.nav, testSessionConfig(), discardLogger())
	t.Cleanup(f.m.Close)
	return f
}

// signIn signs the fixture in as user, with the given profile role.
func (f *sessionFixture) signIn(t *testing.T, user *model.AuthUser, role string) *Session {
	t.Helper()
	f.auth.signIn = func(string, string) (*model.AuthSession, error) {
		return testSession(user, "token-"+user.ID), nil
	}
	f.auth.getUser = func() (*model.AuthUser, error) { return user, nil }
	f.auth.getProfile = func(id string) (*model.UserProfile, error) {
		return &model.UserProfile{ID: id, Email: user.Email, Role: role}, nil
	}
	s, err := f.m.SignIn(context.Background(), user.Email, "secret123", false)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	return s
}
