package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/retry"
	"mentalhealth-ai.bd/companion/internal/utils"
)

const (
	minNameRunes     = 2
	minPasswordRunes = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthBackend is the part of the backend SDK the session orchestrator uses.
type AuthBackend interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error)
	SignOut(ctx context.Context) error
	GetUser(ctx context.Context) (*model.AuthUser, error)
	Session() *model.AuthSession
	SetSession(s *model.AuthSession)
	Restore(s *model.AuthSession)
	OAuthURL(provider, redirectTo string) string
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, password string) (*model.AuthUser, error)
	OnAuthStateChange(fn func(backend.AuthEvent)) func()
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	InsertProfile(ctx context.Context, fullName string) (*model.UserProfile, error)
}

// LocalStore is the client's persistent key/value storage.
type LocalStore interface {
	GetJSON(key string, v any) (bool, error)
	GetString(key string) string
	Set(key string, v any) error
	Remove(keys ...string) error
	Update(key string, fn func(current json.RawMessage) (any, error)) error
}

type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateAuthenticated
	StateAnonymous
	StateInitFailed
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateInitFailed:
		return "initialization_failed"
	}
	return "uninitialized"
}

// Session is the signed-in user as the client sees it.
type Session struct {
	User        *model.AuthUser
	AccessToken string
	IsAdmin     bool
}

type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is delivered at least once per transition. Consumers must
// tolerate repeats.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}

// userMirror is the session summary kept in local storage for other pages.
type userMirror struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	LoginTime time.Time `json:"loginTime"`
}

type SessionConfig struct {
	// AppURL is the client's public origin, used for e-mail and OAuth redirects.
	AppURL       string
	InitPolicy   retry.Policy
	SignInPolicy retry.Policy
}

// DefaultSessionConfig retries session restore 3 times 500ms apart (linear)
// and sign-in 3 times 300ms apart.
func DefaultSessionConfig(appURL string) SessionConfig {
	return SessionConfig{
		AppURL:       strings.TrimRight(appURL, "/"),
		InitPolicy:   retry.Policy{MaxAttempts: 3, Backoff: retry.Linear(500 * time.Millisecond), Retryable: transient},
		SignInPolicy: retry.Policy{MaxAttempts: 3, Backoff: retry.Linear(300 * time.Millisecond), Retryable: transient},
	}
}

// transient reports failures worth another attempt.
func transient(err error) bool {
	return apperr.IsNetwork(err) || backend.IsServerError(err)
}

// SessionManager owns the authentication state of the client.
type SessionManager struct {
	backend AuthBackend
	local   LocalStore
	nav     Navigator
	cfg     SessionConfig
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	state       SessionState
	initDone    chan struct{}
	initErr     error
	current     *Session
	subscribers map[int]func(SessionEvent)
	nextSubID   int

	stopListening func()
}

func NewSessionManager(b AuthBackend, local LocalStore, nav Navigator, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &SessionManager{
		backend:     b,
		local:       local,
		nav:         nav,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		subscribers: map[int]func(SessionEvent){},
	}
	m.stopListening = b.OnAuthStateChange(m.onAuthEvent)
	return m
}

// Close detaches from the backend's auth notifications.
func (m *SessionManager) Close() {
	if m.stopListening != nil {
		m.stopListening()
	}
}

func (m *SessionManager) onAuthEvent(ev backend.AuthEvent) {
	switch ev.Kind {
	case backend.EventSignedIn:
		if ev.Session != nil && ev.Session.User != nil {
			m.apply(context.Background(), ev.Session)
		}
	case backend.EventSignedOut, backend.EventTokenInvalid:
		m.clear(true)
	}
}

// Subscribe registers fn for session transitions and returns its removal.
func (m *SessionManager) Subscribe(fn func(SessionEvent)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *SessionManager) publish(ev SessionEvent) {
	m.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the active session, or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Initialize restores a persisted session once. Concurrent and later callers
// share the first outcome; a failed initialization stays failed.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if done := m.initDone; done != nil {
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.initErr
	}
	done := make(chan struct{})
	m.initDone = done
	m.state = StateInitializing
	m.mu.Unlock()

	err := m.restore(ctx)

	m.mu.Lock()
	m.initErr = err
	switch {
	case err != nil:
		m.state = StateInitFailed
	case m.current != nil:
		m.state = StateAuthenticated
	default:
		m.state = StateAnonymous
	}
	close(done)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("session initialization failed", slog.Any("error", err))
	}
	return err
}

func (m *SessionManager) restore(ctx context.Context) error {
	sess := m.backend.Session()
	if sess == nil && m.local.GetString(localstore.KeyRememberMe) == "true" {
		var stored model.AuthSession
		if ok, err := m.local.GetJSON(localstore.KeySession, &stored); err != nil {
			m.logger.Warn("discarding unreadable stored session", slog.Any("error", err))
		} else if ok && stored.AccessToken != "" {
			sess = &stored
		}
	}
	if sess == nil {
		if err := m.local.Remove(localstore.KeyUser); err != nil {
			m.logger.Warn("failed to clear session mirror", slog.Any("error", err))
		}
		return nil
	}

	m.backend.Restore(sess)
	var user *model.AuthUser
	err := m.cfg.InitPolicy.Do(ctx, func(ctx context.Context) error {
		u, err := m.backend.GetUser(ctx)
		user = u
		return err
	})
	if err != nil {
		if backend.IsUnauthorized(err) {
			m.logger.Info("stored session is no longer valid")
			m.clear(false)
			return nil
		}
		return fmt.Errorf("%w: %w", apperr.ErrInitializationFailed, err)
	}

	restored := *sess
	restored.User = user
	m.backend.SetSession(&restored)
	m.apply(ctx, &restored)
	return nil
}

// apply adopts a session. Applying the same user and token again is a no-op,
// so the mirror write and redirect happen once per transition.
func (m *SessionManager) apply(ctx context.Context, s *model.AuthSession) *Session {
	if cur := m.sameSession(s); cur != nil {
		return cur
	}

	isAdmin := m.resolveRole(ctx, s.User.ID, true)

	m.mu.Lock()
	if m.current != nil && m.current.User.ID == s.User.ID && m.current.AccessToken == s.AccessToken {
		cur := *m.current
		m.mu.Unlock()
		return &cur
	}
	m.current = &Session{User: s.User, AccessToken: s.AccessToken, IsAdmin: isAdmin}
	if m.state != StateInitializing {
		m.state = StateAuthenticated
	}
	applied := *m.current
	m.mu.Unlock()

	mirror := userMirror{ID: s.User.ID, Email: s.User.Email, Name: s.User.FullName(), LoginTime: m.now().UTC()}
	if err := m.local.Set(localstore.KeyUser, mirror); err != nil {
		m.logger.Warn("failed to write session mirror", slog.Any("error", err))
	}
	if m.local.GetString(localstore.KeyRememberMe) == "true" {
		if err := m.local.Set(localstore.KeySession, s); err != nil {
			m.logger.Warn("failed to persist session", slog.Any("error", err))
		}
	}

	m.logger.Info("session applied", slog.String("user_id", s.User.ID), slog.Bool("admin", isAdmin))
	m.publish(SessionEvent{Kind: SessionSignedIn, Session: &applied})

	if m.nav != nil {
		if cur := m.nav.Current(); cur != nil && isAuthPage(cur.Path) {
			m.nav.Go(destination(isAdmin, cur))
		}
	}
	return &applied
}

func (m *SessionManager) sameSession(s *model.AuthSession) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.User.ID == s.User.ID && m.current.AccessToken == s.AccessToken {
		cur := *m.current
		return &cur
	}
	return nil
}

// clear drops the session. With navigate set, a user on a protected page is
// sent to sign in and brought back afterwards.
func (m *SessionManager) clear(navigate bool) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	if m.state == StateAuthenticated {
		m.state = StateAnonymous
	}
	m.mu.Unlock()

	if err := m.local.Remove(localstore.KeyUser, localstore.KeySession); err != nil {
		m.logger.Warn("failed to clear session mirror", slog.Any("error", err))
	}
	if prev == nil {
		return
	}
	m.publish(SessionEvent{Kind: SessionSignedOut})
	if path := currentPath(m.nav); navigate && isProtected(path) {
		m.nav.Go(loginURL(path))
	}
}

type SignUpInput struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
	AgeAttestation  bool
	TermsAcceptance bool
}

// Validate checks the form in display order and reports the first problem.
func (in SignUpInput) Validate() error {
	switch {
	case utils.RuneLen(strings.TrimSpace(in.FullName)) < minNameRunes:
		return apperr.Invalid("full_name", apperr.MsgNameTooShort)
	case !emailPattern.MatchString(strings.TrimSpace(in.Email)):
		return apperr.Invalid("email", apperr.MsgInvalidEmail)
	case utils.RuneLen(in.Password) < minPasswordRunes:
		return apperr.Invalid("password", apperr.MsgPasswordTooShort)
	case in.Password != in.ConfirmPassword:
		return apperr.Invalid("confirm_password", apperr.MsgPasswordMismatch)
	case !in.AgeAttestation:
		return apperr.Invalid("age_verification", apperr.MsgAgeRequired)
	case !in.TermsAcceptance:
		return apperr.Invalid("terms_agreement", apperr.MsgTermsRequired)
	}
	return nil
}

type SignUpResult struct {
	User *model.AuthUser
	// NeedsConfirmation is set when the address must be confirmed before sign-in.
	NeedsConfirmation bool
}

func (m *SessionManager) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.FullName)
	metadata := map[string]any{
		"full_name":      name,
		"age_verified":   true,
		"terms_accepted": true,
		"signup_date":    m.now().UTC().Format(time.RFC3339),
	}
	res, err := m.backend.SignUp(ctx, strings.TrimSpace(in.Email), in.Password, metadata)
	if err != nil {
		return nil, normalizeAuthError(err)
	}

	if res.Session != nil {
		m.ensureProfile(ctx, name)
	}
	return &SignUpResult{User: res.User, NeedsConfirmation: res.Session == nil}, nil
}

// ensureProfile creates the caller's profile. An existing one is fine.
func (m *SessionManager) ensureProfile(ctx context.Context, fullName string) {
	if _, err := m.backend.InsertProfile(ctx, fullName); err != nil && !backend.IsDuplicate(err) {
		m.logger.Error("failed to create user profile", slog.Any("error", err))
	}
}

func (m *SessionManager) SignIn(ctx context.Context, email, password string, rememberMe bool) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("credentials", apperr.MsgCredentialsNeeded)
	}

	var sess *model.AuthSession
	err := m.cfg.SignInPolicy.Do(ctx, func(ctx context.Context) error {
		s, err := m.backend.SignInWithPassword(ctx, email, password)
		sess = s
		return err
	})
	if err != nil {
		m.logger.Info("sign-in failed", slog.Any("error", err))
		return nil, normalizeAuthError(err)
	}

	if rememberMe {
		if err := m.local.Set(localstore.KeyRememberMe, "true"); err != nil {
			m.logger.Warn("failed to persist remember-me", slog.Any("error", err))
		}
		if err := m.local.Set(localstore.KeySession, sess); err != nil {
			m.logger.Warn("failed to persist session", slog.Any("error", err))
		}
	} else if err := m.local.Remove(localstore.KeyRememberMe, localstore.KeySession); err != nil {
		m.logger.Warn("failed to clear remember-me", slog.Any("error", err))
	}

	return m.apply(ctx, sess), nil
}

// AdoptToken signs in with an access token obtained out of band, such as the
// fragment of an OAuth redirect.
func (m *SessionManager) AdoptToken(ctx context.Context, accessToken string) (*Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, apperr.Invalid("access_token", apperr.MsgCredentialsNeeded)
	}
	sess := &model.AuthSession{AccessToken: accessToken, TokenType: "bearer"}
	m.backend.Restore(sess)
	user, err := m.backend.GetUser(ctx)
	if err != nil {
		return nil, normalizeAuthError(err)
	}
	sess.User = user
	m.backend.SetSession(sess)
	return m.apply(ctx, sess), nil
}

// SignOut ends the session locally even when the backend cannot be reached.
func (m *SessionManager) SignOut(ctx context.Context) {
	if err := m.backend.SignOut(ctx); err != nil {
		m.logger.Warn("backend sign-out failed", slog.Any("error", err))
	}
	if err := m.local.Remove(localstore.KeyRememberMe); err != nil {
		m.logger.Warn("failed to clear remember-me", slog.Any("error", err))
	}
	m.clear(true)
}

// RequireSession gates a page on a signed-in user.
func (m *SessionManager) RequireSession(ctx context.Context) (*Session, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	if cur := m.Current(); cur != nil {
		return cur, nil
	}
	if m.nav != nil {
		m.nav.Go(loginURL(currentPath(m.nav)))
	}
	return nil, apperr.ErrNotAuthenticated
}

// ResolveRole reports whether userID has the admin role. Any failure answers
// false.
func (m *SessionManager) ResolveRole(ctx context.Context, userID string) bool {
	cur := m.Current()
	return m.resolveRole(ctx, userID, cur != nil && cur.User.ID == userID)
}

func (m *SessionManager) resolveRole(ctx context.Context, userID string, own bool) (admin bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("role lookup panicked", slog.Any("panic", r))
			admin = false
		}
	}()

	profile, err := m.backend.GetProfile(ctx, userID)
	if err != nil && backend.IsNotFound(err) && own {
		// Profiles of users who signed up before confirming are created here.
		m.ensureProfile(ctx, "")
		profile, err = m.backend.GetProfile(ctx, userID)
	}
	if err != nil {
		m.logger.Warn("role lookup failed", slog.String("user_id", userID), slog.Any("error", err))
		return false
	}
	return profile.IsAdmin()
}

func (m *SessionManager) markAdmin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.User.ID == userID {
		m.current.IsAdmin = true
	}
}

// ResetPassword mails a recovery link that returns to the reset page.
func (m *SessionManager) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return apperr.Invalid("email", apperr.MsgInvalidEmail)
	}
	if err := m.backend.ResetPasswordForEmail(ctx, email, m.cfg.AppURL+PathResetPassword); err != nil {
		return normalizeAuthError(err)
	}
	return nil
}

// OAuthURL is where to send the user to sign in with provider.
func (m *SessionManager) OAuthURL(provider string) string {
	return m.backend.OAuthURL(provider, m.cfg.AppURL+PathAuthCallback)
}

func (m *SessionManager) ChangePassword(ctx context.Context, password, confirm string) error {
	switch {
	case utils.RuneLen(password) < minPasswordRunes:
		return apperr.Invalid("password", apperr.MsgPasswordTooShort)
	case password != confirm:
		return apperr.Invalid("confirm_password", apperr.MsgPasswordMismatch)
	}
	if m.Current() == nil {
		return apperr.ErrNotAuthenticated
	}
	if _, err := m.backend.UpdatePassword(ctx, password); err != nil {
		return apperr.Backend("update password", err)
	}
	return nil
}

var authMessages = map[string]string{
	"password should be at least 6 characters":         apperr.MsgPasswordTooShort,
	"unable to validate email address: invalid format": apperr.MsgInvalidEmail,
	"invalid email":                                    apperr.MsgInvalidEmail,
}

// normalizeAuthError classifies a backend failure by its text, the only
// signal the service guarantees.
func normalizeAuthError(err error) *apperr.AuthError {
	text := strings.ToLower(err.Error())
	var be *backend.Error
	isBackend := errors.As(err, &be)

	switch {
	case !isBackend && apperr.IsNetwork(err):
		return &apperr.AuthError{Reason: apperr.ReasonNetwork, Message: apperr.MsgNetwork, Err: err}
	case strings.Contains(text, "invalid login credentials"):
		return &apperr.AuthError{Reason: apperr.ReasonInvalidCredentials, Message: apperr.MsgInvalidCredentials, Err: err}
	case strings.Contains(text, "email not confirmed"):
		return &apperr.AuthError{Reason: apperr.ReasonUnconfirmedEmail, Message: apperr.MsgEmailNotConfirmed, Err: err}
	case strings.Contains(text, "already registered"):
		return &apperr.AuthError{Reason: apperr.ReasonAlreadyRegistered, Message: apperr.MsgAlreadyRegistered, Err: err}
	case (isBackend && be.Status == http.StatusTooManyRequests) ||
		strings.Contains(text, "rate limit") || strings.Contains(text, "too many"):
		return &apperr.AuthError{Reason: apperr.ReasonRateLimited, Message: apperr.MsgRateLimited, Err: err}
	}

	msg := apperr.MsgAuthUnknown
	if isBackend {
		if m, ok := authMessages[strings.ToLower(be.Message)]; ok {
			msg = m
		}
	}
	return &apperr.AuthError{Reason: apperr.ReasonUnknown, Message: msg, Err: err}
}
