package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/store"
)

// Error texts are part of the wire contract: clients classify failures by them.
var (
	ErrInvalidCredentials    = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed     = errors.New("Email not confirmed")
	ErrUserAlreadyRegistered = errors.New("User already registered")
	ErrWeakPassword          = errors.New("Password should be at least 6 characters")
	ErrInvalidEmail          = errors.New("Unable to validate email address: invalid format")
	ErrSessionNotFound       = errors.New("Session not found")
	ErrUserNotFound          = errors.New("User not found")
	ErrProviderDisabled      = errors.New("Unsupported provider: provider is not enabled")
)

const (
	MinPasswordLength = 6
	confirmTokenTTL   = 24 * time.Hour
	recoveryTokenTTL  = time.Hour
	oauthStateTTL     = 10 * time.Minute
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	CreateAuthUser(u *model.AuthUser, passwordHash string) error
	GetAuthUserByEmail(email string) (*model.AuthUser, string, error)
	GetAuthUserByID(id string) (*model.AuthUser, error)
	ConfirmEmail(userID string, at time.Time) error
	TouchLastSignIn(userID string, at time.Time) error
	UpdatePasswordHash(userID, hash string) error
	CreateSession(sess store.StoredSession) error
	GetSession(id string) (*store.StoredSession, error)
	DeleteSession(id string) error
}

// Mailer delivers confirmation and recovery links.
type Mailer interface {
	SendLink(ctx context.Context, to, kind, link string) error
}

// LogMailer writes links to the log. Used when no mail transport is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendLink(ctx context.Context, to, kind, link string) error {
	l := m.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("auth link issued", slog.String("to", to), slog.String("kind", kind), slog.String("link", link))
	return nil
}

type ServiceConfig struct {
	SessionTTL  time.Duration
	AutoConfirm bool
	AdminEmails []string
	PublicURL   string
}

// Service implements sign-up, password sign-in, sessions, e-mail confirmation,
// password recovery and OAuth sign-in.
type Service struct {
	store  UserStore
	tokens *TokenIssuer
	cfg    ServiceConfig
	mailer Mailer
	oauth  map[string]OAuthProvider
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st UserStore, tokens *TokenIssuer, cfg ServiceConfig, mailer Mailer, logger *slog.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Service{
		store:  st,
		tokens: tokens,
		cfg:    cfg,
		mailer: mailer,
		oauth:  map[string]OAuthProvider{},
		logger: logger,
		now:    time.Now,
	}
}

// RegisterProvider enables an OAuth provider under name (e.g. "google").
func (s *Service) RegisterProvider(name string, p OAuthProvider) {
	s.oauth[name] = p
}

// IsAdminEmail reports whether email is on the server-side admin allow-list.
func (s *Service) IsAdminEmail(email string) bool {
	return slices.Contains(s.cfg.AdminEmails, strings.ToLower(strings.TrimSpace(email)))
}

// SignUp creates an identity. The session is nil when e-mail confirmation is required.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.AuthUser, *model.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, nil, ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, nil, ErrWeakPassword
	}

	existing, _, err := s.store.GetAuthUserByEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrUserAlreadyRegistered
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now().UTC()
	user := &model.AuthUser{
		ID:           uuid.NewString(),
		Email:        email,
		CreatedAt:    now,
		Provider:     "email",
		UserMetadata: metadata,
	}
	if s.cfg.AutoConfirm {
		user.EmailConfirmedAt = &now
	}
	if err := s.store.CreateAuthUser(user, hash); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil, ErrUserAlreadyRegistered
		}
		return nil, nil, err
	}

	if !s.cfg.AutoConfirm {
		token, _, err := s.tokens.Issue(user.ID, confirmTokenTTL, Claims{Email: email, Purpose: PurposeConfirm})
		if err != nil {
			return nil, nil, err
		}
		link := s.verifyLink(token, "signup", "")
		if err := s.mailer.SendLink(ctx, email, "signup", link); err != nil {
			s.logger.Warn("failed to send confirmation link", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return user, nil, nil
	}

	session, err := s.newSession(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// SignIn checks a password and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.AuthSession, error) {
	user, hash, err := s.store.GetAuthUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPasswordHash(password, hash) {
		return nil, ErrInvalidCredentials
	}
	if user.EmailConfirmedAt == nil {
		return nil, ErrEmailNotConfirmed
	}

	now := s.now().UTC()
	if err := s.store.TouchLastSignIn(user.ID, now); err != nil {
		s.logger.Warn("failed to record sign-in time", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	user.LastSignInAt = &now
	return s.newSession(user)
}

// Authenticate resolves an access token to its user. Revoked or expired
// sessions fail even if the token itself has not expired.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.AuthUser, *Claims, error) {
	claims, err := s.tokens.Validate(accessToken, PurposeAccess)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.store.GetSession(claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || sess.UserID != claims.Subject || s.now().After(sess.ExpiresAt) {
		return nil, nil, ErrSessionNotFound
	}
	user, err := s.store.GetAuthUserByID(claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}
	return user, claims, nil
}

// SignOut revokes the session behind claims.
func (s *Service) SignOut(ctx context.Context, claims *Claims) error {
	return s.store.DeleteSession(claims.SessionID)
}

// Verify consumes a confirmation or recovery token. A recovery token opens a
// session so the user can set a new password. redirectTo echoes the link's target.
func (s *Service) Verify(ctx context.Context, token, kind string) (*model.AuthSession, string, error) {
	purpose := PurposeConfirm
	if kind == "recovery" {
		purpose = PurposeRecovery
	}
	claims, err := s.tokens.Validate(token, purpose)
	if err != nil {
		return nil, "", err
	}
	user, err := s.store.GetAuthUserByID(claims.Subject)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrUserNotFound
	}

	if purpose == PurposeConfirm {
		if err := s.store.ConfirmEmail(user.ID, s.now().UTC()); err != nil {
			return nil, "", err
		}
		return nil, claims.RedirectTo, nil
	}
	session, err := s.newSession(user)
	return session, claims.RedirectTo, err
}

// Recover sends a password recovery link. Unknown addresses succeed silently.
func (s *Service) Recover(ctx context.Context, email, redirectTo string) error {
	user, _, err := s.store.GetAuthUserByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.Info("recovery requested for unknown email")
		return nil
	}
	token, _, err := s.tokens.Issue(user.ID, recoveryTokenTTL, Claims{Email: user.Email, Purpose: PurposeRecovery, RedirectTo: redirectTo})
	if err != nil {
		return err
	}
	return s.mailer.SendLink(ctx, user.Email, "recovery", s.verifyLink(token, "recovery", redirectTo))
}

func (s *Service) UpdatePassword(ctx context.Context, userID, password string) (*model.AuthUser, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(userID, hash); err != nil {
		return nil, err
	}
	return s.store.GetAuthUserByID(userID)
}

// AuthorizeURL starts an OAuth sign-in with provider, returning to redirectTo.
func (s *Service) AuthorizeURL(provider, redirectTo string) (string, error) {
	p, ok := s.oauth[provider]
	if !ok {
		return "", ErrProviderDisabled
	}
	state, _, err := s.tokens.Issue(provider, oauthStateTTL, Claims{Purpose: PurposeOAuth, RedirectTo: redirectTo})
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// CompleteOAuth finishes the provider callback, creating the identity on first use.
func (s *Service) CompleteOAuth(ctx context.Context, code, state string) (*model.AuthSession, string, error) {
	claims, err := s.tokens.Validate(state, PurposeOAuth)
	if err != nil {
		return nil, "", err
	}
	p, ok := s.oauth[claims.Subject]
	if !ok {
		return nil, "", ErrProviderDisabled
	}
	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, "", err
	}

	user, _, err := s.store.GetAuthUserByEmail(info.Email)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		now := s.now().UTC()
		user = &model.AuthUser{
			ID:               uuid.NewString(),
			Email:            info.Email,
			CreatedAt:        now,
			EmailConfirmedAt: &now,
			Provider:         info.Provider,
			UserMetadata:     map[string]any{"full_name": info.Name},
		}
		if err := s.store.CreateAuthUser(user, ""); err != nil {
			return nil, "", err
		}
	} else if user.EmailConfirmedAt == nil {
		// The provider vouched for the address.
		if err := s.store.ConfirmEmail(user.ID, s.now().UTC()); err != nil {
			return nil, "", err
		}
	}

	session, err := s.newSession(user)
	return session, claims.RedirectTo, err
}

func (s *Service) newSession(user *model.AuthUser) (*model.AuthSession, error) {
	now := s.now()
	sess := store.StoredSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.CreateSession(sess); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Issue(user.ID, s.cfg.SessionTTL, Claims{Email: user.Email, SessionID: sess.ID, Purpose: PurposeAccess})
	if err != nil {
		return nil, err
	}
	return &model.AuthSession{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.SessionTTL.Seconds()),
		ExpiresAt:   expiresAt.Unix(),
		User:        user,
	}, nil
}

func (s *Service) verifyLink(token, kind, redirectTo string) string {
	q := url.Values{"token": {token}, "type": {kind}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/auth/v1/verify?" + q.Encode()
}
