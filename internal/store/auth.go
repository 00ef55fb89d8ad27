package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentalhealth-ai.bd/companion/internal/model"
)

// StoredSession is a server-side session row. Access tokens reference it by ID,
// so deleting the row revokes the token.
type StoredSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

const authUserColumns = "id, email, password_hash, provider, user_metadata, email_confirmed_at, last_sign_in_at, created_at"

func scanAuthUser(row interface{ Scan(...any) error }) (*model.AuthUser, string, error) {
	var u model.AuthUser
	var hash, metadata string
	var confirmed, lastSignIn sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &hash, &u.Provider, &metadata, &confirmed, &lastSignIn, &u.CreatedAt); err != nil {
		return nil, "", err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &u.UserMetadata); err != nil {
			return nil, "", fmt.Errorf("failed to decode user metadata: %w", err)
		}
	}
	if confirmed.Valid {
		t := confirmed.Time
		u.EmailConfirmedAt = &t
	}
	if lastSignIn.Valid {
		t := lastSignIn.Time
		u.LastSignInAt = &t
	}
	return &u, hash, nil
}

// CreateAuthUser inserts a new identity. Emails are stored lowercased.
func (s *Store) CreateAuthUser(u *model.AuthUser, passwordHash string) error {
	metadata, err := json.Marshal(u.UserMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode user metadata: %w", err)
	}
	if u.UserMetadata == nil {
		metadata = []byte("{}")
	}
	if u.Provider == "" {
		u.Provider = "email"
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	var confirmed any
	if u.EmailConfirmedAt != nil {
		confirmed = u.EmailConfirmedAt.UTC()
	}
	_, err = s.exec("INSERT INTO auth_users ("+authUserColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, passwordHash, u.Provider, string(metadata), confirmed, nil, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert auth user: %w", translate(err))
	}
	return nil
}

// GetAuthUserByEmail returns the user and password hash, or nil when unknown.
func (s *Store) GetAuthUserByEmail(email string) (*model.AuthUser, string, error) {
	u, hash, err := scanAuthUser(s.queryRow("SELECT "+authUserColumns+" FROM auth_users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to query auth user: %w", err)
	}
	return u, hash, nil
}

func (s *Store) GetAuthUserByID(id string) (*model.AuthUser, error) {
	u, _, err := scanAuthUser(s.queryRow("SELECT "+authUserColumns+" FROM auth_users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query auth user: %w", err)
	}
	return u, nil
}

func (s *Store) ConfirmEmail(userID string, at time.Time) error {
	return s.updateOne("UPDATE auth_users SET email_confirmed_at = COALESCE(email_confirmed_at, ?) WHERE id = ?",
		at.UTC(), userID)
}

func (s *Store) TouchLastSignIn(userID string, at time.Time) error {
	return s.updateOne("UPDATE auth_users SET last_sign_in_at = ? WHERE id = ?", at.UTC(), userID)
}

func (s *Store) UpdatePasswordHash(userID, hash string) error {
	return s.updateOne("UPDATE auth_users SET password_hash = ? WHERE id = ?", hash, userID)
}

func (s *Store) CreateSession(sess StoredSession) error {
	_, err := s.exec("INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", translate(err))
	}
	return nil
}

// GetSession returns nil when the session was revoked or never existed.
func (s *Store) GetSession(id string) (*StoredSession, error) {
	var sess StoredSession
	err := s.queryRow("SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?", id).
		Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(id string) error {
	if _, err := s.exec("DELETE FROM auth_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and reports how many.
func (s *Store) DeleteExpiredSessions(now time.Time) (int64, error) {
	res, err := s.exec("DELETE FROM auth_sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) updateOne(query string, args ...any) error {
	res, err := s.exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
