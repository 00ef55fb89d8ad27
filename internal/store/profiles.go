package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentalhealth-ai.bd/companion/internal/model"
)

const profileColumns = "id, email, full_name, role, created_at, updated_at"

func scanProfile(row interface{ Scan(...any) error }) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns nil when the user has no profile yet.
func (s *Store) GetProfile(id string) (*model.UserProfile, error) {
	p, err := scanProfile(s.queryRow("SELECT "+profileColumns+" FROM user_profiles WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return p, nil
}

// InsertProfile fails with ErrDuplicate when the profile already exists.
func (s *Store) InsertProfile(p *model.UserProfile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Role == "" {
		p.Role = model.RoleUser
	}
	_, err := s.exec("INSERT INTO user_profiles ("+profileColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Email, p.FullName, p.Role, p.CreatedAt.UTC(), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", translate(err))
	}
	return nil
}

// ProfileQuery filters ListProfiles. Zero values mean no filter.
type ProfileQuery struct {
	ExcludeRole string
	Limit       int
}

// ListProfiles returns profiles newest first.
func (s *Store) ListProfiles(q ProfileQuery) ([]model.UserProfile, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT " + profileColumns + " FROM user_profiles")
	if q.ExcludeRole != "" {
		sb.WriteString(" WHERE role <> ?")
		args = append(args, q.ExcludeRole)
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.UserProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// SetRoleByEmail promotes or demotes the profile owned by email.
func (s *Store) SetRoleByEmail(email, role string) error {
	return s.updateOne("UPDATE user_profiles SET role = ?, updated_at = ? WHERE email = ?",
		role, time.Now().UTC(), strings.ToLower(strings.TrimSpace(email)))
}

// DeleteUser removes a user and everything they own.
func (s *Store) DeleteUser(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var found int64
	for _, q := range []string{
		"DELETE FROM chat_messages WHERE user_id = ?",
		"DELETE FROM mood_entries WHERE user_id = ?",
		"DELETE FROM auth_sessions WHERE user_id = ?",
		"DELETE FROM user_profiles WHERE id = ?",
		"DELETE FROM auth_users WHERE id = ?",
	} {
		res, err := tx.Exec(s.rebind(q), id)
		if err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
		n, _ := res.RowsAffected()
		if strings.Contains(q, "user_profiles") || strings.Contains(q, "auth_users") {
			found += n
		}
	}
	if found == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
