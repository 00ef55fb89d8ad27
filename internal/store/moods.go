package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"mentalhealth-ai.bd/companion/internal/model"
)

// UpsertMood writes the entry for (UserID, Date), replacing the mood of an
// existing one. The unique index makes concurrent upserts converge on one row.
func (s *Store) UpsertMood(e *model.MoodEntry) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := s.exec(`INSERT INTO mood_entries (id, user_id, date, mood, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id, date) DO UPDATE SET mood = excluded.mood, updated_at = excluded.updated_at`,
		e.ID, e.UserID, e.Date, e.Mood, e.CreatedAt.UTC(), e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert mood entry: %w", translate(err))
	}

	stored, err := s.ListMoods(e.UserID, e.Date)
	if err != nil {
		return err
	}
	if len(stored) == 1 {
		*e = stored[0]
	}
	return nil
}

// ListMoods returns a user's entries, newest date first. An empty date lists all.
func (s *Store) ListMoods(userID, date string) ([]model.MoodEntry, error) {
	var sb strings.Builder
	args := []any{userID}
	sb.WriteString("SELECT id, user_id, date, mood, created_at, updated_at FROM mood_entries WHERE user_id = ?")
	if date != "" {
		sb.WriteString(" AND date = ?")
		args = append(args, date)
	}
	sb.WriteString(" ORDER BY date DESC")

	rows, err := s.query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	entries := []model.MoodEntry{}
	for rows.Next() {
		var e model.MoodEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Date, &e.Mood, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mood entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
