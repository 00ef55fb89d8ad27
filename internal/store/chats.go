package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"mentalhealth-ai.bd/companion/internal/model"
)

func (s *Store) InsertChatMessage(m *model.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	stmt, err := s.db.Prepare(s.rebind("INSERT INTO chat_messages (id, user_id, session_id, message, response, created_at) VALUES (?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare chat message insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(m.ID, m.UserID, m.SessionID, m.Message, m.Response, m.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to execute chat message insert: %w", translate(err))
	}
	return nil
}

// ChatQuery filters ListChatMessages. WithAuthor joins the author's profile.
type ChatQuery struct {
	UserID     string
	Limit      int
	WithAuthor bool
}

// ListChatMessages returns messages newest first.
func (s *Store) ListChatMessages(q ChatQuery) ([]model.ChatMessage, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT c.id, c.user_id, c.session_id, c.message, c.response, c.created_at, p.full_name, p.email" +
		" FROM chat_messages c LEFT JOIN user_profiles p ON p.id = c.user_id")
	if q.UserID != "" {
		sb.WriteString(" WHERE c.user_id = ?")
		args = append(args, q.UserID)
	}
	sb.WriteString(" ORDER BY c.created_at DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		var name, email sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Message, &m.Response, &m.CreatedAt, &name, &email); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if q.WithAuthor && (name.Valid || email.Valid) {
			m.Author = &model.ProfileRef{FullName: name.String, Email: email.String}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Overview counts non-admin users, chats and published posts; "today" starts at since.
func (s *Store) Overview(since time.Time) (*model.Overview, error) {
	var o model.Overview
	since = since.UTC()
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&o.TotalUsers, "SELECT COUNT(*) FROM user_profiles WHERE role <> ?", []any{model.RoleAdmin}},
		{&o.TodayUsers, "SELECT COUNT(*) FROM user_profiles WHERE role <> ? AND created_at >= ?", []any{model.RoleAdmin, since}},
		{&o.TotalChats, "SELECT COUNT(*) FROM chat_messages", nil},
		{&o.TodayChats, "SELECT COUNT(*) FROM chat_messages WHERE created_at >= ?", []any{since}},
		{&o.PublishedPosts, "SELECT COUNT(*) FROM blog_posts WHERE status = ?", []any{model.PostPublished}},
	}
	for _, c := range counts {
		if err := s.queryRow(c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	return &o, nil
}
