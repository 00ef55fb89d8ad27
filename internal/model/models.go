// Package model holds the records exchanged between the backend server and its clients.
package model

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AuthUser is an identity known to the auth service.
type AuthUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	Provider         string         `json:"provider,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// FullName returns the display name from metadata, or the local part of the email.
func (u *AuthUser) FullName() string {
	if u == nil {
		return ""
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// AuthSession is an issued access token and its owner.
type AuthSession struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   int64     `json:"expires_at"`
	User        *AuthUser `json:"user"`
}

// UserProfile is the application-level record of a user. Role is "admin" or "user".
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *UserProfile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// ProfileRef is the author summary joined onto chat rows.
type ProfileRef struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// ChatMessage is one persisted exchange: the user's text and the model's reply.
type ChatMessage struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	Response  string      `json:"response"`
	CreatedAt time.Time   `json:"created_at"`
	Author    *ProfileRef `json:"user_profiles,omitempty"`
}

// MoodEntry is unique per (UserID, Date). Date is YYYY-MM-DD in the user's calendar.
type MoodEntry struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	PostDraft     = "draft"
	PostPublished = "published"
)

// BlogPost is an admin-authored article.
type BlogPost struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Category      string    `json:"category"`
	Status        string    `json:"status"`
	ReadTime      int       `json:"read_time"`
	Excerpt       string    `json:"excerpt"`
	FeaturedImage string    `json:"featured_image"`
	Content       string    `json:"content"`
	Author        string    `json:"author"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidPostStatus reports whether s is draft or published.
func ValidPostStatus(s string) bool {
	return s == PostDraft || s == PostPublished
}

// Overview holds the admin dashboard counters.
type Overview struct {
	TotalUsers     int `json:"total_users"`
	TodayUsers     int `json:"today_users"`
	TotalChats     int `json:"total_chats"`
	TodayChats     int `json:"today_chats"`
	PublishedPosts int `json:"published_posts"`
}
