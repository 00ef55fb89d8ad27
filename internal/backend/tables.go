package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mentalhealth-ai.bd/companion/internal/model"
)

func limitValue(q url.Values, n int) {
	if n > 0 {
		q.Set("limit", strconv.Itoa(n))
	}
}

// --- user_profiles ---

// GetProfile returns an error satisfying IsNotFound when the profile is missing.
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var out model.UserProfile
	err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/user_profiles/" + url.PathEscape(userID), auth: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertProfile creates the caller's profile. The service fills id, email and role.
func (c *Client) InsertProfile(ctx context.Context, fullName string) (*model.UserProfile, error) {
	var out model.UserProfile
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/user_profiles",
		body:   map[string]string{"full_name": fullName},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type ProfileFilter struct {
	ExcludeRole string
	Limit       int
}

func (c *Client) ListProfiles(ctx context.Context, f ProfileFilter) ([]model.UserProfile, error) {
	q := url.Values{}
	if f.ExcludeRole != "" {
		q.Set("exclude_role", f.ExcludeRole)
	}
	limitValue(q, f.Limit)
	var out []model.UserProfile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/user_profiles", query: q, auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes a user and all their rows. Admin only.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/rest/v1/user_profiles/" + url.PathEscape(userID), auth: true}, nil)
}

// --- chat_messages ---

func (c *Client) InsertChatMessage(ctx context.Context, sessionID, message, response string) (*model.ChatMessage, error) {
	var out model.ChatMessage
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/chat_messages",
		body:   map[string]string{"session_id": sessionID, "message": message, "response": response},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatFilter narrows ListChatMessages. An empty UserID means the caller's
// rows, or every row for admins.
type ChatFilter struct {
	UserID     string
	Limit      int
	WithAuthor bool
}

func (c *Client) ListChatMessages(ctx context.Context, f ChatFilter) ([]model.ChatMessage, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}
	if f.WithAuthor {
		q.Set("select", "*,user_profiles(full_name,email)")
	}
	limitValue(q, f.Limit)
	var out []model.ChatMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/chat_messages", query: q, auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- mood_entries ---

// UpsertMood writes the caller's mood for date (YYYY-MM-DD).
func (c *Client) UpsertMood(ctx context.Context, date, mood string) (*model.MoodEntry, error) {
	var out model.MoodEntry
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/rest/v1/mood_entries",
		body:   map[string]string{"date": date, "mood": mood},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMoods lists userID's entries; an empty date means all days.
func (c *Client) ListMoods(ctx context.Context, userID, date string) ([]model.MoodEntry, error) {
	q := url.Values{"user_id": {userID}}
	if date != "" {
		q.Set("date", date)
	}
	var out []model.MoodEntry
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/mood_entries", query: q, auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- blog_posts ---

// PostFields is the editable part of a blog post.
type PostFields struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	Status        string `json:"status"`
	ReadTime      int    `json:"read_time"`
	Excerpt       string `json:"excerpt"`
	FeaturedImage string `json:"featured_image"`
	Content       string `json:"content"`
}

type PostFilter struct {
	Status string
	Limit  int
}

func (c *Client) ListPosts(ctx context.Context, f PostFilter) ([]model.BlogPost, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	limitValue(q, f.Limit)
	var out []model.BlogPost
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/blog_posts", query: q, auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (*model.BlogPost, error) {
	var out model.BlogPost
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/blog_posts/" + url.PathEscape(id), auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) InsertPost(ctx context.Context, p PostFields) (*model.BlogPost, error) {
	var out model.BlogPost
	if err := c.do(ctx, request{method: http.MethodPost, path: "/rest/v1/blog_posts", body: p, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, id string, p PostFields) (*model.BlogPost, error) {
	var out model.BlogPost
	if err := c.do(ctx, request{method: http.MethodPatch, path: "/rest/v1/blog_posts/" + url.PathEscape(id), body: p, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/rest/v1/blog_posts/" + url.PathEscape(id), auth: true}, nil)
}

// AdminOverview returns dashboard counters, counting "today" from since.
func (c *Client) AdminOverview(ctx context.Context, since time.Time) (*model.Overview, error) {
	var out model.Overview
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/admin_overview",
		body:   map[string]time.Time{"since": since},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
