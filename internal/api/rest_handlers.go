package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/store"
	"mentalhealth-ai.bd/companion/internal/utils"
)

const maxListLimit = 500

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, maxListLimit)
}

// ownerParam resolves the user_id filter: callers may only name themselves
// unless they are admins. ok is false when the request must be refused.
func (h *APIHandler) ownerParam(r *http.Request) (userID string, ok bool) {
	p := principalFrom(r.Context())
	userID = r.URL.Query().Get("user_id")
	if userID == "" || userID == p.User.ID {
		return p.User.ID, true
	}
	return userID, h.isAdmin(r)
}

func (h *APIHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, CodeInternal, msg)
}

// --- user_profiles ---

func (h *APIHandler) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	profiles, err := h.data.ListProfiles(store.ProfileQuery{
		ExcludeRole: r.URL.Query().Get("exclude_role"),
		Limit:       limitParam(r),
	})
	if err != nil {
		h.internalError(w, "Failed to list profiles", err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r.Context())
	if id != p.User.ID && !h.isAdmin(r) {
		writeError(w, http.StatusNotFound, CodeNoRows, "Profile not found")
		return
	}
	profile, err := h.data.GetProfile(id)
	if err != nil {
		h.internalError(w, "Failed to get profile", err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, CodeNoRows, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type CreateProfileRequest struct {
	FullName string `json:"full_name"`
}

// CreateProfileHandler inserts the caller's own profile. Identity and role
// come from the token and the server's admin list, never from the body.
func (h *APIHandler) CreateProfileHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req CreateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	profile := &model.UserProfile{
		ID:       p.User.ID,
		Email:    p.User.Email,
		FullName: h.sanitizer.SanitizeText(req.FullName),
		Role:     model.RoleUser,
	}
	if profile.FullName == "" {
		profile.FullName = p.User.FullName()
	}
	if h.auth.IsAdminEmail(p.User.Email) {
		profile.Role = model.RoleAdmin
	}

	if err := h.data.InsertProfile(profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, CodeDuplicate, "Profile already exists")
			return
		}
		h.internalError(w, "Failed to create profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *APIHandler) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	id := chi.URLParam(r, "id")
	if id == principalFrom(r.Context()).User.ID {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Admins cannot delete themselves")
		return
	}
	if err := h.data.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNoRows, "User not found")
			return
		}
		h.internalError(w, "Failed to delete user", err)
		return
	}
	h.logger.Info("user deleted", slog.String("user_id", id), slog.String("by", principalFrom(r.Context()).User.ID))
	w.WriteHeader(http.StatusNoContent)
}

// --- chat_messages ---

func (h *APIHandler) ListChatMessagesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.ChatQuery{
		Limit:      limitParam(r),
		WithAuthor: strings.Contains(q.Get("select"), "user_profiles"),
	}
	// Admins without a filter see every conversation.
	if q.Get("user_id") != "" || !h.isAdmin(r) {
		owner, ok := h.ownerParam(r)
		if !ok {
			writeJSON(w, http.StatusOK, []model.ChatMessage{})
			return
		}
		query.UserID = owner
	}

	messages, err := h.data.ListChatMessages(query)
	if err != nil {
		h.internalError(w, "Failed to list chat messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type CreateChatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Response  string `json:"response"`
}

func (h *APIHandler) CreateChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.EnableChat {
		writeError(w, http.StatusForbidden, CodeDisabled, "Chat is disabled")
		return
	}
	p := principalFrom(r.Context())
	var req CreateChatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "message is required")
		return
	}

	msg := &model.ChatMessage{
		UserID:    p.User.ID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Response:  req.Response,
	}
	if err := h.data.InsertChatMessage(msg); err != nil {
		h.internalError(w, "Failed to store chat message", err)
		return
	}
	h.metrics.RecordChatStored()
	writeJSON(w, http.StatusCreated, msg)
}

// --- mood_entries ---

func (h *APIHandler) ListMoodsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerParam(r)
	if !ok {
		writeJSON(w, http.StatusOK, []model.MoodEntry{})
		return
	}
	entries, err := h.data.ListMoods(owner, r.URL.Query().Get("date"))
	if err != nil {
		h.internalError(w, "Failed to list mood entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type UpsertMoodRequest struct {
	Date string `json:"date"`
	Mood string `json:"mood"`
}

// UpsertMoodHandler writes the caller's mood for a day; a second write for
// the same day replaces the label.
func (h *APIHandler) UpsertMoodHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req UpsertMoodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "date must be YYYY-MM-DD")
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "mood is required")
		return
	}

	entry := &model.MoodEntry{UserID: p.User.ID, Date: req.Date, Mood: strings.TrimSpace(req.Mood)}
	if err := h.data.UpsertMood(entry); err != nil {
		h.internalError(w, "Failed to save mood entry", err)
		return
	}
	h.metrics.RecordMoodUpsert()
	writeJSON(w, http.StatusOK, entry)
}

// --- blog_posts ---

func (h *APIHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	q := store.PostQuery{Status: r.URL.Query().Get("status"), Limit: limitParam(r)}
	if !h.isAdmin(r) {
		q.Status = model.PostPublished
	}
	posts, err := h.data.ListPosts(q)
	if err != nil {
		h.internalError(w, "Failed to list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *APIHandler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := h.data.GetPost(chi.URLParam(r, "id"))
	if err != nil {
		h.internalError(w, "Failed to get post", err)
		return
	}
	if post == nil || (post.Status != model.PostPublished && !h.isAdmin(r)) {
		writeError(w, http.StatusNotFound, CodeNoRows, "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type PostRequest struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	Status        string `json:"status"`
	ReadTime      int    `json:"read_time"`
	Excerpt       string `json:"excerpt"`
	FeaturedImage string `json:"featured_image"`
	Content       string `json:"content"`
}

// toPost sanitizes the request and fills derived fields. It returns a
// validation message when the post cannot be stored.
func (h *APIHandler) toPost(req PostRequest, author string) (*model.BlogPost, string) {
	post := &model.BlogPost{
		Title:         h.sanitizer.SanitizeText(req.Title),
		Slug:          utils.Slugify(req.Slug),
		Category:      h.sanitizer.SanitizeText(req.Category),
		Status:        req.Status,
		ReadTime:      req.ReadTime,
		Excerpt:       h.sanitizer.SanitizeText(req.Excerpt),
		FeaturedImage: strings.TrimSpace(req.FeaturedImage),
		Content:       h.sanitizer.SanitizeHTML(req.Content),
		Author:        author,
	}
	if post.Title == "" {
		return nil, "title is required"
	}
	if strings.TrimSpace(post.Content) == "" {
		return nil, "content is required"
	}
	if post.Status == "" {
		post.Status = model.PostDraft
	}
	if !model.ValidPostStatus(post.Status) {
		return nil, "status must be draft or published"
	}
	if post.ReadTime < 1 {
		post.ReadTime = 1
	}
	if post.Slug == "" {
		post.Slug = utils.Slugify(post.Title)
	}
	if post.Slug == "" {
		// Titles without Latin characters still need a unique slug.
		post.Slug = "post-" + strconv.FormatInt(time.Now().UnixMilli(), 36)
	}
	return post, ""
}

func (h *APIHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	var req PostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	post, msg := h.toPost(req, principalFrom(r.Context()).User.Email)
	if msg != "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}
	if err := h.data.InsertPost(post); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, CodeDuplicate, "A post with this slug already exists")
			return
		}
		h.internalError(w, "Failed to create post", err)
		return
	}
	h.metrics.RecordPostWrite("create")
	writeJSON(w, http.StatusCreated, post)
}

func (h *APIHandler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	var req PostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	post, msg := h.toPost(req, principalFrom(r.Context()).User.Email)
	if msg != "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}
	post.ID = chi.URLParam(r, "id")
	if err := h.data.UpdatePost(post); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, CodeNoRows, "Post not found")
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, CodeDuplicate, "A post with this slug already exists")
		default:
			h.internalError(w, "Failed to update post", err)
		}
		return
	}
	h.metrics.RecordPostWrite("update")
	writeJSON(w, http.StatusOK, post)
}

func (h *APIHandler) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	if err := h.data.DeletePost(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNoRows, "Post not found")
			return
		}
		h.internalError(w, "Failed to delete post", err)
		return
	}
	h.metrics.RecordPostWrite("delete")
	w.WriteHeader(http.StatusNoContent)
}

// --- rpc ---

type OverviewRequest struct {
	Since time.Time `json:"since"`
}

// AdminOverviewHandler returns dashboard counters. "Today" begins at since,
// which the client computes as its local midnight.
func (h *APIHandler) AdminOverviewHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, CodeForbidden, "Admin access required")
		return
	}
	var req OverviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Since.IsZero() {
		now := time.Now().UTC()
		req.Since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	overview, err := h.data.Overview(req.Since)
	if err != nil {
		h.internalError(w, "Failed to load overview", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
