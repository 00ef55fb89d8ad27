package core

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/utils"
)

const (
	adminListLimit = 50

	confirmDeletePost = "আপনি কি নিশ্চিত যে এই ব্লগ পোস্টটি মুছে ফেলতে চান?"
	confirmDeleteUser = "আপনি কি নিশ্চিত যে এই ব্যবহারকারীকে মুছে ফেলতে চান?"
)

// AdminBackend is the admin's view of the data service. *backend.Client
// satisfies it.
type AdminBackend interface {
	ListProfiles(ctx context.Context, f backend.ProfileFilter) ([]model.UserProfile, error)
	DeleteUser(ctx context.Context, userID string) error
	ListChatMessages(ctx context.Context, f backend.ChatFilter) ([]model.ChatMessage, error)
	ListPosts(ctx context.Context, f backend.PostFilter) ([]model.BlogPost, error)
	GetPost(ctx context.Context, id string) (*model.BlogPost, error)
	InsertPost(ctx context.Context, p backend.PostFields) (*model.BlogPost, error)
	UpdatePost(ctx context.Context, id string, p backend.PostFields) (*model.BlogPost, error)
	DeletePost(ctx context.Context, id string) error
	AdminOverview(ctx context.Context, since time.Time) (*model.Overview, error)
}

// Confirmer asks the user a yes/no question before a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// AdminService backs the admin back-office.
type AdminService struct {
	backend  AdminBackend
	sessions *SessionManager
	local    LocalStore
	confirm  Confirmer
	nav      Navigator
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
}

func NewAdminService(b AdminBackend, sessions *SessionManager, local LocalStore, confirm Confirmer, nav Navigator, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		backend:  b,
		sessions: sessions,
		local:    local,
		confirm:  confirm,
		nav:      nav,
		logger:   logger,
		now:      time.Now,
		loc:      time.Local,
	}
}

// Gate admits admins only. Anonymous users are sent to sign in and back;
// signed-in users without the role are sent to their dashboard.
func (s *AdminService) Gate(ctx context.Context) (*Session, error) {
	if err := s.sessions.Initialize(ctx); err != nil {
		return nil, err
	}
	cur := s.sessions.Current()
	if cur == nil {
		s.navigate(PathLogin + "?" + url.Values{"redirect": {"admin"}}.Encode())
		return nil, apperr.ErrNotAuthenticated
	}
	if !s.sessions.ResolveRole(ctx, cur.User.ID) {
		s.logger.Warn("admin access refused", slog.String("user_id", cur.User.ID))
		s.navigate(PathDashboard)
		return nil, apperr.ErrNotAdmin
	}
	s.sessions.markAdmin(cur.User.ID)
	cur.IsAdmin = true
	return cur, nil
}

func (s *AdminService) navigate(target string) {
	if s.nav != nil {
		s.nav.Go(target)
	}
}

func (s *AdminService) requireAdmin() error {
	cur := s.sessions.Current()
	switch {
	case cur == nil:
		return apperr.ErrNotAuthenticated
	case !cur.IsAdmin:
		return apperr.ErrNotAdmin
	}
	return nil
}

func (s *AdminService) confirmed(prompt string) bool {
	return s.confirm == nil || s.confirm.Confirm(prompt)
}

// --- users ---

func (s *AdminService) ListUsers(ctx context.Context) ([]model.UserProfile, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	users, err := s.backend.ListProfiles(ctx, backend.ProfileFilter{ExcludeRole: model.RoleAdmin, Limit: adminListLimit})
	if err != nil {
		return nil, apperr.Backend("list users", err)
	}
	return users, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if !s.confirmed(confirmDeleteUser) {
		return apperr.ErrCancelled
	}
	if err := s.backend.DeleteUser(ctx, userID); err != nil {
		return apperr.Backend("delete user", err)
	}
	s.logger.Info("user deleted", slog.String("user_id", userID))
	return nil
}

// --- chats ---

// ListChats returns the latest exchanges across all users with their authors.
func (s *AdminService) ListChats(ctx context.Context) ([]model.ChatMessage, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	chats, err := s.backend.ListChatMessages(ctx, backend.ChatFilter{Limit: adminListLimit, WithAuthor: true})
	if err != nil {
		return nil, apperr.Backend("list chats", err)
	}
	return chats, nil
}

// --- posts ---

// ListPosts lists posts, optionally only those with status.
func (s *AdminService) ListPosts(ctx context.Context, status string) ([]model.BlogPost, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	if status != "" && !model.ValidPostStatus(status) {
		return nil, apperr.Invalid("status", apperr.MsgInvalidStatus)
	}
	posts, err := s.backend.ListPosts(ctx, backend.PostFilter{Status: status})
	if err != nil {
		return nil, apperr.Backend("list posts", err)
	}
	return posts, nil
}

func (s *AdminService) GetPost(ctx context.Context, id string) (*model.BlogPost, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	post, err := s.backend.GetPost(ctx, id)
	if err != nil {
		return nil, apperr.Backend("get post", err)
	}
	return post, nil
}

// PostInput is the post editor form. An empty ID creates a post.
type PostInput struct {
	ID            string
	Title         string
	Slug          string
	Category      string
	Status        string
	ReadTime      int
	Excerpt       string
	FeaturedImage string
	Content       string
}

func (in PostInput) fields() (backend.PostFields, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	switch {
	case title == "":
		return backend.PostFields{}, apperr.Invalid("title", apperr.MsgTitleRequired)
	case content == "":
		return backend.PostFields{}, apperr.Invalid("content", apperr.MsgContentRequired)
	}

	status := in.Status
	if status == "" {
		status = model.PostDraft
	}
	if !model.ValidPostStatus(status) {
		return backend.PostFields{}, apperr.Invalid("status", apperr.MsgInvalidStatus)
	}

	slug := utils.Slugify(in.Slug)
	if slug == "" {
		slug = utils.Slugify(title)
	}
	readTime := in.ReadTime
	if readTime < 1 {
		readTime = 1
	}
	return backend.PostFields{
		Title:         title,
		Slug:          slug,
		Category:      strings.TrimSpace(in.Category),
		Status:        status,
		ReadTime:      readTime,
		Excerpt:       strings.TrimSpace(in.Excerpt),
		FeaturedImage: strings.TrimSpace(in.FeaturedImage),
		Content:       content,
	}, nil
}

// SavePost creates or updates a post. The author is the signed-in admin.
func (s *AdminService) SavePost(ctx context.Context, in PostInput) (*model.BlogPost, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	fields, err := in.fields()
	if err != nil {
		return nil, err
	}

	var post *model.BlogPost
	if in.ID == "" {
		post, err = s.backend.InsertPost(ctx, fields)
	} else {
		post, err = s.backend.UpdatePost(ctx, in.ID, fields)
	}
	if err != nil {
		return nil, apperr.Backend("save post", err)
	}
	s.logger.Info("post saved", slog.String("post_id", post.ID), slog.String("status", post.Status))
	return post, nil
}

func (s *AdminService) DeletePost(ctx context.Context, id string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if !s.confirmed(confirmDeletePost) {
		return apperr.ErrCancelled
	}
	if err := s.backend.DeletePost(ctx, id); err != nil {
		return apperr.Backend("delete post", err)
	}
	return nil
}

// --- overview ---

// Overview counts "today" from local midnight.
func (s *AdminService) Overview(ctx context.Context) (*model.Overview, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	ov, err := s.backend.AdminOverview(ctx, midnight)
	if err != nil {
		return nil, apperr.Backend("overview", err)
	}
	return ov, nil
}

// Dataset is one chart series.
type Dataset struct {
	Label string
	Data  []int
}

type Chart struct {
	Title    string
	Kind     string
	Labels   []string
	Datasets []Dataset
}

// Charts returns the dashboard's illustrative charts. The figures are fixed.
func (s *AdminService) Charts() []Chart {
	return []Chart{
		{
			Title:    "user_growth",
			Kind:     "line",
			Labels:   []string{"জানুয়ারি", "ফেব্রুয়ারি", "মার্চ", "এপ্রিল", "মে", "জুন"},
			Datasets: []Dataset{{Label: "নতুন ব্যবহারকারী", Data: []int{12, 19, 25, 35, 48, 62}}},
		},
		{
			Title:    "chat_activity",
			Kind:     "bar",
			Labels:   []string{"সোম", "মঙ্গল", "বুধ", "বৃহস্পতি", "শুক্র", "শনি", "রবি"},
			Datasets: []Dataset{{Label: "চ্যাট সংখ্যা", Data: []int{45, 52, 38, 64, 72, 28, 35}}},
		},
		{
			Title:    "user_engagement",
			Kind:     "doughnut",
			Labels:   []string{"নতুন", "ফিরে আসা", "সক্রিয়"},
			Datasets: []Dataset{{Data: []int{30, 45, 25}}},
		},
		{
			Title:    "popular_posts",
			Kind:     "bar",
			Labels:   []string{"স্ট্রেস ম্যানেজমেন্ট", "মেডিটেশন গাইড", "ঘুম ও স্বাস্থ্য"},
			Datasets: []Dataset{{Label: "ভিউ সংখ্যা", Data: []int{320, 280, 240}}},
		},
	}
}

// FilterRows keeps the rows whose visible text contains term, ignoring case.
// An empty term keeps everything.
func FilterRows[T any](rows []T, term string, text func(T) string) []T {
	term = strings.TrimSpace(term)
	if term == "" {
		return rows
	}
	var out []T
	for _, r := range rows {
		if utils.ContainsFold(text(r), term) {
			out = append(out, r)
		}
	}
	return out
}

func UserRowText(p model.UserProfile) string {
	return strings.Join([]string{p.FullName, p.Email, p.Role, p.CreatedAt.Format(time.DateOnly)}, " ")
}

func PostRowText(p model.BlogPost) string {
	return strings.Join([]string{p.Title, p.Category, p.Author, p.Status}, " ")
}

// FilterPostsByStatus keeps posts with status. An empty status keeps all.
func FilterPostsByStatus(posts []model.BlogPost, status string) []model.BlogPost {
	if status == "" {
		return posts
	}
	var out []model.BlogPost
	for _, p := range posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// --- settings ---

type GeneralSettings struct {
	SiteName       string `json:"site_name"`
	ContactEmail   string `json:"contact_email"`
	DailyChatLimit int    `json:"daily_chat_limit"`
}

func (s *AdminService) SaveSettings(in GeneralSettings) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	in.SiteName = strings.TrimSpace(in.SiteName)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if in.ContactEmail != "" && !emailPattern.MatchString(in.ContactEmail) {
		return apperr.Invalid("contact_email", apperr.MsgInvalidEmail)
	}
	if in.DailyChatLimit < 0 {
		return apperr.Invalid("daily_chat_limit", apperr.MsgInvalidChatLimit)
	}
	if err := s.local.Set(localstore.KeyAdminSettings, in); err != nil {
		return apperr.Backend("save settings", err)
	}
	return nil
}

func (s *AdminService) LoadSettings() (GeneralSettings, error) {
	var out GeneralSettings
	if _, err := s.local.GetJSON(localstore.KeyAdminSettings, &out); err != nil {
		return GeneralSettings{}, err
	}
	return out, nil
}

// ChangePassword updates the signed-in admin's password.
func (s *AdminService) ChangePassword(ctx context.Context, password, confirm string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	return s.sessions.ChangePassword(ctx, password, confirm)
}
