package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/model"
)

type fakeAdminBackend struct {
	profiles    []model.UserProfile
	chats       []model.ChatMessage
	posts       []model.BlogPost
	deleted     []string
	inserted    []backend.PostFields
	updated     map[string]backend.PostFields
	since       time.Time
	profileArgs backend.ProfileFilter
	chatArgs    backend.ChatFilter
	err         error
}

func (b *fakeAdminBackend) ListProfiles(_ context.Context, f backend.ProfileFilter) ([]model.UserProfile, error) {
	b.profileArgs = f
	return b.profiles, b.err
}

func (b *fakeAdminBackend) DeleteUser(_ context.Context, id string) error {
	b.deleted = append(b.deleted, "user:"+id)
	return b.err
}

func (b *fakeAdminBackend) ListChatMessages(_ context.Context, f backend.ChatFilter) ([]model.ChatMessage, error) {
	b.chatArgs = f
	return b.chats, b.err
}

func (b *fakeAdminBackend) ListPosts(_ context.Context, f backend.PostFilter) ([]model.BlogPost, error) {
	return FilterPostsByStatus(b.posts, f.Status), b.err
}

func (b *fakeAdminBackend) GetPost(_ context.Context, id string) (*model.BlogPost, error) {
	for _, p := range b.posts {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, &backend.Error{Status: 404, Code: "PGRST116", Message: "not found"}
}

func (b *fakeAdminBackend) InsertPost(_ context.Context, p backend.PostFields) (*model.BlogPost, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.inserted = append(b.inserted, p)
	return &model.BlogPost{ID: "p-new", Title: p.Title, Slug: p.Slug, Status: p.Status, ReadTime: p.ReadTime}, nil
}

func (b *fakeAdminBackend) UpdatePost(_ context.Context, id string, p backend.PostFields) (*model.BlogPost, error) {
	if b.updated == nil {
		b.updated = map[string]backend.PostFields{}
	}
	b.updated[id] = p
	return &model.BlogPost{ID: id, Title: p.Title, Slug: p.Slug, Status: p.Status}, b.err
}

func (b *fakeAdminBackend) DeletePost(_ context.Context, id string) error {
	b.deleted = append(b.deleted, "post:"+id)
	return b.err
}

func (b *fakeAdminBackend) AdminOverview(_ context.Context, since time.Time) (*model.Overview, error) {
	b.since = since
	return &model.Overview{TotalUsers: 4, PublishedPosts: 2}, b.err
}

type answer bool

func (a answer) Confirm(string) bool { return bool(a) }

type adminFixture struct {
	*sessionFixture
	backend *fakeAdminBackend
	admin   *AdminService
}

func newAdminFixture(t *testing.T, role string, confirm Confirmer) *adminFixture {
	t.Helper()
	sf := newSessionFixture(t, "/login")
	if role != "" {
		sf.signIn(t, testUser("a1", "admin@example.com"), role)
	}
	b := &fakeAdminBackend{}
	return &adminFixture{
		sessionFixture: sf,
		backend:        b,
		admin:          NewAdminService(b, sf.m, sf.local, confirm, sf.nav, discardLogger()),
	}
}

func TestGate(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		f := newAdminFixture(t, "", answer(true))
		if _, err := f.admin.Gate(ctx); !errors.Is(err, apperr.ErrNotAuthenticated) {
			t.Errorf("Gate() error = %v", err)
		}
		if v := f.nav.Visits(); len(v) != 1 || v[0] != "/login?redirect=admin" {
			t.Errorf("visits = %v", v)
		}
	})

	t.Run("user", func(t *testing.T) {
		f := newAdminFixture(t, model.RoleUser, answer(true))
		if _, err := f.admin.Gate(ctx); !errors.Is(err, apperr.ErrNotAdmin) {
			t.Errorf("Gate() error = %v", err)
		}
		if v := f.nav.Visits(); v[len(v)-1] != PathDashboard {
			t.Errorf("visits = %v", v)
		}
		if _, err := f.admin.ListUsers(ctx); !errors.Is(err, apperr.ErrNotAdmin) {
			t.Errorf("ListUsers() as user error = %v", err)
		}
	})

	t.Run("role lookup fails", func(t *testing.T) {
		f := newAdminFixture(t, model.RoleAdmin, answer(true))
		f.auth.getProfile = func(string) (*model.UserProfile, error) { return nil, errors.New("offline") }
		if _, err := f.admin.Gate(ctx); !errors.Is(err, apperr.ErrNotAdmin) {
			t.Errorf("Gate() error = %v", err)
		}
	})

	t.Run("admin", func(t *testing.T) {
		f := newAdminFixture(t, model.RoleAdmin, answer(true))
		s, err := f.admin.Gate(ctx)
		if err != nil || !s.IsAdmin {
			t.Errorf("Gate() = %+v, %v", s, err)
		}
	})
}

func TestUsersAndChats(t *testing.T) {
	f := newAdminFixture(t, model.RoleAdmin, answer(true))
	ctx := context.Background()

	if _, err := f.admin.ListUsers(ctx); err != nil {
		t.Fatal(err)
	}
	if f.backend.profileArgs.ExcludeRole != model.RoleAdmin || f.backend.profileArgs.Limit != 50 {
		t.Errorf("profile filter = %+v", f.backend.profileArgs)
	}
	if _, err := f.admin.ListChats(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.backend.chatArgs.WithAuthor || f.backend.chatArgs.Limit != 50 || f.backend.chatArgs.UserID != "" {
		t.Errorf("chat filter = %+v", f.backend.chatArgs)
	}

	f.backend.err = errors.New("offline")
	var be *apperr.BackendError
	if _, err := f.admin.ListUsers(ctx); !errors.As(err, &be) {
		t.Errorf("ListUsers() error = %v, want BackendError", err)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	ctx := context.Background()

	f := newAdminFixture(t, model.RoleAdmin, answer(false))
	if err := f.admin.DeleteUser(ctx, "u1"); !errors.Is(err, apperr.ErrCancelled) {
		t.Errorf("DeleteUser() error = %v", err)
	}
	if err := f.admin.DeletePost(ctx, "p1"); !errors.Is(err, apperr.ErrCancelled) {
		t.Errorf("DeletePost() error = %v", err)
	}
	if len(f.backend.deleted) != 0 {
		t.Errorf("deleted %v without confirmation", f.backend.deleted)
	}

	f = newAdminFixture(t, model.RoleAdmin, answer(true))
	f.admin.DeleteUser(ctx, "u1")
	f.admin.DeletePost(ctx, "p1")
	if strings.Join(f.backend.deleted, ",") != "user:u1,post:p1" {
		t.Errorf("deleted = %v", f.backend.deleted)
	}
}

func TestSavePost(t *testing.T) {
	f := newAdminFixture(t, model.RoleAdmin, answer(true))
	ctx := context.Background()

	tests := []struct {
		name string
		in   PostInput
		msg  string
	}{
		{"no title", PostInput{Content: "x"}, apperr.MsgTitleRequired},
		{"no content", PostInput{Title: "x"}, apperr.MsgContentRequired},
		{"bad status", PostInput{Title: "x", Content: "y", Status: "archived"}, apperr.MsgInvalidStatus},
	}
	for _, tt := range tests {
		if _, err := f.admin.SavePost(ctx, tt.in); apperr.UserMessage(err) != tt.msg {
			t.Errorf("%s: error = %v", tt.name, err)
		}
	}

	post, err := f.admin.SavePost(ctx, PostInput{Title: "  Stress Management!! ", Content: "<p>breathe</p>"})
	if err != nil {
		t.Fatal(err)
	}
	got := f.backend.inserted[0]
	if got.Slug != "stress-management" || got.Status != model.PostDraft || got.ReadTime != 1 || got.Title != "Stress Management!!" {
		t.Errorf("inserted = %+v", got)
	}

	if _, err := f.admin.SavePost(ctx, PostInput{ID: post.ID, Title: "t", Slug: "Custom Slug", Content: "c", Status: model.PostPublished, ReadTime: 6}); err != nil {
		t.Fatal(err)
	}
	if u := f.backend.updated[post.ID]; u.Slug != "custom-slug" || u.ReadTime != 6 {
		t.Errorf("updated = %+v", u)
	}
}

func TestOverviewCountsFromLocalMidnight(t *testing.T) {
	f := newAdminFixture(t, model.RoleAdmin, answer(true))
	f.admin.loc = dhaka
	f.admin.now = func() time.Time { return time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC) }

	ov, err := f.admin.Overview(context.Background())
	if err != nil || ov.TotalUsers != 4 {
		t.Fatalf("Overview() = %+v, %v", ov, err)
	}
	want := time.Date(2026, 10, 17, 0, 0, 0, 0, dhaka)
	if !f.backend.since.Equal(want) {
		t.Errorf("since = %v, want %v", f.backend.since, want)
	}
}

func TestFilterRows(t *testing.T) {
	users := []model.UserProfile{
		{FullName: "Rahim Uddin", Email: "rahim@example.com"},
		{FullName: "Karim", Email: "KARIM@example.com"},
	}
	if got := FilterRows(users, "karim@", UserRowText); len(got) != 1 || got[0].FullName != "Karim" {
		t.Errorf("FilterRows() = %+v", got)
	}
	if got := FilterRows(users, "  ", UserRowText); len(got) != 2 {
		t.Errorf("empty term kept %d rows", len(got))
	}

	posts := []model.BlogPost{{Title: "a", Status: model.PostDraft}, {Title: "b", Status: model.PostPublished}}
	if got := FilterPostsByStatus(posts, model.PostPublished); len(got) != 1 || got[0].Title != "b" {
		t.Errorf("FilterPostsByStatus() = %+v", got)
	}
	if got := FilterRows(posts, "PUBLISHED", PostRowText); len(got) != 1 {
		t.Errorf("FilterRows(posts) = %+v", got)
	}
}

func TestSettings(t *testing.T) {
	f := newAdminFixture(t, model.RoleAdmin, answer(true))

	if err := f.admin.SaveSettings(GeneralSettings{ContactEmail: "bad"}); err == nil {
		t.Error("SaveSettings() accepted a bad e-mail")
	}
	in := GeneralSettings{SiteName: "মনের কথা", ContactEmail: "help@example.com", DailyChatLimit: 30}
	if err := f.admin.SaveSettings(in); err != nil {
		t.Fatal(err)
	}
	got, err := f.admin.LoadSettings()
	if err != nil || got != in {
		t.Errorf("LoadSettings() = %+v, %v", got, err)
	}
}

func TestCharts(t *testing.T) {
	f := newAdminFixture(t, model.RoleAdmin, answer(true))
	for _, c := range f.admin.Charts() {
		for _, ds := range c.Datasets {
			if len(ds.Data) != len(c.Labels) {
				t.Errorf("%s: %d points for %d labels", c.Title, len(ds.Data), len(c.Labels))
			}
		}
	}
}
