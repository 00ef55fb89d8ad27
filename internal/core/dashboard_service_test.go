package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/model"
)

// fakeDashboardBackend keeps mood rows keyed by date, like the upsert table.
type fakeDashboardBackend struct {
	mu      sync.Mutex
	chats   []model.ChatMessage
	moods   map[string]string
	down    bool
	upserts []string
}

func newFakeDashboardBackend() *fakeDashboardBackend {
	return &fakeDashboardBackend{moods: map[string]string{}}
}

var errUnavailable = &backend.Error{Status: 503, Message: "unavailable"}

func (b *fakeDashboardBackend) setDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

func (b *fakeDashboardBackend) ListChatMessages(context.Context, backend.ChatFilter) ([]model.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errUnavailable
	}
	return b.chats, nil
}

func (b *fakeDashboardBackend) UpsertMood(_ context.Context, date, mood string) (*model.MoodEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errUnavailable
	}
	b.moods[date] = mood
	b.upserts = append(b.upserts, date)
	return &model.MoodEntry{Date: date, Mood: mood}, nil
}

func (b *fakeDashboardBackend) ListMoods(_ context.Context, userID, date string) ([]model.MoodEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, errUnavailable
	}
	if m, ok := b.moods[date]; ok {
		return []model.MoodEntry{{UserID: userID, Date: date, Mood: m}}, nil
	}
	return nil, nil
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var dhaka = time.FixedZone("BST", 6*60*60)

func newDashboard(b DashboardBackend, start time.Time) (*DashboardService, *localstore.Store, *clock) {
	local := localstore.Open("")
	clk := &clock{t: start}
	d := NewDashboardService(b, local, discardLogger())
	d.now = clk.Now
	d.loc = dhaka
	return d, local, clk
}

func TestLoadStats_CountsLocalDays(t *testing.T) {
	b := newFakeDashboardBackend()
	// 20:00 UTC on the 15th is already the 16th in Dhaka.
	b.chats = []model.ChatMessage{
		{CreatedAt: time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)},
	}
	d, local, _ := newDashboard(b, time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC))

	stats := d.LoadStats(context.Background(), "u1")
	if stats.TotalChats != 3 || stats.ActiveDays != 2 || stats.Source != SourceBackend {
		t.Errorf("LoadStats() = %+v", stats)
	}

	var snapshot map[string]any
	if ok, _ := local.GetJSON(localstore.StatsKey("u1"), &snapshot); !ok || snapshot["totalChats"] != float64(3) {
		t.Errorf("snapshot = %v", snapshot)
	}
}

func TestLoadStats_FallsBackToSnapshot(t *testing.T) {
	b := newFakeDashboardBackend()
	d, local, _ := newDashboard(b, time.Now())
	b.setDown(true)

	if stats := d.LoadStats(context.Background(), "u1"); stats != (Stats{Source: SourceLocal}) {
		t.Errorf("LoadStats() without snapshot = %+v", stats)
	}

	local.Set(localstore.StatsKey("u1"), map[string]any{"totalChats": 7, "activeDays": 2, "other": "kept"})
	stats := d.LoadStats(context.Background(), "u1")
	if stats.TotalChats != 7 || stats.ActiveDays != 2 || stats.Source != SourceLocal {
		t.Errorf("LoadStats() = %+v", stats)
	}
}

func TestRecordMood_OncePerDay(t *testing.T) {
	b := newFakeDashboardBackend()
	d, _, clk := newDashboard(b, time.Date(2026, 10, 16, 12, 0, 0, 0, dhaka))
	ctx := context.Background()

	if _, err := d.RecordMood(ctx, "u1", "ecstatic"); apperr.UserMessage(err) != apperr.MsgInvalidMood {
		t.Errorf("RecordMood(unknown) error = %v", err)
	}

	res, err := d.RecordMood(ctx, "u1", "good")
	if err != nil {
		t.Fatal(err)
	}
	if res.Date != "2026-10-16" || res.SavedTo != SourceBackend {
		t.Errorf("result = %+v", res)
	}
	if d.MoodSaveEnabled("u1") {
		t.Error("save still enabled after success")
	}
	if _, err := d.RecordMood(ctx, "u1", "great"); !errors.Is(err, apperr.ErrMoodAlreadySaved) {
		t.Errorf("second RecordMood() error = %v", err)
	}
	if !d.MoodSaveEnabled("u2") {
		t.Error("another user's save was disabled")
	}

	clk.Add(24 * time.Hour)
	if !d.MoodSaveEnabled("u1") {
		t.Error("save still disabled the next day")
	}
}

// gatedMoodBackend holds UpsertMood until release is closed.
type gatedMoodBackend struct {
	*fakeDashboardBackend
	entered chan struct{}
	release chan struct{}
}

func (b *gatedMoodBackend) UpsertMood(ctx context.Context, date, mood string) (*model.MoodEntry, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeDashboardBackend.UpsertMood(ctx, date, mood)
}

func TestRecordMood_ConcurrentSavesUpsertOnce(t *testing.T) {
	b := &gatedMoodBackend{
		fakeDashboardBackend: newFakeDashboardBackend(),
		entered:              make(chan struct{}, 1),
		release:              make(chan struct{}),
	}
	d, _, _ := newDashboard(b, time.Date(2026, 10, 16, 12, 0, 0, 0, dhaka))
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := d.RecordMood(ctx, "u1", "good")
		errc <- err
	}()
	<-b.entered

	if _, err := d.RecordMood(ctx, "u1", "great"); !errors.Is(err, apperr.ErrMoodAlreadySaved) {
		t.Errorf("RecordMood() during a pending save error = %v", err)
	}
	close(b.release)
	if err := <-errc; err != nil {
		t.Fatalf("first RecordMood() error = %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.upserts) != 1 || b.moods["2026-10-16"] != "good" {
		t.Errorf("upserts = %v, moods = %v", b.upserts, b.moods)
	}
}

func TestRecordMood_FailedSaveReleasesDay(t *testing.T) {
	b := newFakeDashboardBackend()
	d, local, _ := newDashboard(b, time.Date(2026, 10, 16, 12, 0, 0, 0, dhaka))
	ctx := context.Background()

	b.setDown(true)
	local.Set(localstore.MoodsKey("u1"), "not a mood map")
	_, err := d.RecordMood(ctx, "u1", "okay")
	if err == nil || errors.Is(err, apperr.ErrMoodAlreadySaved) {
		t.Fatalf("RecordMood() error = %v, want a save failure", err)
	}
	if !d.MoodSaveEnabled("u1") {
		t.Fatal("save disabled after both writes failed")
	}

	local.Remove(localstore.MoodsKey("u1"))
	res, err := d.RecordMood(ctx, "u1", "okay")
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if res.SavedTo != SourceLocal {
		t.Errorf("SavedTo = %s, want local", res.SavedTo)
	}
}

func TestRecordMood_UpsertOverwrites(t *testing.T) {
	b := newFakeDashboardBackend()
	ctx := context.Background()
	b.UpsertMood(ctx, "2026-10-16", "good")
	b.UpsertMood(ctx, "2026-10-16", "great")
	if len(b.moods) != 1 || b.moods["2026-10-16"] != "great" {
		t.Errorf("moods = %v", b.moods)
	}
}

func TestRecordMood_BuffersLocallyAndFlushes(t *testing.T) {
	b := newFakeDashboardBackend()
	d, local, clk := newDashboard(b, time.Date(2026, 10, 16, 12, 0, 0, 0, dhaka))
	ctx := context.Background()

	b.setDown(true)
	res, err := d.RecordMood(ctx, "u1", "sad")
	if err != nil {
		t.Fatalf("RecordMood() error = %v", err)
	}
	if res.SavedTo != SourceLocal {
		t.Errorf("SavedTo = %s, want local", res.SavedTo)
	}
	if d.MoodSaveEnabled("u1") {
		t.Error("save enabled after a local save")
	}
	if mood, ok := d.TodayMood(ctx, "u1"); !ok || mood != "sad" {
		t.Errorf("TodayMood() = %q, %v", mood, ok)
	}

	b.setDown(false)
	clk.Add(24 * time.Hour)
	if _, err := d.RecordMood(ctx, "u1", "good"); err != nil {
		t.Fatal(err)
	}
	if b.moods["2026-10-16"] != "sad" || b.moods["2026-10-17"] != "good" {
		t.Errorf("backend moods = %v", b.moods)
	}
	if ok, _ := local.GetJSON(localstore.MoodsKey("u1"), &map[string]any{}); ok {
		t.Error("buffered moods kept after flush")
	}
}

func TestTodayMood_BackendFirst(t *testing.T) {
	b := newFakeDashboardBackend()
	d, _, _ := newDashboard(b, time.Date(2026, 10, 16, 12, 0, 0, 0, dhaka))
	b.moods["2026-10-16"] = "anxious"

	mood, ok := d.TodayMood(context.Background(), "u1")
	if !ok || mood != "anxious" {
		t.Errorf("TodayMood() = %q, %v", mood, ok)
	}
	if d.MoodSaveEnabled("u1") {
		t.Error("save enabled with a mood already stored")
	}
}

func TestDailyQuote(t *testing.T) {
	day := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)
	if got := DailyQuote(day); got != quotes[3] {
		t.Errorf("DailyQuote(2026-10-16) = %+v, want %+v", got, quotes[3])
	}
	if DailyQuote(day) != DailyQuote(day.Add(20*time.Hour)) {
		t.Error("quote changed within a UTC day")
	}
	if got := DailyQuote(day.Add(24 * time.Hour)); got != quotes[4] {
		t.Errorf("DailyQuote(2026-10-17) = %+v", got)
	}
}
