package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/utils"
)

// Mood is a selectable mood label.
type Mood struct {
	Key   string
	Label string
}

var Moods = []Mood{
	{Key: "great", Label: "দারুণ"},
	{Key: "good", Label: "ভালো"},
	{Key: "okay", Label: "মোটামুটি"},
	{Key: "sad", Label: "মন খারাপ"},
	{Key: "anxious", Label: "উদ্বিগ্ন"},
}

func validMood(key string) bool {
	for _, m := range Moods {
		if m.Key == key {
			return true
		}
	}
	return false
}

// Quote is a line shown on the dashboard, one per day.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

var quotes = []Quote{
	{Text: "প্রতিটি নতুন দিন একটি নতুন সুযোগ।", Author: "অজানা"},
	{Text: "আপনার মানসিক স্বাস্থ্য আপনার সবচেয়ে বড় সম্পদ।", Author: "অজানা"},
	{Text: "ছোট ছোট পদক্ষেপেই বড় পরিবর্তন আসে।", Author: "লাও জু"},
	{Text: "নিজের প্রতি দয়ালু হওয়া সাহসিকতার কাজ।", Author: "ব্রেনে ব্রাউন"},
	{Text: "আজকের কষ্ট আগামীর শক্তি।", Author: "অজানা"},
	{Text: "মন শান্ত রাখলে সমাধান সহজ হয়।", Author: "বুদ্ধ"},
	{Text: "প্রতিদিন নিজের জন্য কিছু সময় রাখুন।", Author: "অজানা"},
	{Text: "সুখ খুঁজে পাওয়া যায় না, তা তৈরি করতে হয়।", Author: "অজানা"},
	{Text: "প্রতিটি সমস্যার মধ্যে একটি সুযোগ লুকিয়ে আছে।", Author: "অজানা"},
}

// DashboardBackend is the data the dashboard reads and writes. *backend.Client
// satisfies it.
type DashboardBackend interface {
	ListChatMessages(ctx context.Context, f backend.ChatFilter) ([]model.ChatMessage, error)
	UpsertMood(ctx context.Context, date, mood string) (*model.MoodEntry, error)
	ListMoods(ctx context.Context, userID, date string) ([]model.MoodEntry, error)
}

type Source string

const (
	SourceBackend Source = "backend"
	SourceLocal   Source = "local"
)

type Stats struct {
	TotalChats int    `json:"totalChats"`
	ActiveDays int    `json:"activeDays"`
	Source     Source `json:"-"`
}

type MoodResult struct {
	Date    string
	Mood    string
	SavedTo Source
}

// localMood is a mood entry buffered on the device until the backend takes it.
type localMood struct {
	Date      string    `json:"date"`
	Mood      string    `json:"mood"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardService aggregates a user's stats and mood. The backend is the
// source of truth; local storage holds the last stats snapshot and mood
// entries the backend has not accepted yet.
type DashboardService struct {
	backend DashboardBackend
	local   LocalStore
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location

	mu      sync.Mutex
	savedOn map[string]string
}

func NewDashboardService(b DashboardBackend, local LocalStore, logger *slog.Logger) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		backend: b,
		local:   local,
		logger:  logger,
		now:     time.Now,
		loc:     time.Local,
		savedOn: map[string]string{},
	}
}

func (s *DashboardService) today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// LoadStats counts the user's chat turns and distinct active days. It never
// fails: without the backend the last snapshot (or zeros) is returned.
func (s *DashboardService) LoadStats(ctx context.Context, userID string) Stats {
	rows, err := s.backend.ListChatMessages(ctx, backend.ChatFilter{UserID: userID})
	if err != nil {
		s.logger.Warn("loading stats from backend failed, using local snapshot",
			slog.String("user_id", userID), slog.Any("error", err))
		return s.localStats(userID)
	}

	days := make(map[string]struct{})
	for _, r := range rows {
		days[r.CreatedAt.In(s.loc).Format(time.DateOnly)] = struct{}{}
	}
	stats := Stats{TotalChats: len(rows), ActiveDays: len(days), Source: SourceBackend}

	err = s.local.Update(localstore.StatsKey(userID), func(current json.RawMessage) (any, error) {
		snapshot := map[string]any{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &snapshot); err != nil {
				snapshot = map[string]any{}
			}
		}
		snapshot["totalChats"] = stats.TotalChats
		snapshot["activeDays"] = stats.ActiveDays
		snapshot["updatedAt"] = s.now().UTC()
		return snapshot, nil
	})
	if err != nil {
		s.logger.Warn("failed to refresh stats snapshot", slog.Any("error", err))
	}

	if _, err := s.FlushPending(ctx, userID); err != nil {
		s.logger.Warn("failed to flush buffered moods", slog.Any("error", err))
	}
	return stats
}

func (s *DashboardService) localStats(userID string) Stats {
	stats := Stats{Source: SourceLocal}
	if _, err := s.local.GetJSON(localstore.StatsKey(userID), &stats); err != nil {
		s.logger.Warn("unreadable stats snapshot", slog.Any("error", err))
		return Stats{Source: SourceLocal}
	}
	stats.Source = SourceLocal
	return stats
}

// MoodSaveEnabled is false once a mood was saved today.
func (s *DashboardService) MoodSaveEnabled(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedOn[userID] != s.today()
}

func (s *DashboardService) markSaved(userID, date string) {
	s.mu.Lock()
	s.savedOn[userID] = date
	s.mu.Unlock()
}

// claimDay marks today as saved for userID unless it already is. The returned
// release puts back the previous mark.
func (s *DashboardService) claimDay(userID string) (date string, release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date = s.today()
	prev, had := s.savedOn[userID]
	if had && prev == date {
		return date, nil, false
	}
	s.savedOn[userID] = date
	return date, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.savedOn[userID] != date {
			return
		}
		if had {
			s.savedOn[userID] = prev
		} else {
			delete(s.savedOn, userID)
		}
	}, true
}

// RecordMood saves today's mood. When the backend refuses, the entry is kept
// locally and synced on the next successful backend contact.
func (s *DashboardService) RecordMood(ctx context.Context, userID, mood string) (*MoodResult, error) {
	if !validMood(mood) {
		return nil, apperr.Invalid("mood", apperr.MsgInvalidMood)
	}
	date, release, ok := s.claimDay(userID)
	if !ok {
		return nil, apperr.ErrMoodAlreadySaved
	}
	result := &MoodResult{Date: date, Mood: mood, SavedTo: SourceBackend}

	if _, err := s.backend.UpsertMood(ctx, date, mood); err != nil {
		s.logger.Warn("saving mood to backend failed, using local storage",
			slog.String("user_id", userID), slog.Any("error", err))
		if lerr := s.bufferMood(userID, localMood{Date: date, Mood: mood, Timestamp: s.now().UTC()}); lerr != nil {
			release()
			return nil, apperr.Backend("save mood", errors.Join(err, lerr))
		}
		result.SavedTo = SourceLocal
	} else {
		if err := s.dropBuffered(userID, date); err != nil {
			s.logger.Warn("failed to drop buffered mood", slog.Any("error", err))
		}
		if _, err := s.FlushPending(ctx, userID); err != nil {
			s.logger.Warn("failed to flush buffered moods", slog.Any("error", err))
		}
	}

	return result, nil
}

// TodayMood returns today's saved mood, if any. A found entry disables saving.
func (s *DashboardService) TodayMood(ctx context.Context, userID string) (string, bool) {
	date := s.today()
	entries, err := s.backend.ListMoods(ctx, userID, date)
	if err != nil {
		s.logger.Warn("loading mood from backend failed", slog.Any("error", err))
	} else if len(entries) > 0 {
		s.markSaved(userID, date)
		return entries[0].Mood, true
	}

	moods, err := s.bufferedMoods(userID)
	if err != nil {
		s.logger.Warn("unreadable mood history", slog.Any("error", err))
		return "", false
	}
	if m, ok := moods[date]; ok {
		s.markSaved(userID, date)
		return m.Mood, true
	}
	return "", false
}

// FlushPending sends buffered mood entries to the backend, oldest first, and
// forgets each one the backend accepts.
func (s *DashboardService) FlushPending(ctx context.Context, userID string) (int, error) {
	moods, err := s.bufferedMoods(userID)
	if err != nil || len(moods) == 0 {
		return 0, err
	}

	dates := make([]string, 0, len(moods))
	for d := range moods {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	flushed := 0
	for _, d := range dates {
		if _, err := s.backend.UpsertMood(ctx, d, moods[d].Mood); err != nil {
			return flushed, fmt.Errorf("flush mood for %s: %w", d, err)
		}
		if err := s.dropBuffered(userID, d); err != nil {
			return flushed, err
		}
		flushed++
	}
	s.logger.Info("flushed buffered moods", slog.String("user_id", userID), slog.Int("count", flushed))
	return flushed, nil
}

func (s *DashboardService) bufferedMoods(userID string) (map[string]localMood, error) {
	moods := map[string]localMood{}
	if _, err := s.local.GetJSON(localstore.MoodsKey(userID), &moods); err != nil {
		return nil, err
	}
	return moods, nil
}

func (s *DashboardService) bufferMood(userID string, m localMood) error {
	return s.local.Update(localstore.MoodsKey(userID), func(current json.RawMessage) (any, error) {
		moods := map[string]json.RawMessage{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &moods); err != nil {
				return nil, fmt.Errorf("decode mood history: %w", err)
			}
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		moods[m.Date] = raw
		return moods, nil
	})
}

func (s *DashboardService) dropBuffered(userID, date string) error {
	return s.local.Update(localstore.MoodsKey(userID), func(current json.RawMessage) (any, error) {
		if len(current) == 0 {
			return nil, nil
		}
		moods := map[string]json.RawMessage{}
		if err := json.Unmarshal(current, &moods); err != nil {
			return nil, fmt.Errorf("decode mood history: %w", err)
		}
		delete(moods, date)
		if len(moods) == 0 {
			return nil, nil
		}
		return moods, nil
	})
}

// DailyQuote picks the quote for now's UTC date. Every client shows the same
// quote on the same day.
func DailyQuote(now time.Time) Quote {
	idx := int(utils.StringHash(now.UTC().Format(time.DateOnly))) % len(quotes)
	if idx < 0 {
		idx = -idx
	}
	return quotes[idx]
}
