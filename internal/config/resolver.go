package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"mentalhealth-ai.bd/companion/internal/localstore"
)

// OverrideStore persists user-supplied overrides. *localstore.Store satisfies it.
type OverrideStore interface {
	GetString(key string) string
	Set(key string, v any) error
	Remove(keys ...string) error
}

// Defaults are used for every key the winning source does not provide.
var Defaults = map[string]string{
	"SUPABASE_URL":      "http://localhost:8080",
	"SUPABASE_ANON_KEY": "",
	"GEMINI_API_KEY":    "",
	"GEMINI_MODEL":      "gemini-2.5-flash",
	"NODE_ENV":          "production",
	"ENABLE_CHAT":       "true",
	"ENABLE_ANALYTICS":  "false",
	"ADMIN_EMAIL":       "admin@mentalhealth-ai.bd",
	"SUPPORT_EMAIL":     "support@mentalhealth-ai.bd",
}

// overridable maps a config key to the local storage key holding the user's value.
var overridable = map[string]string{
	"GEMINI_API_KEY": localstore.KeyGeminiAPIKey,
}

// Resolver produces the client's configuration snapshot. The first source that
// loads wins; its values are laid over Defaults.
type Resolver struct {
	sources   []Source
	overrides OverrideStore
	logger    *slog.Logger

	mu          sync.Mutex
	initialized bool
	origin      string
	values      map[string]string
}

func NewResolver(sources []Source, overrides OverrideStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sources:   sources,
		overrides: overrides,
		logger:    logger,
		values:    copyMap(Defaults),
		origin:    "defaults",
	}
}

// Initialize resolves once. Concurrent and later calls wait for and return the
// same snapshot without fetching again.
func (r *Resolver) Initialize(ctx context.Context) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return copyMap(r.values)
	}

	values := copyMap(Defaults)
	origin := "defaults"
	for _, src := range r.sources {
		loaded, err := src.Load(ctx)
		if err != nil {
			r.logger.Debug("config source unavailable", slog.String("source", src.Name()), slog.Any("error", err))
			continue
		}
		for k, v := range loaded {
			values[k] = v
		}
		origin = src.Name()
		break
	}
	if origin == "defaults" && len(r.sources) > 0 {
		r.logger.Warn("no config source resolved, using compiled defaults")
	}

	r.values = values
	r.origin = origin
	r.initialized = true
	r.logger.Info("configuration resolved", slog.String("source", origin))
	return copyMap(r.values)
}

// Lookup returns the effective value, user override first.
func (r *Resolver) Lookup(key string) (string, bool) {
	if storeKey, ok := overridable[key]; ok && r.overrides != nil {
		if v := r.overrides.GetString(storeKey); v != "" {
			return v, true
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// Get never fails: an absent key yields def.
func (r *Resolver) Get(key, def string) string {
	if v, ok := r.Lookup(key); ok {
		return v
	}
	return def
}

// Bool reads a flag; unparsable values count as false.
func (r *Resolver) Bool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(r.Get(key, "")))
	return b
}

func (r *Resolver) HasAPIKey() bool {
	return strings.TrimSpace(r.Get("GEMINI_API_KEY", "")) != ""
}

// Origin names the source the snapshot came from.
func (r *Resolver) Origin() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.origin
}

// SetOverride stores a user-supplied value for an overridable key.
func (r *Resolver) SetOverride(key, value string) error {
	storeKey, ok := overridable[key]
	if !ok {
		return fmt.Errorf("%s cannot be overridden", key)
	}
	if r.overrides == nil {
		return fmt.Errorf("no override storage configured")
	}
	return r.overrides.Set(storeKey, strings.TrimSpace(value))
}

// ResetOverride drops the user's value so the resolved one applies again.
func (r *Resolver) ResetOverride(key string) error {
	storeKey, ok := overridable[key]
	if !ok {
		return fmt.Errorf("%s cannot be overridden", key)
	}
	if r.overrides == nil {
		return nil
	}
	return r.overrides.Remove(storeKey)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
