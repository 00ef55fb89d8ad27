package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"mentalhealth-ai.bd/companion/internal/localstore"
)

type countingSource struct {
	calls  atomic.Int32
	values map[string]string
	err    error
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (map[string]string, error) {
	s.calls.Add(1)
	return s.values, s.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolver_FallsThroughToStaticFile(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downURL := down.URL
	down.Close()

	static := writeFile(t, "config.json", `{"SUPABASE_URL": "X"}`)
	r := NewResolver([]Source{
		EndpointSource{URL: downURL + "/api/env"},
		DotEnvSource{Path: filepath.Join(t.TempDir(), "missing.env")},
		JSONFileSource{Path: static},
	}, nil, nil)

	r.Initialize(context.Background())

	if got := r.Get("SUPABASE_URL", ""); got != "X" {
		t.Errorf("SUPABASE_URL = %q, want %q", got, "X")
	}
	if r.Origin() != "static" {
		t.Errorf("Origin() = %q, want static", r.Origin())
	}
	if got := r.Get("GEMINI_MODEL", ""); got != Defaults["GEMINI_MODEL"] {
		t.Errorf("keys missing from the winning source should keep defaults, got %q", got)
	}
}

func TestResolver_NothingResolvesUsesDefaults(t *testing.T) {
	r := NewResolver([]Source{
		&countingSource{err: errors.New("down")},
		JSONFileSource{Path: filepath.Join(t.TempDir(), "absent.json")},
	}, nil, nil)

	r.Initialize(context.Background())

	if got := r.Get("SUPABASE_URL", ""); got != Defaults["SUPABASE_URL"] {
		t.Errorf("SUPABASE_URL = %q, want compiled default", got)
	}
	if got := r.Get("UNKNOWN_KEY", "fallback"); got != "fallback" {
		t.Errorf("Get(unknown) = %q, want caller default", got)
	}
	if _, ok := r.Lookup("UNKNOWN_KEY"); ok {
		t.Error("Lookup(unknown) ok = true")
	}
}

func TestResolver_EndpointWinsAndNormalizesScalars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"SUPABASE_URL":"https://api.example","ENABLE_CHAT":false,"MAX":3}`))
	}))
	defer srv.Close()

	static := writeFile(t, "config.json", `{"SUPABASE_URL": "X"}`)
	r := NewResolver([]Source{EndpointSource{URL: srv.URL}, JSONFileSource{Path: static}}, nil, nil)
	r.Initialize(context.Background())

	if got := r.Get("SUPABASE_URL", ""); got != "https://api.example" {
		t.Errorf("SUPABASE_URL = %q", got)
	}
	if r.Bool("ENABLE_CHAT") {
		t.Error("ENABLE_CHAT should be false")
	}
	if got := r.Get("MAX", ""); got != "3" {
		t.Errorf("MAX = %q, want 3", got)
	}
}

func TestResolver_DotEnvSource(t *testing.T) {
	env := writeFile(t, ".env", "SUPABASE_URL=http://dev:8080\nGEMINI_API_KEY=dev-key\n")
	r := NewResolver([]Source{DotEnvSource{Path: env}}, nil, nil)
	r.Initialize(context.Background())

	if got := r.Get("SUPABASE_URL", ""); got != "http://dev:8080" {
		t.Errorf("SUPABASE_URL = %q", got)
	}
	if os.Getenv("GEMINI_API_KEY") == "dev-key" {
		t.Error("dotenv source must not mutate the process environment")
	}
}

func TestResolver_InitializeIsIdempotentUnderConcurrency(t *testing.T) {
	src := &countingSource{values: map[string]string{"SUPABASE_URL": "Y"}}
	r := NewResolver([]Source{src}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := r.Initialize(context.Background())
			if snap["SUPABASE_URL"] != "Y" {
				t.Errorf("snapshot SUPABASE_URL = %q", snap["SUPABASE_URL"])
			}
		}()
	}
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}
}

func TestResolver_UserOverrideReplacesAPIKey(t *testing.T) {
	store := localstore.Open("")
	src := &countingSource{values: map[string]string{"GEMINI_API_KEY": "server-key"}}
	r := NewResolver([]Source{src}, store, nil)
	r.Initialize(context.Background())

	if err := r.SetOverride("GEMINI_API_KEY", " user-key "); err != nil {
		t.Fatalf("SetOverride() error = %v", err)
	}
	if got := r.Get("GEMINI_API_KEY", ""); got != "user-key" {
		t.Errorf("GEMINI_API_KEY = %q, want user override", got)
	}

	if err := r.ResetOverride("GEMINI_API_KEY"); err != nil {
		t.Fatalf("ResetOverride() error = %v", err)
	}
	if got := r.Get("GEMINI_API_KEY", ""); got != "server-key" {
		t.Errorf("GEMINI_API_KEY = %q, want resolved value after reset", got)
	}

	if err := r.SetOverride("SUPABASE_URL", "http://evil"); err == nil {
		t.Error("SetOverride(SUPABASE_URL) should be rejected")
	}
}

func TestResolver_HasAPIKey(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	r.Initialize(context.Background())
	if r.HasAPIKey() {
		t.Error("HasAPIKey() = true with empty default")
	}
}
