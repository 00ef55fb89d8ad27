// Package cli is the terminal client: cobra commands over the core
// orchestrators, plus a bubbletea chat screen.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mentalhealth-ai.bd/companion/internal/backend"
	"mentalhealth-ai.bd/companion/internal/config"
	"mentalhealth-ai.bd/companion/internal/core"
	"mentalhealth-ai.bd/companion/internal/localstore"
	"mentalhealth-ai.bd/companion/internal/logger"
)

// Options are the root command's persistent flags.
type Options struct {
	EnvEndpoint string
	DataDir     string
	LogLevel    string
}

// App wires the orchestrators for one command invocation.
type App struct {
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger

	Local    *localstore.Store
	Config   *config.Resolver
	Backend  *backend.Client
	Nav      *TerminalNavigator
	Sessions *core.SessionManager

	logFile *os.File
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mentalhealth-companion")
	}
	return ".mentalhealth-companion"
}

func newApp(ctx context.Context, opts Options, in io.Reader, out io.Writer) (*App, error) {
	dir := opts.DataDir
	if dir == "" {
		dir = defaultDataDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dir, "client.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log := logger.Setup(logFile, opts.LogLevel)

	local := localstore.Open(filepath.Join(dir, "storage.json"))

	var sources []config.Source
	if opts.EnvEndpoint != "" {
		sources = append(sources, config.EndpointSource{URL: opts.EnvEndpoint})
	}
	sources = append(sources,
		config.DotEnvSource{Path: filepath.Join(dir, "dev.env")},
		config.JSONFileSource{Path: filepath.Join(dir, "config.json")},
	)
	resolver := config.NewResolver(sources, local, log)
	resolver.Initialize(ctx)

	client := backend.New(resolver.Get("SUPABASE_URL", ""), resolver.Get("SUPABASE_ANON_KEY", ""), backend.WithLogger(log))
	nav := NewTerminalNavigator(out, "/")
	appURL := resolver.Get("APP_URL", client.BaseURL())
	sessions := core.NewSessionManager(client, local, nav, core.DefaultSessionConfig(appURL), log)

	return &App{
		in:       bufio.NewReader(in),
		out:      out,
		logger:   log,
		Local:    local,
		Config:   resolver,
		Backend:  client,
		Nav:      nav,
		Sessions: sessions,
		logFile:  logFile,
	}, nil
}

func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// At places the user on path before a page-level operation runs.
func (a *App) At(path string) *App {
	a.Nav.Set(path)
	return a
}

// ask reads one line from the user, printing prompt first.
func (a *App) ask(prompt string) string {
	fmt.Fprint(a.out, prompt)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// Confirm asks a yes/no question on the terminal.
func (a *App) Confirm(prompt string) bool {
	switch strings.ToLower(a.ask(prompt + " [y/N]: ")) {
	case "y", "yes", "হ্যাঁ":
		return true
	}
	return false
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
