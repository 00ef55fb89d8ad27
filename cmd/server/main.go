package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mentalhealth-ai.bd/companion/internal/api"
	"mentalhealth-ai.bd/companion/internal/auth"
	"mentalhealth-ai.bd/companion/internal/config"
	"mentalhealth-ai.bd/companion/internal/logger"
	"mentalhealth-ai.bd/companion/internal/metrics"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/store"
)

const sessionSweepInterval = 15 * time.Minute

func main() {
	grantAdmin := flag.String("grant-admin", "", "Give the profile with this e-mail the admin role and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)
	log.Debug("service starting in DEBUG mode")

	dbStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbStore.Close()

	// Role elevation happens here and nowhere in the HTTP surface.
	if *grantAdmin != "" {
		if err := dbStore.SetRoleByEmail(*grantAdmin, model.RoleAdmin); err != nil {
			log.Error("failed to grant admin role", slog.String("email", *grantAdmin), slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("admin role granted", slog.String("email", *grantAdmin))
		return
	}

	authService := auth.NewService(dbStore, auth.NewTokenIssuer(cfg.JWTSecret), auth.ServiceConfig{
		SessionTTL:  cfg.SessionTTL,
		AutoConfirm: cfg.AutoConfirm,
		AdminEmails: cfg.AdminEmails,
		PublicURL:   cfg.PublicURL,
	}, nil, log)
	if cfg.GoogleOAuthEnabled() {
		authService.RegisterProvider("google", auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
		log.Info("google sign-in enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	limiter := api.NewRateLimiter(api.RateLimiterConfigPerMinute(cfg.AuthRatePerMinute, cfg.WriteRatePerMinute), collector)
	defer limiter.Stop()

	apiHandler := api.NewAPIHandler(authService, dbStore, cfg, collector, log)
	router := api.NewRouter(apiHandler, limiter, metrics.Handler(reg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sweepSessions(ctx, dbStore, log)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", slog.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not listen", slog.String("addr", serverAddr), slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
	}
	log.Info("server exiting gracefully")
}

// sweepSessions drops expired sessions until ctx ends.
func sweepSessions(ctx context.Context, st *store.Store, log *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := st.DeleteExpiredSessions(now)
			if err != nil {
				log.Warn("session sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", slog.Int64("count", n))
			}
		}
	}
}
