package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"mentalhealth-ai.bd/companion/internal/auth"
	"mentalhealth-ai.bd/companion/internal/config"
	"mentalhealth-ai.bd/companion/internal/metrics"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/security"
	"mentalhealth-ai.bd/companion/internal/store"
)

// DataStore is the table storage behind /rest/v1.
type DataStore interface {
	GetProfile(id string) (*model.UserProfile, error)
	InsertProfile(p *model.UserProfile) error
	ListProfiles(q store.ProfileQuery) ([]model.UserProfile, error)
	DeleteUser(id string) error
	InsertChatMessage(m *model.ChatMessage) error
	ListChatMessages(q store.ChatQuery) ([]model.ChatMessage, error)
	UpsertMood(e *model.MoodEntry) error
	ListMoods(userID, date string) ([]model.MoodEntry, error)
	ListPosts(q store.PostQuery) ([]model.BlogPost, error)
	GetPost(id string) (*model.BlogPost, error)
	InsertPost(p *model.BlogPost) error
	UpdatePost(p *model.BlogPost) error
	DeletePost(id string) error
	Overview(since time.Time) (*model.Overview, error)
}

type APIHandler struct {
	auth      *auth.Service
	data      DataStore
	cfg       *config.Config
	metrics   metrics.MetricsCollector
	sanitizer security.ContentSanitizer
	logger    *slog.Logger
}

func NewAPIHandler(authSvc *auth.Service, data DataStore, cfg *config.Config, mc metrics.MetricsCollector, logger *slog.Logger) *APIHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		auth:      authSvc,
		data:      data,
		cfg:       cfg,
		metrics:   mc,
		sanitizer: security.NewContentSanitizer(),
		logger:    logger,
	}
}

type ctxKey int

const principalKey ctxKey = iota

// Principal is the authenticated caller.
type Principal struct {
	User   *model.AuthUser
	Claims *auth.Claims
}

func principalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, CodeInvalidJWT, "Authorization header is required")
			return
		}

		user, claims, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.logger.Debug("rejected access token", slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, CodeInvalidJWT, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, &Principal{User: user, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyMiddleware requires the anon key in the apikey header when one is configured.
func (h *APIHandler) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AnonKey != "" && r.Header.Get("apikey") != h.cfg.AnonKey {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAdmin reads the caller's role from their profile. Any failure means no.
func (h *APIHandler) isAdmin(r *http.Request) bool {
	p := principalFrom(r.Context())
	if p == nil {
		return false
	}
	profile, err := h.data.GetProfile(p.User.ID)
	if err != nil {
		h.logger.Warn("role lookup failed", slog.String("user_id", p.User.ID), slog.Any("error", err))
		return false
	}
	return profile.IsAdmin()
}

// RequestLogger logs one line per request.
func (h *APIHandler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Metrics records status and latency under the matched route pattern.
func (h *APIHandler) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordRequest(route, status, time.Since(start))
	})
}

// Recoverer turns a panic into a JSON 500.
func (h *APIHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic in handler",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EnvHandler serves the public configuration. Only GET is allowed.
func (h *APIHandler) EnvHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.cfg.PublicEnv())
}
