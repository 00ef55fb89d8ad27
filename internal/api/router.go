package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, limiter *RateLimiter, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiHandler.RequestLogger)
	r.Use(apiHandler.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(apiHandler.Metrics)

	r.Get("/health", apiHandler.HealthHandler)
	r.HandleFunc("/api/env", apiHandler.EnvHandler)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(apiHandler.APIKeyMiddleware)

		// Credential endpoints, limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(limiter.AuthMiddleware)
			r.Post("/signup", apiHandler.SignupHandler)
			r.Post("/token", apiHandler.TokenHandler)
			r.Post("/recover", apiHandler.RecoverHandler)
		})

		r.Get("/verify", apiHandler.VerifyHandler)
		r.Get("/authorize", apiHandler.AuthorizeHandler)
		r.Get("/callback", apiHandler.CallbackHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)
			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/user", apiHandler.GetUserHandler)
			r.With(limiter.WriteMiddleware).Put("/user", apiHandler.UpdateUserHandler)
		})
	})

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(apiHandler.APIKeyMiddleware)
		r.Use(apiHandler.JWTAuthMiddleware)

		// Reads
		r.Get("/user_profiles", apiHandler.ListProfilesHandler)
		r.Get("/user_profiles/{id}", apiHandler.GetProfileHandler)
		r.Get("/chat_messages", apiHandler.ListChatMessagesHandler)
		r.Get("/mood_entries", apiHandler.ListMoodsHandler)
		r.Get("/blog_posts", apiHandler.ListPostsHandler)
		r.Get("/blog_posts/{id}", apiHandler.GetPostHandler)

		// Writes, limited per user
		r.Group(func(r chi.Router) {
			r.Use(limiter.WriteMiddleware)
			r.Post("/user_profiles", apiHandler.CreateProfileHandler)
			r.Delete("/user_profiles/{id}", apiHandler.DeleteProfileHandler)
			r.Post("/chat_messages", apiHandler.CreateChatMessageHandler)
			r.Put("/mood_entries", apiHandler.UpsertMoodHandler)
			r.Post("/blog_posts", apiHandler.CreatePostHandler)
			r.Patch("/blog_posts/{id}", apiHandler.UpdatePostHandler)
			r.Delete("/blog_posts/{id}", apiHandler.DeletePostHandler)
		})

		r.Post("/rpc/admin_overview", apiHandler.AdminOverviewHandler)
	})

	return r
}
