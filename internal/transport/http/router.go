package http

import (
	"net/http"

	"github.com/bcbuzz/api/internal/application/auth"
	"github.com/bcbuzz/api/internal/config"
	"github.com/bcbuzz/api/internal/transport/http/handler"
	appmiddleware "github.com/bcbuzz/api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true, // the token cookie must survive cross-origin requests
		MaxAge:           300,
	}))

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:     deps.UserRepo,
		TesterRepo:   deps.TesterRepo,
		AdminRepo:    deps.AdminRepo,
		OTPRepo:      deps.OTPRepo,
		Mailer:       deps.Mailer,
		TokenSigner:  deps.JWTProvider,
		TesterDomain: cfg.TesterDomain,
		StrictNotify: cfg.Production(),
	})

	authMw := appmiddleware.Auth(deps.JWTProvider, authSvc)

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc, handler.CookieOptions{MaxAge: cfg.JWTExpiry})

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.With(sensitiveRL.Limit).Post("/signup", authH.Signup)
			r.With(sensitiveRL.Limit).Post("/complete-signup", authH.CompleteSignup)
			r.With(sensitiveRL.Limit).Post("/login", authH.Login)
			r.With(sensitiveRL.Limit).Post("/verify-otp", authH.VerifyOTP)
			r.With(sensitiveRL.Limit).Post("/resend-otp", authH.ResendOTP)
			r.With(sensitiveRL.Limit).Post("/forgot-password", authH.ForgotPassword)
			r.With(sensitiveRL.Limit).Post("/reset-password", authH.ResetPassword)
			r.Post("/logout", authH.Logout)

			// ── Authenticated routes ─────────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(authMw)
				r.Get("/me", authH.Me)
			})
		})
	})

	return r
}
