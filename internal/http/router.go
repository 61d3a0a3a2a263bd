package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/signalix/emailauth/internal/http/handlers"
	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/middleware"
)

const rateWindow = 10 * time.Minute

// RouterDeps holds everything the router wires together
type RouterDeps struct {
	Auth     *handlers.AuthHandler
	Email    *handlers.EmailHandler
	Sessions middleware.SessionValidator
	Logger   logging.Logger
}

// Router is the HTTP handler of the service. Close releases the rate limiters.
type Router struct {
	*chi.Mux
	limiters []*middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	// per-IP limits on the unauthenticated endpoints
	requestLimiter := middleware.NewRateLimiter(rateWindow, 10)
	authenticateLimiter := middleware.NewRateLimiter(rateWindow, 20)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/login", func(r chi.Router) {
			r.With(middleware.RateLimitMiddleware(requestLimiter, middleware.GetIPKey)).
				Post("/request", d.Auth.HandleRequestLogin)
			r.With(middleware.RateLimitMiddleware(authenticateLimiter, middleware.GetIPKey)).
				Post("/authenticate", d.Auth.HandleAuthenticate)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(d.Sessions, d.Logger))
				r.Put("/logout", d.Auth.HandleLogout)
				r.Put("/logout-all", d.Auth.HandleLogoutAll)
			})
		})

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Sessions, d.Logger))
			r.Post("/email/request-change", d.Email.HandleRequestChange)
			r.Post("/email/verify-change", d.Email.HandleVerifyChange)
			r.Get("/me", d.Auth.HandleMe)
		})
	})

	return &Router{Mux: r, limiters: []*middleware.RateLimiter{requestLimiter, authenticateLimiter}}
}

// Close stops the background work of the router
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Close()
	}
}
