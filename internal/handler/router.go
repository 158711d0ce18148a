package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// TokenLimiter throttles the invitation token endpoints per client.
	TokenLimiter   *KeyedLimiter
	AllowedOrigins []string
}

// NewRouter builds the HTTP router.
func NewRouter(h *AdmissionHandler, log logrus.FieldLogger, cfg RouterConfig) chi.Router {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", HealthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Get("/members", h.ListMembers)
			r.Delete("/members/{email}", h.CancelMembership)
			r.Post("/invitations", h.SendInvitation)

			r.Get("/waitlist", h.GetWaitlist)
			r.Post("/waitlist", h.JoinWaitlist)
			r.Post("/waitlist/promote", h.PromoteWaitlist)
			r.Delete("/waitlist/{email}", h.LeaveWaitlist)
			r.Post("/waitlist/{email}/confirm", h.ConfirmWaitlistOffer)
		})
	})

	r.Route("/invitations/{token}", func(r chi.Router) {
		if cfg.TokenLimiter != nil {
			r.Use(RateLimit(cfg.TokenLimiter))
		}
		r.Post("/accept", h.AcceptInvitation)
		r.Post("/decline", h.DeclineInvitation)
	})

	return r
}
