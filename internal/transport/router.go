package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	CORSOrigins []string
	// Limiter guards uploads; nil disables rate limiting.
	Limiter RateLimiter
}

func NewRouter(h *handler, verifier TokenVerifier, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LogMiddleware)
	r.Use(WithRecover)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "")
	})

	r.Get("/health", h.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(Auth(verifier))

			r.Get("/auth/user", h.currentUser)

			upload := r.With()
			if cfg.Limiter != nil {
				upload = r.With(RateLimit(cfg.Limiter))
			}
			upload.Post("/upload", h.upload)

			r.Get("/conversions", h.list)
			r.Get("/conversions/{id}", h.get)
			r.Get("/conversions/{id}/preview", h.preview)
			r.Get("/conversions/{id}/download", h.download)
			r.Delete("/conversions/{id}", h.delete)
		})
	})

	return r
}
