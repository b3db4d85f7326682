package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	// RateLimit is requests per minute per client IP on /api; 0 disables it.
	RateLimit int
}

// NewRouter mounts the chat socket, the REST API, health and metrics.
func NewRouter(api *API, ws *WSGateway, opts RouterOptions, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", api.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws/chat", ws)

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(rateLimit(opts.RateLimit))
		}
		r.Get("/sessions", api.ListSessions)
		r.Get("/messages", api.ListMessages)
		r.Get("/messages/sent", api.FindSent)
		r.Route("/whatsapp", func(r chi.Router) {
			r.Post("/send", api.SendWhatsApp)
			r.Get("/updates", api.Updates)
		})
	})
	return r
}
