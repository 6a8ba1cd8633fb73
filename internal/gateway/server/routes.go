package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"shiyin/internal/gateway/handler"
	"shiyin/internal/gateway/middleware"
)

type RouterConfig struct {
	Sessions       *handler.SessionHandler
	Health         http.Handler
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", cfg.Health.ServeHTTP)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Route("/api/sessions", cfg.Sessions.Routes)
	return r
}
