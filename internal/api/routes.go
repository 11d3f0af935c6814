package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/walletscope/backend/internal/config"
	"github.com/walletscope/backend/internal/job"
	"github.com/walletscope/backend/internal/ratelimit"
	"github.com/walletscope/backend/internal/ws"
)

func NewRouter(cfg *config.Config, mgr *job.Manager, limiter *ratelimit.Limiter, hub *ws.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	h := NewHandlers(cfg, mgr, hub)
	wsServer := ws.NewServer(hub, log)

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Only submission is admission-controlled; polls stay cheap.
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(RateLimit(limiter, log))
		}
		r.Post("/api/batches", h.SubmitBatch)
	})
	r.Get("/api/batches/{id}", h.GetBatch)

	r.Get("/ws/events", wsServer.HandleEvents)

	return r
}
