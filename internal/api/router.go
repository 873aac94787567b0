package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

type RouterConfig struct {
	Service *waitlist.Service
	PgPool  *pgxpool.Pool // nil in memory mode; health reports it as skipped
	Redis   *redis.Client // nil in memory mode
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Waitlist
	r.Post("/waitlist", joinWaitlistHandler(cfg.Service))
	r.Delete("/waitlist/{id}", leaveWaitlistHandler(cfg.Service))
	r.Get("/waitlist/{id}/position", queuePositionHandler(cfg.Service))

	// Slots (cancellation/reschedule collaborator + admin)
	r.Post("/slots/freed", slotFreedHandler(cfg.Service))
	r.Post("/slots/{id}/cancel", cancelSlotHandler(cfg.Service))

	// Offers (patient-facing collaborator)
	r.Post("/offers/{id}/accept", acceptOfferHandler(cfg.Service))
	r.Post("/offers/{id}/decline", declineOfferHandler(cfg.Service))

	// Patient queries
	r.Get("/patients/{id}/waitlist", listPatientWaitlistHandler(cfg.Service))
	r.Get("/patients/{id}/offers", listPatientOffersHandler(cfg.Service))

	return r
}
