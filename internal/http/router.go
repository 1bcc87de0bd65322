package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openticket/seat-reservations/internal/idempotency"
	"github.com/openticket/seat-reservations/internal/observability"
	"github.com/openticket/seat-reservations/internal/rateLimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/events", h.CreateEvent)
	r.Get("/v1/events", h.ListEvents)
	r.Get("/v1/events/{eventID}", h.GetEvent)
	r.Get("/v1/events/{eventID}/seats", h.ListSeats)
	r.Post("/v1/events/{eventID}/seats/{seatNo}/hold", h.CreateHold)
	r.Put("/v1/events/{eventID}/seats/{seatNo}/hold", h.RefreshHold)
	r.Delete("/v1/events/{eventID}/seats/{seatNo}/hold", h.CancelHold)
	r.Post("/v1/events/{eventID}/seats/{seatNo}/reservation", h.Reserve)
	r.Delete("/v1/events/{eventID}/seats/{seatNo}/reservation", h.CancelReservation)
	r.Get("/v1/events/{eventID}/reservations", h.ListReservations)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
