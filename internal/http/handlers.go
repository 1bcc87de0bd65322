package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/openticket/seat-reservations/internal/adapters/mongo"
	redisadapter "github.com/openticket/seat-reservations/internal/adapters/redis"
	"github.com/openticket/seat-reservations/internal/booking"
	"github.com/openticket/seat-reservations/internal/config"
	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/openticket/seat-reservations/internal/idempotency"
	"github.com/openticket/seat-reservations/internal/observability"
)

const seatSnapshotTTL = 5 * time.Second

type Handlers struct {
	cfg     *config.Config
	booking *booking.Service
	cache   *redisadapter.Cache
	idemp   *idempotency.Idempotency
	audit   *mongoadapter.AuditLogger
	logger  observability.Logger
}

func NewHandlers(cfg *config.Config, svc *booking.Service, cache *redisadapter.Cache, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		booking: svc,
		cache:   cache,
		idemp:   idemp,
		audit:   audit,
		logger:  logger,
	}
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		TotalSeats int    `json:"total_seats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := h.booking.CreateEvent(r.Context(), req.Name, req.TotalSeats)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":          event.ID,
		"name":        event.Name,
		"total_seats": event.TotalSeats,
	})
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.booking.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		resp = append(resp, map[string]interface{}{
			"id":          event.ID,
			"name":        event.Name,
			"total_seats": event.TotalSeats,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}

	event, err := h.booking.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          event.ID,
		"name":        event.Name,
		"total_seats": event.TotalSeats,
	})
}

func (h *Handlers) ListSeats(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetSeatSnapshot(r.Context(), eventID.String()); err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	seats, err := h.booking.ListSeats(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, 0, len(seats))
	for _, seat := range seats {
		resp = append(resp, map[string]interface{}{
			"number": seat.Number,
			"status": seat.Status,
		})
	}
	data, _ := json.Marshal(resp)
	if h.cache != nil {
		h.cache.SetSeatSnapshot(r.Context(), eventID.String(), data, seatSnapshotTTL)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	eventID, seatNo, ok := h.seatRef(w, r)
	if !ok {
		return
	}
	if h.replayIdempotent(w, r) {
		return
	}

	var req struct {
		UserID  uuid.UUID `json:"user_id"`
		Seconds int       `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Seconds == 0 {
		req.Seconds = h.cfg.MaxHoldSeconds
	}

	hold, err := h.booking.CreateHold(r.Context(), eventID, seatNo, req.UserID, req.Seconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.invalidateSnapshot(r, eventID)
	h.auditHold(r, "hold.created", *hold)
	h.recordIdempotent(w, r, http.StatusCreated, map[string]interface{}{
		"seat_number": hold.SeatNumber,
		"user_id":     hold.UserID,
		"expires_at":  hold.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) RefreshHold(w http.ResponseWriter, r *http.Request) {
	eventID, seatNo, ok := h.seatRef(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID  uuid.UUID `json:"user_id"`
		Seconds int       `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Seconds == 0 {
		req.Seconds = h.cfg.MaxHoldSeconds
	}

	hold, err := h.booking.RefreshHold(r.Context(), eventID, seatNo, req.UserID, req.Seconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditHold(r, "hold.refreshed", *hold)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"seat_number": hold.SeatNumber,
		"expires_at":  hold.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) CancelHold(w http.ResponseWriter, r *http.Request) {
	eventID, seatNo, ok := h.seatRef(w, r)
	if !ok {
		return
	}

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.booking.CancelHold(r.Context(), eventID, seatNo, userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.invalidateSnapshot(r, eventID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"released":    true,
		"seat_number": seatNo,
	})
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	eventID, seatNo, ok := h.seatRef(w, r)
	if !ok {
		return
	}
	if h.replayIdempotent(w, r) {
		return
	}

	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.booking.Reserve(r.Context(), eventID, seatNo, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.invalidateSnapshot(r, eventID)
	h.auditReservation(r, "reservation.created", *res)
	h.recordIdempotent(w, r, http.StatusCreated, map[string]interface{}{
		"reservation_id": res.ID,
		"user_id":        res.UserID,
		"seat_number":    res.SeatNumber,
		"reserved_at":    res.ReservedAt.Format(time.RFC3339),
	})
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	eventID, seatNo, ok := h.seatRef(w, r)
	if !ok {
		return
	}

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.booking.CancelReservation(r.Context(), eventID, seatNo, userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.invalidateSnapshot(r, eventID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled":   true,
		"seat_number": seatNo,
	})
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}

	reservations, err := h.booking.ListReservations(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, 0, len(reservations))
	for _, res := range reservations {
		resp = append(resp, map[string]interface{}{
			"reservation_id": res.ID,
			"user_id":        res.UserID,
			"seat_number":    res.SeatNumber,
			"reserved_at":    res.ReservedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// ----- helpers -----

func (h *Handlers) eventID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) seatRef(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	seatNo, err := strconv.Atoi(chi.URLParam(r, "seatNo"))
	if err != nil || seatNo < 1 {
		http.Error(w, "invalid seat number", http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	return eventID, seatNo, true
}

// userID reads the caller's user id from the request body, falling back to
// the user_id query parameter for clients that cannot send a DELETE body.
func (h *Handlers) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.UserID == uuid.Nil {
		if q := r.URL.Query().Get("user_id"); q != "" {
			id, err := uuid.Parse(q)
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return uuid.Nil, false
			}
			req.UserID = id
		}
	}
	if req.UserID == uuid.Nil {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return req.UserID, true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrConflict):
		observability.SeatConflicts.WithLabelValues(r.Method + " " + r.URL.Path).Inc()
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		h.logger.WithError(err).Error("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// invalidateSnapshot drops the cached seat map after any seat-state change.
func (h *Handlers) invalidateSnapshot(r *http.Request, eventID uuid.UUID) {
	if h.cache != nil {
		h.cache.InvalidateSeatSnapshot(r.Context(), eventID.String())
	}
}

// replayIdempotent returns true when a recorded response was replayed.
func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	if h.idemp == nil {
		return false
	}
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		h.logger.WithError(err).Warn("idempotency lookup failed")
		return false
	}
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) recordIdempotent(w http.ResponseWriter, r *http.Request, status int, body map[string]interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idemp != nil {
		h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
	}
}

func (h *Handlers) auditHold(r *http.Request, action string, hold domain.Hold) {
	if h.audit == nil {
		return
	}
	h.audit.LogHold(r.Context(), action, hold)
}

func (h *Handlers) auditReservation(r *http.Request, action string, res domain.Reservation) {
	if h.audit == nil {
		return
	}
	h.audit.LogReservation(r.Context(), action, res)
}
