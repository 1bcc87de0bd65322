package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/openticket/seat-reservations/internal/observability"
)

const (
	EventHoldCreated          = "hold.created"
	EventHoldRefreshed        = "hold.refreshed"
	EventHoldReleased         = "hold.released"
	EventHoldExpired          = "hold.expired"
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
)

type Config struct {
	MaxHoldSeconds                int
	MaxHoldsPerUserPerEvent       int
	OneReservationPerUserPerEvent bool
}

// Service owns the seat state machine: hold create/refresh/cancel,
// reservation create/cancel, and the lazy expiry sweep that runs inside
// the same transaction before any status-sensitive read.
type Service struct {
	store  Store
	cfg    Config
	logger observability.Logger
	now    func() time.Time
}

func NewService(store Store, cfg Config, logger observability.Logger) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests use it to simulate expiry
// without sleeping.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) CreateEvent(ctx context.Context, name string, totalSeats int) (*domain.Event, error) {
	if name == "" {
		return nil, domain.InvalidInputf("name required")
	}
	if totalSeats < 1 || totalSeats > 1000 {
		return nil, domain.InvalidInputf("total_seats must be between 1 and 1000")
	}

	event := domain.Event{
		ID:         uuid.New(),
		Name:       name,
		TotalSeats: totalSeats,
		CreatedAt:  s.now(),
	}
	seats := make([]domain.Seat, totalSeats)
	for i := range seats {
		seats[i] = domain.Seat{EventID: event.ID, Number: i + 1, Status: domain.SeatAvailable}
	}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}
		return tx.InsertSeats(ctx, seats)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	var event *domain.Event
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		event, err = tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.NotFoundf("event not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		events, err = tx.ListEvents(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Service) ListSeats(ctx context.Context, eventID uuid.UUID) ([]domain.Seat, error) {
	var seats []domain.Seat
	err := s.store.WithTx(ctx, func(tx Tx) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.NotFoundf("event not found")
		}
		seats, err = tx.ListSeats(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// CreateHold places a time-boxed claim on a seat. The seat row is locked
// for the duration of the transaction; the sweep runs first so an expired
// hold never blocks a new one.
func (s *Service) CreateHold(ctx context.Context, eventID uuid.UUID, seatNo int, userID uuid.UUID, seconds int) (*domain.Hold, error) {
	if err := s.validateHoldInput(userID, seconds); err != nil {
		return nil, err
	}

	var hold domain.Hold
	err := s.store.WithTx(ctx, func(tx Tx) error {
		now := s.now()
		if _, err := s.sweep(ctx, tx, eventID, now); err != nil {
			return err
		}

		seat, err := tx.SeatForUpdate(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if seat == nil {
			return domain.NotFoundf("seat not found for this event")
		}

		switch seat.Status {
		case domain.SeatReserved:
			return domain.Conflictf("seat is already reserved")
		case domain.SeatOnHold:
			held, err := tx.HoldBySeat(ctx, eventID, seatNo)
			if err != nil {
				return err
			}
			if held != nil {
				if held.UserID == userID {
					return domain.Conflictf("seat is already held by you, refresh the hold instead")
				}
				return domain.Conflictf("seat is already on hold")
			}
			// Stale status with no backing hold row; the sweep above has
			// already reconciled comparable rows, treat as available.
		}

		count, err := tx.CountActiveHolds(ctx, eventID, userID, now)
		if err != nil {
			return err
		}
		if count >= s.cfg.MaxHoldsPerUserPerEvent {
			return domain.Conflictf("hold quota reached for this event (max %d)", s.cfg.MaxHoldsPerUserPerEvent)
		}

		hold = domain.NewHold(eventID, seatNo, userID, now, time.Duration(seconds)*time.Second)
		if err := tx.InsertHold(ctx, hold); err != nil {
			return err
		}
		if err := tx.SetSeatStatus(ctx, eventID, seatNo, domain.SeatOnHold); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, hold.ID, EventHoldCreated, map[string]interface{}{
			"hold_id":     hold.ID,
			"event_id":    eventID,
			"seat_number": seatNo,
			"user_id":     userID,
			"expires_at":  hold.ExpiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	observability.HoldsCreated.Inc()
	return &hold, nil
}

// RefreshHold extends the expiry of the caller's own hold.
func (s *Service) RefreshHold(ctx context.Context, eventID uuid.UUID, seatNo int, userID uuid.UUID, seconds int) (*domain.Hold, error) {
	if err := s.validateHoldInput(userID, seconds); err != nil {
		return nil, err
	}

	var hold domain.Hold
	err := s.store.WithTx(ctx, func(tx Tx) error {
		now := s.now()
		if _, err := s.sweep(ctx, tx, eventID, now); err != nil {
			return err
		}

		seat, err := tx.SeatForUpdate(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if seat == nil {
			return domain.NotFoundf("seat not found for this event")
		}

		held, err := tx.HoldBySeat(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if held == nil {
			return domain.NotFoundf("no active hold for this seat")
		}
		if held.UserID != userID {
			return domain.Forbiddenf("hold belongs to another user")
		}

		held.ExpiresAt = now.Add(time.Duration(seconds) * time.Second)
		if err := tx.UpdateHoldExpiry(ctx, held.ID, held.ExpiresAt); err != nil {
			return err
		}
		hold = *held
		return s.enqueue(ctx, tx, hold.ID, EventHoldRefreshed, map[string]interface{}{
			"hold_id":    hold.ID,
			"expires_at": hold.ExpiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// CancelHold releases the caller's own hold and frees the seat.
func (s *Service) CancelHold(ctx context.Context, eventID uuid.UUID, seatNo int, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return domain.InvalidInputf("user_id required")
	}

	return s.store.WithTx(ctx, func(tx Tx) error {
		now := s.now()
		if _, err := s.sweep(ctx, tx, eventID, now); err != nil {
			return err
		}

		seat, err := tx.SeatForUpdate(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if seat == nil {
			return domain.NotFoundf("seat not found for this event")
		}

		held, err := tx.HoldBySeat(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if held == nil {
			return domain.NotFoundf("no active hold for this seat")
		}
		if held.UserID != userID {
			return domain.Forbiddenf("hold belongs to another user")
		}

		if err := tx.DeleteHold(ctx, held.ID); err != nil {
			return err
		}
		if err := tx.SetSeatStatus(ctx, eventID, seatNo, domain.SeatAvailable); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, held.ID, EventHoldReleased, map[string]interface{}{
			"hold_id":     held.ID,
			"event_id":    eventID,
			"seat_number": seatNo,
		})
	})
}

// Reserve converts a seat into a durable reservation. A prior hold is not
// required; a live hold by the same user is consumed atomically, a hold by
// anyone else is a conflict.
func (s *Service) Reserve(ctx context.Context, eventID uuid.UUID, seatNo int, userID uuid.UUID) (*domain.Reservation, error) {
	if userID == uuid.Nil {
		return nil, domain.InvalidInputf("user_id required")
	}

	var res domain.Reservation
	err := s.store.WithTx(ctx, func(tx Tx) error {
		now := s.now()
		if _, err := s.sweep(ctx, tx, eventID, now); err != nil {
			return err
		}

		seat, err := tx.SeatForUpdate(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if seat == nil {
			return domain.NotFoundf("seat not found for this event")
		}

		switch seat.Status {
		case domain.SeatReserved:
			return domain.Conflictf("seat is not available (status: %s)", seat.Status)
		case domain.SeatOnHold:
			held, err := tx.HoldBySeat(ctx, eventID, seatNo)
			if err != nil {
				return err
			}
			if held != nil && held.UserID != userID {
				return domain.Conflictf("seat is not available (status: %s)", seat.Status)
			}
			if held != nil {
				if err := tx.DeleteHold(ctx, held.ID); err != nil {
					return err
				}
			}
		}

		if s.cfg.OneReservationPerUserPerEvent {
			exists, err := tx.UserHasReservation(ctx, eventID, userID)
			if err != nil {
				return err
			}
			if exists {
				return domain.Conflictf("user already has a reservation for this event")
			}
		}

		res = domain.NewReservation(eventID, seatNo, userID, now)
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		if err := tx.SetSeatStatus(ctx, eventID, seatNo, domain.SeatReserved); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, res.ID, EventReservationCreated, map[string]interface{}{
			"reservation_id": res.ID,
			"event_id":       eventID,
			"seat_number":    seatNo,
			"user_id":        userID,
		})
	})
	if err != nil {
		return nil, err
	}
	observability.ReservationsCreated.Inc()
	return &res, nil
}

// CancelReservation deletes the caller's own reservation and frees the seat.
func (s *Service) CancelReservation(ctx context.Context, eventID uuid.UUID, seatNo int, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return domain.InvalidInputf("user_id required")
	}

	return s.store.WithTx(ctx, func(tx Tx) error {
		seat, err := tx.SeatForUpdate(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if seat == nil {
			return domain.NotFoundf("seat not found for this event")
		}

		res, err := tx.ReservationBySeat(ctx, eventID, seatNo)
		if err != nil {
			return err
		}
		if res == nil {
			return domain.NotFoundf("no reservation for this seat")
		}
		if res.UserID != userID {
			return domain.Forbiddenf("reservation belongs to another user")
		}

		if err := tx.DeleteReservation(ctx, res.ID); err != nil {
			return err
		}
		if err := tx.SetSeatStatus(ctx, eventID, seatNo, domain.SeatAvailable); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, res.ID, EventReservationCancelled, map[string]interface{}{
			"reservation_id": res.ID,
			"event_id":       eventID,
			"seat_number":    seatNo,
		})
	})
}

// ListReservations returns the event's reservations ordered by reserved_at
// ascending. An event with no reservations yields an empty slice.
func (s *Service) ListReservations(ctx context.Context, eventID uuid.UUID) ([]domain.Reservation, error) {
	reservations := []domain.Reservation{}
	err := s.store.WithTx(ctx, func(tx Tx) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.NotFoundf("event not found")
		}
		list, err := tx.ListReservations(ctx, eventID)
		if err != nil {
			return err
		}
		if list != nil {
			reservations = list
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// SweepExpired purges expired holds in their own transaction. The expiry
// worker calls it periodically to reclaim storage promptly; request paths
// never depend on it because every mutation sweeps inline first.
func (s *Service) SweepExpired(ctx context.Context, eventID uuid.UUID) (int, error) {
	var purged int
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		purged, err = s.sweep(ctx, tx, eventID, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// sweep deletes holds whose expiry has passed and frees their seats. The
// seat is reset only when still on_hold; a status already advanced to
// reserved is left alone.
func (s *Service) sweep(ctx context.Context, tx Tx, eventID uuid.UUID, now time.Time) (int, error) {
	expired, err := tx.ExpiredHolds(ctx, eventID, now)
	if err != nil {
		return 0, err
	}
	for _, hold := range expired {
		if err := tx.DeleteHold(ctx, hold.ID); err != nil {
			return 0, err
		}
		seat, err := tx.SeatForUpdate(ctx, hold.EventID, hold.SeatNumber)
		if err != nil {
			return 0, err
		}
		if seat != nil && seat.Status == domain.SeatOnHold {
			if err := tx.SetSeatStatus(ctx, hold.EventID, hold.SeatNumber, domain.SeatAvailable); err != nil {
				return 0, err
			}
		}
		err = s.enqueue(ctx, tx, hold.ID, EventHoldExpired, map[string]interface{}{
			"hold_id":     hold.ID,
			"event_id":    hold.EventID,
			"seat_number": hold.SeatNumber,
		})
		if err != nil {
			return 0, err
		}
		observability.HoldsExpired.Inc()
	}
	return len(expired), nil
}

func (s *Service) validateHoldInput(userID uuid.UUID, seconds int) error {
	if userID == uuid.Nil {
		return domain.InvalidInputf("user_id required")
	}
	if seconds <= 0 || seconds > s.cfg.MaxHoldSeconds {
		return domain.InvalidInputf("seconds must be between 1 and %d", s.cfg.MaxHoldSeconds)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, tx Tx, aggregateID uuid.UUID, eventType string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, aggregateID, eventType, payload)
}
