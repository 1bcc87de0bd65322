package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openticket/seat-reservations/internal/domain"
)

// Store opens one transaction per operation. Implementations must roll the
// transaction back when fn returns an error and must map storage-level
// serialization failures to domain.ErrSerializationFailure.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of statements the booking service issues inside a single
// transaction. SeatForUpdate takes an exclusive row lock on the seat; all
// status reads that drive a transition go through it.
type Tx interface {
	InsertEvent(ctx context.Context, event domain.Event) error
	InsertSeats(ctx context.Context, seats []domain.Seat) error
	GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListSeats(ctx context.Context, eventID uuid.UUID) ([]domain.Seat, error)

	// SeatForUpdate returns nil when the seat does not exist for the event.
	SeatForUpdate(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Seat, error)
	SetSeatStatus(ctx context.Context, eventID uuid.UUID, seatNo int, status domain.SeatStatus) error

	// HoldBySeat returns nil when the seat has no hold row.
	HoldBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Hold, error)
	InsertHold(ctx context.Context, hold domain.Hold) error
	UpdateHoldExpiry(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error
	DeleteHold(ctx context.Context, holdID uuid.UUID) error
	CountActiveHolds(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error)
	// ExpiredHolds lists holds with expires_at <= now; eventID == uuid.Nil
	// means all events.
	ExpiredHolds(ctx context.Context, eventID uuid.UUID, now time.Time) ([]domain.Hold, error)

	// ReservationBySeat returns nil when the seat has no reservation row.
	ReservationBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Reservation, error)
	InsertReservation(ctx context.Context, res domain.Reservation) error
	DeleteReservation(ctx context.Context, resID uuid.UUID) error
	UserHasReservation(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	ListReservations(ctx context.Context, eventID uuid.UUID) ([]domain.Reservation, error)

	// EnqueueOutbox records a domain event in the transactional outbox.
	EnqueueOutbox(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) error
}
