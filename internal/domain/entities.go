package domain

import (
	"time"

	"github.com/google/uuid"
)

// SeatStatus is the single source of truth for a seat's availability.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatOnHold    SeatStatus = "on_hold"
	SeatReserved  SeatStatus = "reserved"
)

type Event struct {
	ID         uuid.UUID
	Name       string
	TotalSeats int
	CreatedAt  time.Time
}

// Seat is identified by (EventID, Number); numbers are assigned 1..N at
// event creation and never change.
type Seat struct {
	EventID uuid.UUID
	Number  int
	Status  SeatStatus
}

// Hold is a time-boxed claim on one seat. At most one hold exists per seat.
type Hold struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	SeatNumber int
	UserID     uuid.UUID
	HeldAt     time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the hold is past its expiry at the given instant.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Reservation is a durable claim on one seat, released only by explicit
// cancellation.
type Reservation struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	SeatNumber int
	UserID     uuid.UUID
	ReservedAt time.Time
}
