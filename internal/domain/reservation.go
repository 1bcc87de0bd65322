package domain

import (
	"time"

	"github.com/google/uuid"
)

func NewReservation(eventID uuid.UUID, seatNo int, userID uuid.UUID, now time.Time) Reservation {
	return Reservation{
		ID:         uuid.New(),
		EventID:    eventID,
		SeatNumber: seatNo,
		UserID:     userID,
		ReservedAt: now,
	}
}
