package domain

import (
	"time"

	"github.com/google/uuid"
)

func NewHold(eventID uuid.UUID, seatNo int, userID uuid.UUID, now time.Time, ttl time.Duration) Hold {
	return Hold{
		ID:         uuid.New(),
		EventID:    eventID,
		SeatNumber: seatNo,
		UserID:     userID,
		HeldAt:     now,
		ExpiresAt:  now.Add(ttl),
	}
}
