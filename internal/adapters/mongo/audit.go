package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/openticket/seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger writes one document per state-changing operation, after
// commit, best effort. A lost audit entry never fails the request.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogAction(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHold(ctx context.Context, action string, hold domain.Hold) error {
	data := map[string]interface{}{
		"hold_id":     hold.ID,
		"event_id":    hold.EventID,
		"seat_number": hold.SeatNumber,
		"expires_at":  hold.ExpiresAt.Format(time.RFC3339),
	}
	return a.LogAction(ctx, action, hold.UserID, data)
}

func (a *AuditLogger) LogReservation(ctx context.Context, action string, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"event_id":       res.EventID,
		"seat_number":    res.SeatNumber,
		"reserved_at":    res.ReservedAt.Format(time.RFC3339),
	}
	return a.LogAction(ctx, action, res.UserID, data)
}
