package crdb

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openticket/seat-reservations/internal/booking"
	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/openticket/seat-reservations/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(&seatTx{tx: tx})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// seatTx issues the booking service's statements against one pgx
// transaction.
type seatTx struct {
	tx pgx.Tx
}

func (s *seatTx) InsertEvent(ctx context.Context, event domain.Event) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO events (id, name, total_seats, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.Name, event.TotalSeats, event.CreatedAt)
	return err
}

func (s *seatTx) InsertSeats(ctx context.Context, seats []domain.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(seats))
	for i, seat := range seats {
		rows[i] = []interface{}{seat.EventID, seat.Number, string(seat.Status)}
	}
	_, err := s.tx.CopyFrom(ctx,
		pgx.Identifier{"seats"},
		[]string{"event_id", "seat_number", "status"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (s *seatTx) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := s.tx.QueryRow(ctx, `
		SELECT id, name, total_seats, created_at
		FROM events WHERE id = $1
	`, eventID).Scan(&event.ID, &event.Name, &event.TotalSeats, &event.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *seatTx) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, name, total_seats, created_at
		FROM events ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.Name, &event.TotalSeats, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *seatTx) ListSeats(ctx context.Context, eventID uuid.UUID) ([]domain.Seat, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT event_id, seat_number, status
		FROM seats WHERE event_id = $1 ORDER BY seat_number ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(&seat.EventID, &seat.Number, &seat.Status); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

func (s *seatTx) SeatForUpdate(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Seat, error) {
	var seat domain.Seat
	err := s.tx.QueryRow(ctx, `
		SELECT event_id, seat_number, status
		FROM seats WHERE event_id = $1 AND seat_number = $2
		FOR UPDATE
	`, eventID, seatNo).Scan(&seat.EventID, &seat.Number, &seat.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seat, nil
}

func (s *seatTx) SetSeatStatus(ctx context.Context, eventID uuid.UUID, seatNo int, status domain.SeatStatus) error {
	result, err := s.tx.Exec(ctx, `
		UPDATE seats SET status = $3 WHERE event_id = $1 AND seat_number = $2
	`, eventID, seatNo, string(status))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *seatTx) HoldBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Hold, error) {
	var hold domain.Hold
	err := s.tx.QueryRow(ctx, `
		SELECT id, event_id, seat_number, user_id, held_at, expires_at
		FROM holds WHERE event_id = $1 AND seat_number = $2
	`, eventID, seatNo).Scan(&hold.ID, &hold.EventID, &hold.SeatNumber, &hold.UserID, &hold.HeldAt, &hold.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (s *seatTx) InsertHold(ctx context.Context, hold domain.Hold) error {
	result, err := s.tx.Exec(ctx, `
		INSERT INTO holds (id, event_id, seat_number, user_id, held_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, seat_number) DO NOTHING
	`, hold.ID, hold.EventID, hold.SeatNumber, hold.UserID, hold.HeldAt, hold.ExpiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.Conflictf("seat is already on hold")
	}
	return nil
}

func (s *seatTx) UpdateHoldExpiry(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error {
	result, err := s.tx.Exec(ctx, `
		UPDATE holds SET expires_at = $2 WHERE id = $1
	`, holdID, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *seatTx) DeleteHold(ctx context.Context, holdID uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM holds WHERE id = $1`, holdID)
	return err
}

func (s *seatTx) CountActiveHolds(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := s.tx.QueryRow(ctx, `
		SELECT count(*) FROM holds
		WHERE event_id = $1 AND user_id = $2 AND expires_at > $3
	`, eventID, userID, now).Scan(&count)
	return count, err
}

func (s *seatTx) ExpiredHolds(ctx context.Context, eventID uuid.UUID, now time.Time) ([]domain.Hold, error) {
	query := `
		SELECT id, event_id, seat_number, user_id, held_at, expires_at
		FROM holds WHERE expires_at <= $1
	`
	args := []interface{}{now}
	if eventID != uuid.Nil {
		query += ` AND event_id = $2`
		args = append(args, eventID)
	}

	rows, err := s.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var hold domain.Hold
		if err := rows.Scan(&hold.ID, &hold.EventID, &hold.SeatNumber, &hold.UserID, &hold.HeldAt, &hold.ExpiresAt); err != nil {
			return nil, err
		}
		holds = append(holds, hold)
	}
	return holds, rows.Err()
}

func (s *seatTx) ReservationBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Reservation, error) {
	var res domain.Reservation
	err := s.tx.QueryRow(ctx, `
		SELECT id, event_id, seat_number, user_id, reserved_at
		FROM reservations WHERE event_id = $1 AND seat_number = $2
	`, eventID, seatNo).Scan(&res.ID, &res.EventID, &res.SeatNumber, &res.UserID, &res.ReservedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *seatTx) InsertReservation(ctx context.Context, res domain.Reservation) error {
	result, err := s.tx.Exec(ctx, `
		INSERT INTO reservations (id, event_id, seat_number, user_id, reserved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, seat_number) DO NOTHING
	`, res.ID, res.EventID, res.SeatNumber, res.UserID, res.ReservedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.Conflictf("seat is not available (status: %s)", domain.SeatReserved)
	}
	return nil
}

func (s *seatTx) DeleteReservation(ctx context.Context, resID uuid.UUID) error {
	result, err := s.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, resID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *seatTx) UserHasReservation(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations WHERE event_id = $1 AND user_id = $2
		)
	`, eventID, userID).Scan(&exists)
	return exists, err
}

func (s *seatTx) ListReservations(ctx context.Context, eventID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, event_id, seat_number, user_id, reserved_at
		FROM reservations WHERE event_id = $1 ORDER BY reserved_at ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.EventID, &res.SeatNumber, &res.UserID, &res.ReservedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (s *seatTx) EnqueueOutbox(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) error {
	record := OutboxRecord{
		ID:            uuid.New(),
		AggregateType: strings.SplitN(eventType, ".", 2)[0],
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     uuid.New().String(),
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}
