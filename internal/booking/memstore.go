package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openticket/seat-reservations/internal/domain"
)

type seatKey struct {
	eventID uuid.UUID
	seatNo  int
}

// OutboxEntry is a domain event captured by MemStore instead of a real
// outbox table.
type OutboxEntry struct {
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
}

// MemStore is an in-memory Store used by tests and local development. Its
// transaction serializes callers with a mutex, which gives the same
// per-seat ordering the database row lock provides, and restores a
// snapshot on error so failed operations leave no writes behind.
type MemStore struct {
	mu           sync.Mutex
	events       map[uuid.UUID]domain.Event
	seats        map[seatKey]domain.Seat
	holds        map[uuid.UUID]domain.Hold
	reservations map[uuid.UUID]domain.Reservation
	outbox       []OutboxEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		events:       map[uuid.UUID]domain.Event{},
		seats:        map[seatKey]domain.Seat{},
		holds:        map[uuid.UUID]domain.Hold{},
		reservations: map[uuid.UUID]domain.Reservation{},
	}
}

func (m *MemStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.clone()
	if err := fn(&memTx{store: m}); err != nil {
		m.events = snapshot.events
		m.seats = snapshot.seats
		m.holds = snapshot.holds
		m.reservations = snapshot.reservations
		m.outbox = snapshot.outbox
		return err
	}
	return nil
}

func (m *MemStore) clone() *MemStore {
	c := NewMemStore()
	for k, v := range m.events {
		c.events[k] = v
	}
	for k, v := range m.seats {
		c.seats[k] = v
	}
	for k, v := range m.holds {
		c.holds[k] = v
	}
	for k, v := range m.reservations {
		c.reservations[k] = v
	}
	c.outbox = append([]OutboxEntry(nil), m.outbox...)
	return c
}

// Seat returns the current state of one seat.
func (m *MemStore) Seat(eventID uuid.UUID, seatNo int) (domain.Seat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seat, ok := m.seats[seatKey{eventID, seatNo}]
	return seat, ok
}

// HoldBySeat returns the live hold row for a seat, if any.
func (m *MemStore) HoldBySeat(eventID uuid.UUID, seatNo int) (domain.Hold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.EventID == eventID && h.SeatNumber == seatNo {
			return h, true
		}
	}
	return domain.Hold{}, false
}

// OutboxTypes lists the event types enqueued so far, in order.
func (m *MemStore) OutboxTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.outbox))
	for i, e := range m.outbox {
		types[i] = e.EventType
	}
	return types
}

type memTx struct {
	store *MemStore
}

func (t *memTx) InsertEvent(ctx context.Context, event domain.Event) error {
	t.store.events[event.ID] = event
	return nil
}

func (t *memTx) InsertSeats(ctx context.Context, seats []domain.Seat) error {
	for _, seat := range seats {
		t.store.seats[seatKey{seat.EventID, seat.Number}] = seat
	}
	return nil
}

func (t *memTx) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	event, ok := t.store.events[eventID]
	if !ok {
		return nil, nil
	}
	return &event, nil
}

func (t *memTx) ListEvents(ctx context.Context) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(t.store.events))
	for _, e := range t.store.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (t *memTx) ListSeats(ctx context.Context, eventID uuid.UUID) ([]domain.Seat, error) {
	var seats []domain.Seat
	for _, s := range t.store.seats {
		if s.EventID == eventID {
			seats = append(seats, s)
		}
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].Number < seats[j].Number })
	return seats, nil
}

func (t *memTx) SeatForUpdate(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Seat, error) {
	seat, ok := t.store.seats[seatKey{eventID, seatNo}]
	if !ok {
		return nil, nil
	}
	return &seat, nil
}

func (t *memTx) SetSeatStatus(ctx context.Context, eventID uuid.UUID, seatNo int, status domain.SeatStatus) error {
	key := seatKey{eventID, seatNo}
	seat, ok := t.store.seats[key]
	if !ok {
		return domain.ErrNotFound
	}
	seat.Status = status
	t.store.seats[key] = seat
	return nil
}

func (t *memTx) HoldBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Hold, error) {
	for _, h := range t.store.holds {
		if h.EventID == eventID && h.SeatNumber == seatNo {
			hold := h
			return &hold, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertHold(ctx context.Context, hold domain.Hold) error {
	for _, h := range t.store.holds {
		if h.EventID == hold.EventID && h.SeatNumber == hold.SeatNumber {
			return domain.Conflictf("seat is already on hold")
		}
	}
	t.store.holds[hold.ID] = hold
	return nil
}

func (t *memTx) UpdateHoldExpiry(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error {
	hold, ok := t.store.holds[holdID]
	if !ok {
		return domain.ErrNotFound
	}
	hold.ExpiresAt = expiresAt
	t.store.holds[holdID] = hold
	return nil
}

func (t *memTx) DeleteHold(ctx context.Context, holdID uuid.UUID) error {
	delete(t.store.holds, holdID)
	return nil
}

func (t *memTx) CountActiveHolds(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error) {
	count := 0
	for _, h := range t.store.holds {
		if h.EventID == eventID && h.UserID == userID && h.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ExpiredHolds(ctx context.Context, eventID uuid.UUID, now time.Time) ([]domain.Hold, error) {
	var holds []domain.Hold
	for _, h := range t.store.holds {
		if eventID != uuid.Nil && h.EventID != eventID {
			continue
		}
		if h.Expired(now) {
			holds = append(holds, h)
		}
	}
	return holds, nil
}

func (t *memTx) ReservationBySeat(ctx context.Context, eventID uuid.UUID, seatNo int) (*domain.Reservation, error) {
	for _, r := range t.store.reservations {
		if r.EventID == eventID && r.SeatNumber == seatNo {
			res := r
			return &res, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertReservation(ctx context.Context, res domain.Reservation) error {
	for _, r := range t.store.reservations {
		if r.EventID == res.EventID && r.SeatNumber == res.SeatNumber {
			return domain.Conflictf("seat is not available (status: %s)", domain.SeatReserved)
		}
	}
	t.store.reservations[res.ID] = res
	return nil
}

func (t *memTx) DeleteReservation(ctx context.Context, resID uuid.UUID) error {
	if _, ok := t.store.reservations[resID]; !ok {
		return domain.ErrNotFound
	}
	delete(t.store.reservations, resID)
	return nil
}

func (t *memTx) UserHasReservation(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	for _, r := range t.store.reservations {
		if r.EventID == eventID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListReservations(ctx context.Context, eventID uuid.UUID) ([]domain.Reservation, error) {
	var reservations []domain.Reservation
	for _, r := range t.store.reservations {
		if r.EventID == eventID {
			reservations = append(reservations, r)
		}
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].ReservedAt.Before(reservations[j].ReservedAt)
	})
	return reservations, nil
}

func (t *memTx) EnqueueOutbox(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) error {
	t.store.outbox = append(t.store.outbox, OutboxEntry{AggregateID: aggregateID, EventType: eventType, Payload: payload})
	return nil
}
