package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openticket/seat-reservations/internal/adapters/crdb"
	"github.com/openticket/seat-reservations/internal/booking"
	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRepo(t *testing.T, ctx context.Context) *crdb.Repository {
	t.Helper()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func seedEvent(t *testing.T, ctx context.Context, repo *crdb.Repository, totalSeats int) uuid.UUID {
	t.Helper()

	event := domain.Event{
		ID:         uuid.New(),
		Name:       "test event",
		TotalSeats: totalSeats,
		CreatedAt:  time.Now().UTC(),
	}
	seats := make([]domain.Seat, totalSeats)
	for i := range seats {
		seats[i] = domain.Seat{EventID: event.ID, Number: i + 1, Status: domain.SeatAvailable}
	}
	err := repo.WithTx(ctx, func(tx booking.Tx) error {
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}
		return tx.InsertSeats(ctx, seats)
	})
	if err != nil {
		t.Fatal(err)
	}
	return event.ID
}

func TestRepository_HoldFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo := startRepo(t, ctx)
	eventID := seedEvent(t, ctx, repo, 3)

	now := time.Now().UTC()
	hold := domain.NewHold(eventID, 1, uuid.New(), now, time.Minute)
	err := repo.WithTx(ctx, func(tx booking.Tx) error {
		if err := tx.InsertHold(ctx, hold); err != nil {
			return err
		}
		return tx.SetSeatStatus(ctx, eventID, 1, domain.SeatOnHold)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// A second hold on the same seat hits the unique constraint.
	conflict := domain.NewHold(eventID, 1, uuid.New(), now, time.Minute)
	err = repo.WithTx(ctx, func(tx booking.Tx) error {
		return tx.InsertHold(ctx, conflict)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict error, got %v", err)
	}

	err = repo.WithTx(ctx, func(tx booking.Tx) error {
		seat, err := tx.SeatForUpdate(ctx, eventID, 1)
		if err != nil {
			return err
		}
		if seat == nil || seat.Status != domain.SeatOnHold {
			t.Errorf("expected seat 1 on_hold, got %+v", seat)
		}

		found, err := tx.HoldBySeat(ctx, eventID, 1)
		if err != nil {
			return err
		}
		if found == nil || found.ID != hold.ID {
			t.Errorf("expected hold %s, got %+v", hold.ID, found)
		}

		count, err := tx.CountActiveHolds(ctx, eventID, hold.UserID, now)
		if err != nil {
			return err
		}
		if count != 1 {
			t.Errorf("expected 1 active hold, got %d", count)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRepository_ExpiredHolds(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo := startRepo(t, ctx)
	eventID := seedEvent(t, ctx, repo, 3)

	now := time.Now().UTC()
	hold := domain.NewHold(eventID, 2, uuid.New(), now, time.Second)
	err := repo.WithTx(ctx, func(tx booking.Tx) error {
		return tx.InsertHold(ctx, hold)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx booking.Tx) error {
		expired, err := tx.ExpiredHolds(ctx, eventID, now.Add(2*time.Second))
		if err != nil {
			return err
		}
		if len(expired) != 1 || expired[0].ID != hold.ID {
			t.Errorf("expected hold %s expired, got %+v", hold.ID, expired)
		}

		live, err := tx.ExpiredHolds(ctx, eventID, now)
		if err != nil {
			return err
		}
		if len(live) != 0 {
			t.Errorf("expected no expired holds yet, got %+v", live)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRepository_ReservationFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo := startRepo(t, ctx)
	eventID := seedEvent(t, ctx, repo, 3)

	userID := uuid.New()
	res := domain.NewReservation(eventID, 1, userID, time.Now().UTC())
	err := repo.WithTx(ctx, func(tx booking.Tx) error {
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		if err := tx.SetSeatStatus(ctx, eventID, 1, domain.SeatReserved); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, res.ID, booking.EventReservationCreated, []byte(`{}`))
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Same seat again conflicts on the unique constraint.
	dup := domain.NewReservation(eventID, 1, uuid.New(), time.Now().UTC())
	err = repo.WithTx(ctx, func(tx booking.Tx) error {
		return tx.InsertReservation(ctx, dup)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict error, got %v", err)
	}

	err = repo.WithTx(ctx, func(tx booking.Tx) error {
		exists, err := tx.UserHasReservation(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if !exists {
			t.Error("expected reservation to exist for user")
		}

		list, err := tx.ListReservations(ctx, eventID)
		if err != nil {
			return err
		}
		if len(list) != 1 || list[0].ID != res.ID {
			t.Errorf("expected reservation %s, got %+v", res.ID, list)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].EventType != booking.EventReservationCreated {
		t.Errorf("expected one reservation.created outbox record, got %+v", records)
	}

	// A failed publish leaves the record NEW for the next pass.
	published, err := repo.DrainOutbox(ctx, 10, func(rec crdb.OutboxRecord) error {
		return errors.New("broker unavailable")
	})
	if err != nil {
		t.Fatal(err)
	}
	if published != 0 {
		t.Errorf("expected nothing published, got %d", published)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("expected record retained after failed publish, got %+v", records)
	}

	published, err = repo.DrainOutbox(ctx, 10, func(rec crdb.OutboxRecord) error {
		if rec.EventType != booking.EventReservationCreated {
			t.Errorf("expected reservation.created, got %s", rec.EventType)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if published != 1 {
		t.Errorf("expected one record published, got %d", published)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected outbox drained, got %+v", records)
	}
}
