package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openticket/seat-reservations/internal/adapters/crdb"
	"github.com/openticket/seat-reservations/internal/booking"
	"github.com/openticket/seat-reservations/internal/config"
	"github.com/openticket/seat-reservations/internal/observability"
	"golang.org/x/sync/errgroup"
)

// The expiry worker reclaims expired-hold storage out of band. Request
// handling never depends on it: every mutating request sweeps inline
// before evaluating seat state.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	svc := booking.NewService(repo, booking.Config{
		MaxHoldSeconds:                cfg.MaxHoldSeconds,
		MaxHoldsPerUserPerEvent:       cfg.MaxHoldsPerUserPerEvent,
		OneReservationPerUserPerEvent: cfg.OneReservationPerUserPerEvent,
	}, logger)

	worker := NewExpiryWorker(repo, svc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

type ExpiryWorker struct {
	repo   *crdb.Repository
	svc    *booking.Service
	logger observability.Logger
}

func NewExpiryWorker(repo *crdb.Repository, svc *booking.Service, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, svc: svc, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweepAll(ctx); err != nil {
				w.logger.WithError(err).Error("sweep pass failed")
			}
		}
	}
}

// sweepAll partitions the sweep by event so one contended event cannot
// stall the rest; events sweep concurrently with a bounded group.
func (w *ExpiryWorker) sweepAll(ctx context.Context) error {
	eventIDs, err := w.eventsWithExpiredHolds(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, eventID := range eventIDs {
		eventID := eventID
		g.Go(func() error {
			purged, err := w.svc.SweepExpired(gctx, eventID)
			if err != nil {
				return err
			}
			if purged > 0 {
				w.logger.WithField("event_id", eventID).WithField("purged", purged).Info("expired holds purged")
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *ExpiryWorker) eventsWithExpiredHolds(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := w.repo.WithTx(ctx, func(tx booking.Tx) error {
		holds, err := tx.ExpiredHolds(ctx, uuid.Nil, time.Now().UTC())
		if err != nil {
			return err
		}
		seen := map[uuid.UUID]bool{}
		for _, h := range holds {
			if !seen[h.EventID] {
				seen[h.EventID] = true
				ids = append(ids, h.EventID)
			}
		}
		return nil
	})
	return ids, err
}
