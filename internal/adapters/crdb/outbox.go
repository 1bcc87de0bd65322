package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key`

// GetUnpublishedOutbox reads NEW records without claiming them; used for
// monitoring and tests. Publishing goes through DrainOutbox.
func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DrainOutbox claims up to limit NEW records with FOR UPDATE SKIP LOCKED,
// hands each to publish, and marks the successful ones PUBLISHED before
// committing. The row locks live for the whole transaction, so concurrent
// publisher instances never claim the same record. A record whose publish
// fails stays NEW and is retried on a later pass.
func (r *Repository) DrainOutbox(ctx context.Context, limit int, publish func(rec OutboxRecord) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			rows.Close()
			return 0, err
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range records {
		if err := publish(rec); err != nil {
			continue
		}
		_, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
		`, rec.ID, time.Now().UTC())
		if err != nil {
			return 0, err
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return published, nil
}
