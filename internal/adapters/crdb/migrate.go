package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	total_seats INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seats (
	event_id UUID NOT NULL REFERENCES events (id),
	seat_number INT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('available', 'on_hold', 'reserved')),
	PRIMARY KEY (event_id, seat_number)
);

CREATE TABLE IF NOT EXISTS holds (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	seat_number INT NOT NULL,
	user_id UUID NOT NULL,
	held_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	UNIQUE (event_id, seat_number),
	CHECK (expires_at > held_at)
);

CREATE INDEX IF NOT EXISTS holds_expires_at_idx ON holds (expires_at);
CREATE INDEX IF NOT EXISTS holds_user_event_idx ON holds (event_id, user_id);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	seat_number INT NOT NULL,
	user_id UUID NOT NULL,
	reserved_at TIMESTAMPTZ NOT NULL,
	UNIQUE (event_id, seat_number)
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

// Migrate bootstraps the schema. Statements are idempotent; safe to run on
// every startup.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
