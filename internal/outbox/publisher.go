package outbox

import (
	"context"
	"time"

	"github.com/openticket/seat-reservations/internal/adapters/crdb"
	"github.com/openticket/seat-reservations/internal/adapters/rabbit"
	"github.com/openticket/seat-reservations/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher drains NEW outbox records and forwards them to the message
// broker. At-least-once: a record is marked published only after a
// successful broker ack; consumers dedupe on the message id.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.WithError(err).Error("outbox batch failed")
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	published, err := p.repo.DrainOutbox(ctx, 50, func(rec crdb.OutboxRecord) error {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("event_type", rec.EventType).Warn("publish failed, will retry")
			return err
		}
		observability.OutboxLag.Set(time.Now().UTC().Sub(rec.CreatedAt).Seconds())
		return nil
	})
	if err != nil {
		return err
	}
	if published > 0 {
		p.logger.WithField("published", published).Debug("outbox batch published")
	}
	return nil
}
