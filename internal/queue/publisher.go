package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parkmate/internal/logging"
)

// dialTimeout bounds how long a booking waits on an unreachable broker.
const dialTimeout = 2 * time.Second

// Publisher sends SlotEvents to a durable queue on the default exchange.
// A connection is dialled per publish; slot events are rare enough that a
// long-lived channel is not worth its reconnect handling.
type Publisher struct {
	url   string
	queue string
}

// NewPublisher returns a Publisher for the broker at url.  An empty queue
// name selects DefaultQueue.
func NewPublisher(url, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue}
}

// Publish marshals ev and publishes it as a persistent message.  Errors are
// logged and returned so callers can decide to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev SlotEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		logging.Warn(ctx).Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		logging.Warn(ctx).Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
