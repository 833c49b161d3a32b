package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parkmate/internal/logging"
)

// Consumer reads SlotEvents from the queue and appends one line per event
// to an audit file.
type Consumer struct {
	url     string
	queue   string
	logPath string
}

// NewConsumer returns a Consumer writing to logPath (default
// logs/parking.log).
func NewConsumer(url, queue, logPath string) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if logPath == "" {
		logPath = filepath.Join("logs", "parking.log")
	}
	return &Consumer{url: url, queue: queue, logPath: logPath}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.  Malformed messages are rejected without requeue so the
// consumer never spins on them.
func (c *Consumer) Run(ctx context.Context) error {
	log := logging.WithContext(ctx).With().Str("component", "slot-consumer").Logger()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logging.Warn(ctx).Err(err).Msg("slot-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				logging.Warn(ctx).Err(err).Msg("slot-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev SlotEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatEvent(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatEvent renders ev as a single audit line ending in a newline.
func FormatEvent(ev SlotEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | slot_id=%d", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.SlotID)
	if ev.RecordID != 0 {
		fmt.Fprintf(&b, " | record_id=%d", ev.RecordID)
	}
	if ev.OwnerName != "" {
		fmt.Fprintf(&b, " | owner=%q | vehicle=%q", ev.OwnerName, ev.VehicleNumber)
	}
	if !ev.EntryTime.IsZero() {
		fmt.Fprintf(&b, " | entry=%s | exit=%s | duration=%dm",
			ev.EntryTime.UTC().Format(time.RFC3339), ev.ExitTime.UTC().Format(time.RFC3339), ev.DurationMinutes)
	}
	if ev.Caller != "" {
		fmt.Fprintf(&b, " | caller=%s", ev.Caller)
	}
	if ev.Warning != "" {
		fmt.Fprintf(&b, " | warning=%q", ev.Warning)
	}
	b.WriteByte('\n')
	return b.String()
}
