// Package broadcast drains the outbound message queue at a fixed rate.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/confbot/chat"
	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/telemetry"
)

// Queue is the part of the store the broadcaster consumes.
type Queue interface {
	Dequeue(ctx context.Context, deliver func(db.QueuedMessage) error) (db.QueuedMessage, bool, error)
	QueueDepth(ctx context.Context) (int, error)
}

// Sender delivers one line to a channel or nick.
type Sender interface {
	Say(target, text string) error
}

// Broadcaster sends at most one queued message per Tick.
type Broadcaster struct {
	queue  Queue
	sender Sender
	logger *slog.Logger
}

// New returns a Broadcaster reading from queue and writing to sender.
func New(queue Queue, sender Sender) *Broadcaster {
	return &Broadcaster{
		queue:  queue,
		sender: sender,
		logger: slog.Default().With(slog.String("component", "broadcaster")),
	}
}

// Tick delivers the oldest queued message, if any. When the transport is down the message stays
// at the head of the queue for the next tick; any other send failure drops it so the messages
// behind it keep flowing.
func (b *Broadcaster) Tick(ctx context.Context) error {
	var dropped error
	msg, ok, err := b.queue.Dequeue(ctx, func(m db.QueuedMessage) error {
		err := b.sender.Say(m.Destination, m.Body)
		if err != nil && !Retryable(err) {
			dropped = err
			return nil
		}
		return err
	})
	if err != nil {
		if msg.ID != 0 {
			telemetry.Inc(telemetry.SendFailures)
			return fmt.Errorf("broadcast message %d to %s: %w", msg.ID, msg.Destination, err)
		}
		return fmt.Errorf("broadcast: %w", err)
	}
	if !ok {
		return nil
	}
	if dropped != nil {
		telemetry.Inc(telemetry.MessagesDropped)
		b.logger.Warn("broadcast dropped undeliverable message",
			slog.Int64("id", msg.ID),
			slog.String("destination", msg.Destination),
			slog.Any("err", dropped))
		return nil
	}
	telemetry.Inc(telemetry.MessagesSent)

	depth, err := b.queue.QueueDepth(ctx)
	if err != nil {
		b.logger.Warn("queue depth unavailable", slog.Any("err", err))
		depth = -1
	} else {
		telemetry.SetQueueDepth(depth)
	}
	b.logger.Info("broadcast sent",
		slog.Int64("id", msg.ID),
		slog.String("destination", msg.Destination),
		slog.Int("queue_depth", depth))
	return nil
}

// Retryable reports whether a failed send should be retried later: the transport was down or the
// tick ran out of time.
func Retryable(err error) bool {
	return errors.Is(err, chat.ErrNotConnected) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
