package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Enqueue appends one outbound message and returns its id.
func (s *Store) Enqueue(ctx context.Context, destination, body string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO outbound_queue (destination, body, enqueued_at) VALUES (?, ?, ?) RETURNING id`),
		destination, body, s.stamp()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// EnqueueMany appends the same body for every destination, in order, in one transaction.
func (s *Store) EnqueueMany(ctx context.Context, destinations []string, body string) (int, error) {
	if len(destinations) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue: %w", err)
	}
	defer rollback(tx)

	stamp := s.stamp()
	for _, dest := range destinations {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO outbound_queue (destination, body, enqueued_at) VALUES (?, ?, ?)`), dest, body, stamp); err != nil {
			return 0, fmt.Errorf("enqueue %s: %w", dest, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enqueue: %w", err)
	}
	return len(destinations), nil
}

// Dequeue claims the oldest queued message, passes it to deliver, and deletes it, all inside one
// transaction. If deliver fails the claim is rolled back and the message stays at the head of the
// queue. ok is false when the queue is empty.
//
// On Postgres the claim takes a row lock with SKIP LOCKED, so concurrent consumers never deliver
// the same message twice.
func (s *Store) Dequeue(ctx context.Context, deliver func(QueuedMessage) error) (msg QueuedMessage, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QueuedMessage{}, false, fmt.Errorf("begin dequeue: %w", err)
	}
	defer rollback(tx)

	query := `SELECT id, destination, body, enqueued_at FROM outbound_queue ORDER BY id ASC LIMIT 1`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	var enqueued int64
	err = tx.QueryRowContext(ctx, query).Scan(&msg.ID, &msg.Destination, &msg.Body, &enqueued)
	if errors.Is(err, sql.ErrNoRows) {
		return QueuedMessage{}, false, nil
	}
	if err != nil {
		return QueuedMessage{}, false, fmt.Errorf("select queue head: %w", err)
	}
	msg.EnqueuedAt = fromMillis(enqueued)

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM outbound_queue WHERE id=?`), msg.ID); err != nil {
		return QueuedMessage{}, false, fmt.Errorf("delete queue head: %w", err)
	}
	if deliver != nil {
		if err := deliver(msg); err != nil {
			return msg, false, fmt.Errorf("deliver message %d: %w", msg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return msg, false, fmt.Errorf("commit dequeue: %w", err)
	}
	return msg, true, nil
}

// QueueDepth returns the number of pending outbound messages.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM outbound_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
