package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddQuestion appends a question to channel's log and returns its 1-based sequence number.
func (s *Store) AddQuestion(ctx context.Context, channel, creator, body string) (int, error) {
	channel = NormalizeKey(channel)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add question: %w", err)
	}
	defer rollback(tx)

	var next int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(seq), 0) + 1 FROM questions WHERE channel=?`), channel).Scan(&next); err != nil {
		return 0, fmt.Errorf("next question seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO questions (channel, seq, creator, body, asked_at) VALUES (?, ?, ?, ?, ?)`),
		channel, next, creator, body, s.stamp()); err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add question: %w", err)
	}
	return next, nil
}

// GetQuestion returns question seq of channel's log together with the log's size.
// ErrNotFound when no question has that number.
func (s *Store) GetQuestion(ctx context.Context, channel string, seq int) (Question, int, error) {
	channel = NormalizeKey(channel)
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM questions WHERE channel=?`), channel).Scan(&total); err != nil {
		return Question{}, 0, fmt.Errorf("count questions: %w", err)
	}
	q := Question{Channel: channel}
	var asked int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT seq, creator, body, asked_at FROM questions WHERE channel=? AND seq=?`), channel, seq).
		Scan(&q.Seq, &q.Creator, &q.Body, &asked)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, total, ErrNotFound
	}
	if err != nil {
		return Question{}, total, fmt.Errorf("get question: %w", err)
	}
	q.AskedAt = fromMillis(asked)
	return q, total, nil
}

// ClearQuestions deletes channel's whole question log; numbering restarts at 1.
func (s *Store) ClearQuestions(ctx context.Context, channel string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM questions WHERE channel=?`), NormalizeKey(channel))
	if err != nil {
		return 0, fmt.Errorf("clear questions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
