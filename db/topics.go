package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TopicExists reports whether a topic has been created.
func (s *Store) TopicExists(ctx context.Context, topic string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM topics WHERE name=?`), NormalizeKey(topic)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("topic exists: %w", err)
	}
	return true, nil
}

// JoinTopic subscribes member to topic, creating the topic first when it does not exist.
// Permission to create a topic is the caller's decision. added is false when member was
// already subscribed.
func (s *Store) JoinTopic(ctx context.Context, topic, member string) (added bool, err error) {
	topic = NormalizeKey(topic)
	if topic == "" || member == "" {
		return false, fmt.Errorf("topic and member are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin join topic: %w", err)
	}
	defer rollback(tx)

	stamp := s.stamp()
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO topics (name, created_by, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`), topic, member, stamp); err != nil {
		return false, fmt.Errorf("create topic: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`INSERT INTO subscriptions (topic, member, joined_at) VALUES (?, ?, ?) ON CONFLICT (topic, member) DO NOTHING`), topic, member, stamp)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit join topic: %w", err)
	}
	return n > 0, nil
}

// TopicSubscribers returns a topic's members in join order. ErrNotFound when the topic does not
// exist.
func (s *Store) TopicSubscribers(ctx context.Context, topic string) ([]string, error) {
	topic = NormalizeKey(topic)
	ok, err := s.TopicExists(ctx, topic)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT member FROM subscriptions WHERE topic=? ORDER BY joined_at ASC, member ASC`), topic)
	if err != nil {
		return nil, fmt.Errorf("topic subscribers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListTopics returns every topic name sorted case-insensitively.
func (s *Store) ListTopics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM topics`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}
