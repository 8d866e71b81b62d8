package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetKV upserts a kv entry.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`), key, value, s.stamp())
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// GetKV returns a kv value; ErrNotFound when the key is unset.
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`SELECT value FROM kv WHERE key=?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get kv %s: %w", key, err)
	}
	return v.String, nil
}

// ListKV returns every kv entry whose key starts with prefix.
func (s *Store) ListKV(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT key, value FROM kv WHERE key LIKE ? ORDER BY key`), prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list kv: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[k] = v.String
	}
	return out, rows.Err()
}

// MarkJobRun records the completion time of a periodic job under "job_<name>_last".
func (s *Store) MarkJobRun(ctx context.Context, name string) error {
	return s.SetKV(ctx, JobKey(name), s.now().UTC().Format(time.RFC3339Nano))
}

// JobKey is the kv key a job's heartbeat is stored under.
func JobKey(name string) string { return "job_" + name + "_last" }
