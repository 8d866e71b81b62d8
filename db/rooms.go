package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NormalizeKey is the form channel names and meeting links are stored and compared in.
func NormalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CreateRoom inserts a room. The channel name and meeting link must each be unused
// (case-insensitive); otherwise ErrConflict is returned and nothing is written.
func (s *Store) CreateRoom(ctx context.Context, creator, link, channel string) (Room, error) {
	channel = NormalizeKey(channel)
	link = NormalizeKey(link)
	if channel == "" || link == "" {
		return Room{}, fmt.Errorf("channel and link are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, fmt.Errorf("begin create room: %w", err)
	}
	defer rollback(tx)

	var n int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM rooms WHERE channel_name=? OR meeting_link=?`), channel, link).Scan(&n); err != nil {
		return Room{}, fmt.Errorf("check room uniqueness: %w", err)
	}
	if n > 0 {
		return Room{}, fmt.Errorf("room %s: %w", channel, ErrConflict)
	}

	r := Room{Creator: creator, ChannelName: channel, MeetingLink: link}
	var created int64
	err = tx.QueryRowContext(ctx, s.q(`INSERT INTO rooms (creator, channel_name, meeting_link, created_at) VALUES (?, ?, ?, ?) RETURNING id, created_at`),
		creator, channel, link, s.stamp()).Scan(&r.ID, &created)
	if err != nil {
		if isUniqueViolation(err) {
			return Room{}, fmt.Errorf("room %s: %w", channel, ErrConflict)
		}
		return Room{}, fmt.Errorf("insert room: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("commit create room: %w", err)
	}
	r.CreatedAt = fromMillis(created)
	return r, nil
}

// DeleteRoom removes one room by channel name.
func (s *Store) DeleteRoom(ctx context.Context, channel string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM rooms WHERE channel_name=?`), NormalizeKey(channel))
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveRooms deletes every listed channel's room in one transaction and returns how many rows
// were removed. Channels without a room are ignored.
func (s *Store) RemoveRooms(ctx context.Context, channels []string) (int64, error) {
	if len(channels) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove rooms: %w", err)
	}
	defer rollback(tx)

	var total int64
	for _, ch := range channels {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM rooms WHERE channel_name=?`), NormalizeKey(ch))
		if err != nil {
			return 0, fmt.Errorf("remove room %s: %w", ch, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove rooms: %w", err)
	}
	return total, nil
}

// ListRooms returns up to limit rooms in primary-key order starting at offset.
func (s *Store) ListRooms(ctx context.Context, offset, limit int) ([]Room, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, creator, channel_name, meeting_link, created_at FROM rooms ORDER BY id ASC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return scanRooms(rows)
}

// AllRooms returns every room in primary-key order.
func (s *Store) AllRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, creator, channel_name, meeting_link, created_at FROM rooms ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all rooms: %w", err)
	}
	return scanRooms(rows)
}

// GetRoom looks a room up by channel name.
func (s *Store) GetRoom(ctx context.Context, channel string) (Room, error) {
	var r Room
	var created int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, creator, channel_name, meeting_link, created_at FROM rooms WHERE channel_name=?`), NormalizeKey(channel)).
		Scan(&r.ID, &r.Creator, &r.ChannelName, &r.MeetingLink, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	r.CreatedAt = fromMillis(created)
	return r, nil
}

// CountRooms returns the number of open rooms.
func (s *Store) CountRooms(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM rooms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return n, nil
}

// EnsureRooms creates the given rooms in order, skipping any whose channel or link already exists.
// Only ChannelName and MeetingLink are read. It returns the number of rooms created.
func (s *Store) EnsureRooms(ctx context.Context, creator string, rooms []Room) (int, error) {
	created := 0
	for _, r := range rooms {
		_, err := s.CreateRoom(ctx, creator, r.MeetingLink, r.ChannelName)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func scanRooms(rows *sql.Rows) ([]Room, error) {
	defer rows.Close()
	var out []Room
	for rows.Next() {
		var r Room
		var created int64
		if err := rows.Scan(&r.ID, &r.Creator, &r.ChannelName, &r.MeetingLink, &created); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
