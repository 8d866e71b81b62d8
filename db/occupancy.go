package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RecordSample appends one occupancy sample for channel. The room check and the insert happen in
// one transaction; ErrNotFound is returned (and nothing written) when channel has no open room.
func (s *Store) RecordSample(ctx context.Context, channel string, members []string) (OccupancySample, error) {
	channel = NormalizeKey(channel)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OccupancySample{}, fmt.Errorf("begin record sample: %w", err)
	}
	defer rollback(tx)

	var n int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM rooms WHERE channel_name=?`), channel).Scan(&n); err != nil {
		return OccupancySample{}, fmt.Errorf("check room for sample: %w", err)
	}
	if n == 0 {
		return OccupancySample{}, ErrNotFound
	}

	smp := OccupancySample{
		Channel:     channel,
		MemberCount: len(members),
		MemberList:  strings.Join(members, ","),
	}
	stamp := s.stamp()
	err = tx.QueryRowContext(ctx, s.q(`INSERT INTO occupancy_samples (channel, member_count, member_list, sampled_at) VALUES (?, ?, ?, ?) RETURNING id`),
		smp.Channel, smp.MemberCount, smp.MemberList, stamp).Scan(&smp.ID)
	if err != nil {
		return OccupancySample{}, fmt.Errorf("insert sample: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return OccupancySample{}, fmt.Errorf("commit record sample: %w", err)
	}
	smp.SampledAt = fromMillis(stamp)
	return smp, nil
}

// LatestOccupancy returns the most recent sample of every channel that still has an open room,
// ordered by channel name.
func (s *Store) LatestOccupancy(ctx context.Context) ([]OccupancySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.channel, s.member_count, s.member_list, s.sampled_at
		FROM occupancy_samples s
		JOIN rooms r ON r.channel_name = s.channel
		WHERE s.id = (SELECT MAX(i.id) FROM occupancy_samples i WHERE i.channel = s.channel)
		ORDER BY s.channel ASC`)
	if err != nil {
		return nil, fmt.Errorf("latest occupancy: %w", err)
	}
	defer rows.Close()
	var out []OccupancySample
	for rows.Next() {
		var smp OccupancySample
		var sampled int64
		if err := rows.Scan(&smp.ID, &smp.Channel, &smp.MemberCount, &smp.MemberList, &sampled); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.SampledAt = fromMillis(sampled)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// CountSamples returns the number of stored samples for channel.
func (s *Store) CountSamples(ctx context.Context, channel string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM occupancy_samples WHERE channel=?`), NormalizeKey(channel)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// AuditCursor returns the counts recorded by the previous audit cycle keyed by channel.
func (s *Store) AuditCursor(ctx context.Context) (map[string]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, last_known_count, sample_id, audited_at FROM audit_cursor`)
	if err != nil {
		return nil, fmt.Errorf("read audit cursor: %w", err)
	}
	defer rows.Close()
	out := make(map[string]AuditEntry)
	for rows.Next() {
		var e AuditEntry
		var audited int64
		if err := rows.Scan(&e.Channel, &e.LastKnownCount, &e.SampleID, &audited); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.AuditedAt = fromMillis(audited)
		out[e.Channel] = e
	}
	return out, rows.Err()
}

// ReplaceAuditCursor deletes every cursor row and inserts entries in a single transaction, so a
// failure part way leaves the previous cycle intact.
func (s *Store) ReplaceAuditCursor(ctx context.Context, entries []AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace audit cursor: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_cursor`); err != nil {
		return fmt.Errorf("clear audit cursor: %w", err)
	}
	stamp := s.stamp()
	for _, e := range entries {
		audited := stamp
		if !e.AuditedAt.IsZero() {
			audited = e.AuditedAt.UTC().UnixMilli()
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO audit_cursor (channel, last_known_count, sample_id, audited_at) VALUES (?, ?, ?, ?)`),
			NormalizeKey(e.Channel), e.LastKnownCount, e.SampleID, audited); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", e.Channel, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit cursor: %w", err)
	}
	return nil
}

// TrimSamples deletes samples taken before cutoff. The latest sample of each channel is always
// kept so the audit and metrics views stay populated.
func (s *Store) TrimSamples(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM occupancy_samples
		WHERE sampled_at < ?
		AND id NOT IN (SELECT MAX(id) FROM occupancy_samples GROUP BY channel)`), cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("trim samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
