package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/confbot/telemetry"
)

// DefaultChannelLimit is the channel count above which admins are warned.
const DefaultChannelLimit = 105

// LimitAlert is the warning queued to every admin channel.
const LimitAlert = "ALERT! Channel Limit Approaching"

// Snapshot maps each channel to [member_count, "comma,joined,members"].
type Snapshot map[string][2]any

// TakeSnapshot builds the current snapshot from the latest samples.
func TakeSnapshot(ctx context.Context, store Store) (Snapshot, error) {
	latest, err := store.LatestOccupancy(ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest occupancy: %w", err)
	}
	snap := make(Snapshot, len(latest))
	for _, s := range latest {
		snap[s.Channel] = [2]any{s.MemberCount, s.MemberList}
	}
	return snap, nil
}

// MetricsWriter writes the snapshot to a JSON file, replacing it wholesale each tick.
type MetricsWriter struct {
	store  Store
	path   string
	logger *slog.Logger
}

// NewMetricsWriter returns a writer for path.
func NewMetricsWriter(store Store, path string) *MetricsWriter {
	return &MetricsWriter{
		store:  store,
		path:   path,
		logger: slog.Default().With(slog.String("component", "occupancy_metrics")),
	}
}

// Tick writes the current snapshot.
func (m *MetricsWriter) Tick(ctx context.Context) error {
	snap, err := TakeSnapshot(ctx, m.store)
	if err != nil {
		return err
	}
	telemetry.SetKnownChannels(len(snap))
	if err := WriteSnapshot(m.path, snap); err != nil {
		return err
	}
	m.logger.Debug("metrics snapshot written", slog.String("path", m.path), slog.Int("channels", len(snap)))
	return nil
}

// WriteSnapshot writes snap to path through a temporary file and rename, so readers never see a
// partial document.
func WriteSnapshot(path string, snap Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".occupancy-*.json")
	if err != nil {
		return fmt.Errorf("create metrics temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := json.NewEncoder(tmp).Encode(snap); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

// LimitGuard queues a warning to the admin channels while more channels are known than the limit
// allows.
type LimitGuard struct {
	store  Store
	admins []string
	limit  int
	logger *slog.Logger
}

// NewLimitGuard returns a guard warning admins above limit channels.
func NewLimitGuard(store Store, admins []string, limit int) *LimitGuard {
	if limit <= 0 {
		limit = DefaultChannelLimit
	}
	return &LimitGuard{
		store:  store,
		admins: admins,
		limit:  limit,
		logger: slog.Default().With(slog.String("component", "channel_limit")),
	}
}

// Tick enqueues LimitAlert for every admin channel when the known channel count exceeds the limit.
func (g *LimitGuard) Tick(ctx context.Context) error {
	latest, err := g.store.LatestOccupancy(ctx)
	if err != nil {
		return fmt.Errorf("read latest occupancy: %w", err)
	}
	telemetry.SetKnownChannels(len(latest))
	if len(latest) <= g.limit {
		return nil
	}
	g.logger.Warn("channel limit approaching", slog.Int("channels", len(latest)), slog.Int("limit", g.limit))
	if _, err := g.store.EnqueueMany(ctx, g.admins, LimitAlert); err != nil {
		return fmt.Errorf("enqueue limit alert: %w", err)
	}
	return nil
}
