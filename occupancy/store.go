package occupancy

import (
	"context"
	"time"

	"github.com/onnwee/confbot/db"
)

// Store is the subset of *db.Store the occupancy jobs use.
type Store interface {
	AllRooms(ctx context.Context) ([]db.Room, error)
	RecordSample(ctx context.Context, channel string, members []string) (db.OccupancySample, error)
	LatestOccupancy(ctx context.Context) ([]db.OccupancySample, error)
	AuditCursor(ctx context.Context) (map[string]db.AuditEntry, error)
	ReplaceAuditCursor(ctx context.Context, entries []db.AuditEntry) error
	RemoveRooms(ctx context.Context, channels []string) (int64, error)
	TrimSamples(ctx context.Context, cutoff time.Time) (int64, error)
	EnqueueMany(ctx context.Context, destinations []string, body string) (int, error)
	SetKV(ctx context.Context, key, value string) error
}

// Transport is the chat capability the sampler and auditor need. Both calls are fire-and-forget.
type Transport interface {
	RequestNames(channel string) error
	Depart(channel string) error
}

var _ Store = (*db.Store)(nil)
