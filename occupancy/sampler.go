package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/telemetry"
)

// CursorKey is the kv entry the sampler mirrors its cursor to.
const CursorKey = "sampler_cursor"

// Cursor is the sampler's round-robin position: the index and id of the room sampled last and how
// many rooms existed at that moment.
type Cursor struct {
	Index     int
	RoomCount int
	LastID    int64
}

// Next picks the room after the one sampled last. Rooms must be ordered by id. Selection is by id,
// so rooms removed since the last tick never cause a room to be skipped.
func (c Cursor) Next(rooms []db.Room) (db.Room, Cursor, bool) {
	if len(rooms) == 0 {
		return db.Room{}, Cursor{}, false
	}
	idx := 0 // wrap when nothing follows LastID
	for i, r := range rooms {
		if r.ID > c.LastID {
			idx = i
			break
		}
	}
	r := rooms[idx]
	return r, Cursor{Index: idx, RoomCount: len(rooms), LastID: r.ID}, true
}

// Sampler requests the membership of one room per Tick and records the replies.
type Sampler struct {
	store     Store
	transport Transport
	cursor    Cursor
	logger    *slog.Logger
}

// NewSampler returns a sampler starting before the first room.
func NewSampler(store Store, transport Transport) *Sampler {
	return &Sampler{
		store:     store,
		transport: transport,
		logger:    slog.Default().With(slog.String("component", "occupancy_sampler")),
	}
}

// Cursor returns the current round-robin position.
func (s *Sampler) Cursor() Cursor { return s.cursor }

// Tick advances the cursor and asks the transport for that room's membership. The reply is handled
// later by HandleNames; a reply that never arrives is not an error.
func (s *Sampler) Tick(ctx context.Context) error {
	rooms, err := s.store.AllRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms for sampling: %w", err)
	}
	telemetry.SetRoomCount(len(rooms))
	room, next, ok := s.cursor.Next(rooms)
	s.cursor = next
	if !ok {
		return nil
	}
	if err := s.store.SetKV(ctx, CursorKey, fmt.Sprintf("%d/%d %s", next.Index+1, next.RoomCount, room.ChannelName)); err != nil {
		s.logger.Debug("cursor not persisted", slog.Any("err", err))
	}
	if err := s.transport.RequestNames(room.ChannelName); err != nil {
		return fmt.Errorf("request names for %s: %w", room.ChannelName, err)
	}
	s.logger.Debug("requested names", slog.String("channel", room.ChannelName), slog.Int("index", next.Index))
	return nil
}

// HandleNames records a membership reply. Replies for channels without an open room are
// discarded.
func (s *Sampler) HandleNames(ctx context.Context, channel string, members []string) error {
	channel = db.NormalizeKey(channel)
	if channel == "" {
		telemetry.Inc(telemetry.SamplesDiscarded)
		return nil
	}
	names := cleanMembers(members)
	smp, err := s.store.RecordSample(ctx, channel, names)
	if errors.Is(err, db.ErrNotFound) {
		telemetry.Inc(telemetry.SamplesDiscarded)
		s.logger.Debug("discarding names for channel without room", slog.String("channel", channel))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record sample for %s: %w", channel, err)
	}
	telemetry.Inc(telemetry.SamplesRecorded)
	s.logger.Info("occupancy sampled",
		slog.String("channel", channel),
		slog.Int("members", smp.MemberCount),
		slog.Int64("sample_id", smp.ID))
	return nil
}

// cleanMembers drops empty names and channel mode prefixes.
func cleanMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimLeft(strings.TrimSpace(m), "@+%&~")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
