package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/telemetry"
)

// DefaultThreshold is the member count below which a room counts as under-occupied.
const DefaultThreshold = 3

// Evaluate runs one audit cycle over the latest samples and the previous cycle's cursor. A channel
// is flagged when the previous cycle and this one both saw fewer than threshold members and a
// sample newer than the one behind the previous count exists. next is the cursor for the following
// cycle; channels without a new sample keep their previous entry.
func Evaluate(current []db.OccupancySample, previous map[string]db.AuditEntry, threshold int, now time.Time) (flagged []string, next []db.AuditEntry) {
	next = make([]db.AuditEntry, 0, len(current))
	for _, c := range current {
		prev, seen := previous[c.Channel]
		fresh := !seen || c.ID > prev.SampleID
		if !fresh {
			next = append(next, prev)
			continue
		}
		if seen && prev.LastKnownCount < threshold && c.MemberCount < threshold {
			flagged = append(flagged, c.Channel)
		}
		next = append(next, db.AuditEntry{
			Channel:        c.Channel,
			LastKnownCount: c.MemberCount,
			SampleID:       c.ID,
			AuditedAt:      now,
		})
	}
	return flagged, next
}

// Auditor removes and departs rooms that stay under-occupied across two audit cycles.
type Auditor struct {
	store       Store
	transport   Transport
	threshold   int
	isProtected func(channel string) bool
	now         func() time.Time
	logger      *slog.Logger
}

// NewAuditor returns an auditor. Channels for which isProtected returns true are never removed or
// departed.
func NewAuditor(store Store, transport Transport, threshold int, isProtected func(string) bool) *Auditor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if isProtected == nil {
		isProtected = func(string) bool { return false }
	}
	return &Auditor{
		store:       store,
		transport:   transport,
		threshold:   threshold,
		isProtected: isProtected,
		now:         time.Now,
		logger:      slog.Default().With(slog.String("component", "occupancy_audit")),
	}
}

// Tick runs one audit cycle. The cursor is replaced before any room is touched; room removal and
// departure are independent and each failure is logged and reported on its own.
func (a *Auditor) Tick(ctx context.Context) error {
	current, err := a.store.LatestOccupancy(ctx)
	if err != nil {
		return fmt.Errorf("read latest occupancy: %w", err)
	}
	previous, err := a.store.AuditCursor(ctx)
	if err != nil {
		return fmt.Errorf("read audit cursor: %w", err)
	}
	flagged, next := Evaluate(current, previous, a.threshold, a.now().UTC())
	if err := a.store.ReplaceAuditCursor(ctx, next); err != nil {
		return fmt.Errorf("replace audit cursor: %w", err)
	}

	var leave []string
	for _, ch := range flagged {
		if a.isProtected(ch) {
			a.logger.Info("under-occupied channel is protected", slog.String("channel", ch))
			continue
		}
		leave = append(leave, ch)
	}
	a.logger.Info("audit cycle complete",
		slog.Int("channels", len(current)),
		slog.Int("flagged", len(flagged)),
		slog.Int("leaving", len(leave)))
	if len(leave) == 0 {
		return nil
	}

	var errs []error
	removed, err := a.store.RemoveRooms(ctx, leave)
	if err != nil {
		a.logger.Error("remove rooms failed", slog.Any("channels", leave), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("remove rooms: %w", err))
	} else {
		for i := int64(0); i < removed; i++ {
			telemetry.Inc(telemetry.RoomsRemoved)
		}
		a.logger.Info("rooms removed", slog.Any("channels", leave), slog.Int64("removed", removed))
	}
	for _, ch := range leave {
		if err := a.transport.Depart(ch); err != nil {
			telemetry.Inc(telemetry.DepartFailures)
			a.logger.Warn("depart failed", slog.String("channel", ch), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("depart %s: %w", ch, err))
			continue
		}
		a.logger.Info("departed under-occupied channel", slog.String("channel", ch))
	}
	return errors.Join(errs...)
}
