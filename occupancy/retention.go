package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionPolicy bounds the occupancy sample history.
type RetentionPolicy struct {
	// MaxAge: samples older than this are deleted (0 = disabled). The latest sample of each
	// channel is always kept.
	MaxAge time.Duration
	// DryRun: log the cutoff but delete nothing.
	DryRun bool
}

// Trimmer applies a RetentionPolicy.
type Trimmer struct {
	store  Store
	policy RetentionPolicy
	now    func() time.Time
	logger *slog.Logger
}

// NewTrimmer returns a trimmer for policy.
func NewTrimmer(store Store, policy RetentionPolicy) *Trimmer {
	return &Trimmer{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: slog.Default().With(slog.String("component", "sample_retention")),
	}
}

// Enabled reports whether the policy deletes anything.
func (t *Trimmer) Enabled() bool { return t.policy.MaxAge > 0 }

// Tick performs a single retention cycle.
func (t *Trimmer) Tick(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	cutoff := t.now().Add(-t.policy.MaxAge)
	if t.policy.DryRun {
		t.logger.Info("retention dry run", slog.Time("cutoff", cutoff))
		return nil
	}
	n, err := t.store.TrimSamples(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("trim samples: %w", err)
	}
	if n > 0 {
		t.logger.Info("trimmed occupancy samples", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	}
	return nil
}
