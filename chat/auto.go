package chat

import (
	"context"
	"log/slog"
	"time"
)

// Supervise runs c until ctx ends, reconnecting after retry whenever the connection drops or fails
// to establish.
func Supervise(ctx context.Context, c *Client, retry time.Duration) {
	if retry <= 0 {
		retry = 30 * time.Second
	}
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.Run(ctx)
		if ctx.Err() != nil {
			slog.Info("chat supervisor stopped", slog.String("component", "chat"))
			return
		}
		if err != nil {
			slog.Warn("chat connection ended", slog.Any("err", err), slog.String("component", "chat"), slog.Duration("retry_in", retry))
		} else {
			slog.Info("chat connection closed", slog.String("component", "chat"), slog.Duration("retry_in", retry))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
