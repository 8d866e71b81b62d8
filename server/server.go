// Package server exposes the bot's HTTP surface: health probes, a status summary, the live
// occupancy snapshot, Prometheus metrics and a token-protected admin API. Every request carries a
// correlation id for consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/telemetry"
)

// Options configures the HTTP surface.
type Options struct {
	// Connected reports whether the chat transport is up; nil means always up.
	Connected func() bool
	// AdminChannels receive admin announcements.
	AdminChannels []string
	// Do runs store writes on the bot's event loop and waits for the result; nil runs them on the
	// request goroutine.
	Do func(ctx context.Context, name string, fn func(ctx context.Context) error) error
	// AdminToken guards /admin/ endpoints; empty disables them.
	AdminToken        string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter's cleanup goroutine.
func NewMux(ctx context.Context, store *db.Store, opts Options) http.Handler {
	handlers := NewHandlers(store, opts)
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       opts.RateLimitRequests > 0,
		requestsPerIP: opts.RateLimitRequests,
		window:        opts.RateLimitWindow,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/occupancy", handlers.HandleOccupancy)
	mux.HandleFunc("/rooms", handlers.HandleRooms)
	mux.HandleFunc("/admin/announce", handlers.HandleAdminAnnounce)

	selective := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			adminAuth(rateLimitMiddleware(mux, limiter), opts.AdminToken).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http "+r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selective.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		var err error
		if rec.statusCode >= 500 {
			err = fmt.Errorf("HTTP %d", rec.statusCode)
		}
		telemetry.FinishSpan(span, err)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
