package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/onnwee/confbot/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.store.DB().PingContext(r.Context()) }},
		{"schema", func() error {
			_, err := h.store.CountRooms(r.Context())
			return err
		}},
		{"migrations", func() error {
			if h.store.Driver() != db.DriverPostgres {
				return nil
			}
			version, dirty, err := db.GetMigrationVersion(h.store.DB())
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("migration %d is dirty", version)
			}
			return nil
		}},
		{"chat", func() error {
			if !h.opts.Connected() {
				return errors.New("chat transport not connected")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
