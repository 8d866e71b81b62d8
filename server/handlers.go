package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/confbot/command"
	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/occupancy"
	"github.com/onnwee/confbot/telemetry"
)

// maxAnnouncementBytes bounds the admin announcement request body.
const maxAnnouncementBytes = 4 << 10

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store *db.Store
	opts  Options
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(store *db.Store, opts Options) *Handlers {
	if opts.Connected == nil {
		opts.Connected = func() bool { return true }
	}
	if opts.Do == nil {
		opts.Do = func(ctx context.Context, _ string, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Handlers{store: store, opts: opts}
}

// HandleStatus reports room, queue and topic counts plus the last run of every periodic job.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rooms, err := h.store.CountRooms(ctx)
	if err != nil {
		h.internalError(w, r, "count rooms", err)
		return
	}
	depth, err := h.store.QueueDepth(ctx)
	if err != nil {
		h.internalError(w, r, "queue depth", err)
		return
	}
	topics, err := h.store.ListTopics(ctx)
	if err != nil {
		h.internalError(w, r, "list topics", err)
		return
	}
	kv, err := h.store.ListKV(ctx, "job_")
	if err != nil {
		h.internalError(w, r, "list job heartbeats", err)
		return
	}
	jobs := make(map[string]string, len(kv))
	for k, v := range kv {
		jobs[strings.TrimSuffix(strings.TrimPrefix(k, "job_"), "_last")] = v
	}
	cursor, _ := h.store.GetKV(ctx, occupancy.CursorKey)

	writeJSON(w, http.StatusOK, map[string]any{
		"rooms":          rooms,
		"queue_depth":    depth,
		"topics":         len(topics),
		"connected":      h.opts.Connected(),
		"sampler_cursor": cursor,
		"jobs":           jobs,
	})
}

// HandleOccupancy returns the latest occupancy snapshot in the metrics sink format.
func (h *Handlers) HandleOccupancy(w http.ResponseWriter, r *http.Request) {
	snap, err := occupancy.TakeSnapshot(r.Context(), h.store)
	if err != nil {
		h.internalError(w, r, "occupancy snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type roomView struct {
	ID          int64  `json:"id"`
	Channel     string `json:"channel"`
	MeetingLink string `json:"meeting_link"`
	Creator     string `json:"creator"`
	CreatedAt   string `json:"created_at"`
}

// HandleRooms lists rooms in id order. Supports ?limit= (1-200, default 50) and ?offset=.
func (h *Handlers) HandleRooms(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 50), 1, 200)
	offset := clampInt(parseIntQuery(r, "offset", 0), 0, 1<<30)
	rooms, err := h.store.ListRooms(r.Context(), offset, limit)
	if err != nil {
		h.internalError(w, r, "list rooms", err)
		return
	}
	out := make([]roomView, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, roomView{
			ID:          rm.ID,
			Channel:     rm.ChannelName,
			MeetingLink: rm.MeetingLink,
			Creator:     rm.Creator,
			CreatedAt:   rm.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type announceRequest struct {
	Message string `json:"message"`
	// Scope is "all" (every room) or "admin" (admin channels only, the default).
	Scope string `json:"scope"`
}

// HandleAdminAnnounce queues an announcement through the broadcaster.
func (h *Handlers) HandleAdminAnnounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req announceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAnnouncementBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	msg := command.Sanitize(req.Message)
	if msg == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.Scope != "" && req.Scope != "admin" && req.Scope != "all" {
		http.Error(w, "scope must be all or admin", http.StatusBadRequest)
		return
	}

	var n int
	err := h.opts.Do(r.Context(), "admin_announce", func(ctx context.Context) error {
		dests := h.opts.AdminChannels
		if req.Scope == "all" {
			rooms, err := h.store.AllRooms(ctx)
			if err != nil {
				return fmt.Errorf("list rooms: %w", err)
			}
			dests = make([]string, 0, len(rooms))
			for _, rm := range rooms {
				dests = append(dests, rm.ChannelName)
			}
		}
		var err error
		n, err = h.store.EnqueueMany(ctx, dests, "Announcement: "+msg)
		return err
	})
	if err != nil {
		h.internalError(w, r, "enqueue announcement", err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin announcement queued",
		slog.String("component", "http"), slog.String("scope", req.Scope), slog.Int("queued", n))
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, db.ErrNotFound) {
		status = http.StatusNotFound
	}
	telemetry.LoggerWithCorr(r.Context()).Error("request failed",
		slog.String("component", "http"), slog.String("op", op), slog.Any("err", err))
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
