package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	h, store := newTestMux(t, Options{Connected: func() bool { return true }})
	ctx := context.Background()
	_, err := store.CreateRoom(ctx, "alice", "https://meet.example.org/a", "#a")
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, "#a", "hello")
	require.NoError(t, err)
	_, err = store.JoinTopic(ctx, "rust", "alice")
	require.NoError(t, err)
	require.NoError(t, store.MarkJobRun(ctx, "audit"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Rooms      int               `json:"rooms"`
		QueueDepth int               `json:"queue_depth"`
		Topics     int               `json:"topics"`
		Connected  bool              `json:"connected"`
		Jobs       map[string]string `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Rooms)
	assert.Equal(t, 1, resp.QueueDepth)
	assert.Equal(t, 1, resp.Topics)
	assert.True(t, resp.Connected)
	require.Contains(t, resp.Jobs, "audit")
	_, err = time.Parse(time.RFC3339Nano, resp.Jobs["audit"])
	assert.NoError(t, err)
}

func TestOccupancy(t *testing.T) {
	h, store := newTestMux(t, Options{})
	ctx := context.Background()
	_, err := store.CreateRoom(ctx, "alice", "https://meet.example.org/a", "#a")
	require.NoError(t, err)
	_, err = store.RecordSample(ctx, "#a", []string{"alice", "bob"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/occupancy", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"#a":[2,"alice,bob"]}`, rr.Body.String())
}

func TestRoomsPagination(t *testing.T) {
	h, store := newTestMux(t, Options{})
	ctx := context.Background()
	for _, ch := range []string{"#a", "#b", "#c"} {
		_, err := store.CreateRoom(ctx, "alice", "https://meet.example.org/"+ch[1:], ch)
		require.NoError(t, err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rooms?limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var rooms []roomView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "#b", rooms[0].Channel)
	assert.Equal(t, "#c", rooms[1].Channel)
}

func announce(h http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/announce", strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAdminAnnounce(t *testing.T) {
	h, store := newTestMux(t, Options{
		AdminToken:        "s3cret",
		AdminChannels:     []string{"#staff"},
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	})
	ctx := context.Background()
	_, err := store.CreateRoom(ctx, "alice", "https://meet.example.org/a", "#a")
	require.NoError(t, err)
	_, err = store.CreateRoom(ctx, "alice", "https://meet.example.org/b", "#b")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, announce(h, "", `{"message":"hi"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, announce(h, "wrong", `{"message":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, announce(h, "s3cret", `{"message":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, announce(h, "s3cret", `{"message":"hi","scope":"everyone"}`).Code)
	assert.Equal(t, http.StatusBadRequest, announce(h, "s3cret", `not json`).Code)

	rr := announce(h, "s3cret", `{"message":"Keynote  in 5 minutes"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"queued":1}`, rr.Body.String())

	rr = announce(h, "s3cret", `{"message":"Lunch","scope":"all"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"queued":2}`, rr.Body.String())

	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	req := httptest.NewRequest(http.MethodGet, "/admin/announce", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	h, _ := newTestMux(t, Options{})
	assert.Equal(t, http.StatusNotFound, announce(h, "anything", `{"message":"hi"}`).Code)
}

func TestAdminRateLimited(t *testing.T) {
	h, _ := newTestMux(t, Options{
		AdminToken:        "s3cret",
		AdminChannels:     []string{"#staff"},
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})
	assert.Equal(t, http.StatusAccepted, announce(h, "s3cret", `{"message":"one"}`).Code)
	assert.Equal(t, http.StatusAccepted, announce(h, "s3cret", `{"message":"two"}`).Code)
	rr := announce(h, "s3cret", `{"message":"three"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestAdminAnnounceSanitizesAndRunsThroughDo(t *testing.T) {
	var calls []string
	h, store := newTestMux(t, Options{
		AdminToken:        "s3cret",
		AdminChannels:     []string{"#staff"},
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		Do: func(ctx context.Context, name string, fn func(ctx context.Context) error) error {
			calls = append(calls, name)
			return fn(ctx)
		},
	})

	rr := announce(h, "s3cret", `{"message":"Drop \"tables\"; it's  *now*"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"admin_announce"}, calls)

	msg, ok, err := store.Dequeue(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "#staff", msg.Destination)
	assert.Equal(t, "Announcement: Drop tables its now", msg.Body)

	// nothing but stripped characters is an empty message
	assert.Equal(t, http.StatusBadRequest, announce(h, "s3cret", `{"message":"';*"}`).Code)
	assert.Len(t, calls, 1)
}

func TestAdminAnnounceLoopFailure(t *testing.T) {
	h, store := newTestMux(t, Options{
		AdminToken:    "s3cret",
		AdminChannels: []string{"#staff"},
		Do: func(context.Context, string, func(ctx context.Context) error) error {
			return errors.New("bot: engine stopped")
		},
	})
	assert.Equal(t, http.StatusInternalServerError, announce(h, "s3cret", `{"message":"hi"}`).Code)
	depth, err := store.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}
