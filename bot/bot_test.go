package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/confbot/chat"
	"github.com/onnwee/confbot/config"
	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/testutil"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		IRCNick:           "confbot",
		SeedChannels:      []string{"#seagl-main"},
		AdminChannels:     []string{"#seagl-main", "#seagl-staff"},
		Operators:         []string{"op"},
		ChannelPrefix:     "#seagl-",
		MeetingPrefix:     "https://meet.example.org/seagl-",
		ScheduleURL:       "https://example.org/schedule",
		MetricsPath:       filepath.Join(t.TempDir(), "channel_counts.json"),
		NamesInterval:     time.Hour,
		BroadcastInterval: time.Hour,
		MetricsInterval:   time.Hour,
		LimitInterval:     time.Hour,
		AuditInterval:     time.Hour,
		RetentionInterval: time.Hour,
		TickBudget:        time.Second,
		LowOccupancy:      3,
		ChannelLimit:      105,
	}
}

type harness struct {
	bot       *Bot
	store     *db.Store
	transport *testutil.FakeTransport
}

func newHarness(t *testing.T, cfg *config.Config, transcript *chat.Transcript) *harness {
	t.Helper()
	store := testutil.SetupTestDB(t)
	b := New(cfg, store, transcript)
	ft := &testutil.FakeTransport{}
	b.Attach(ft)
	require.NoError(t, b.EnsureSeedRooms(context.Background()))
	startEngine(t, b.Engine())
	return &harness{bot: b, store: store, transport: ft}
}

func (h *harness) waitForLine(t *testing.T, want testutil.Line) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, l := range h.transport.SentLines() {
			if l == want {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "never sent %+v", want)
}

func TestEnsureSeedRooms(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, nil)
	ctx := context.Background()

	require.NoError(t, h.bot.EnsureSeedRooms(ctx))
	rooms, err := h.store.AllRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "#seagl-main", rooms[0].ChannelName)
	assert.Equal(t, "https://meet.example.org/seagl-main", rooms[0].MeetingLink)
	assert.Equal(t, "confbot", rooms[0].Creator)
}

func TestConnectJoinsEveryRoom(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	_, err := h.store.CreateRoom(context.Background(), "alice", "https://meet.example.org/seagl-rust", "#seagl-rust")
	require.NoError(t, err)

	h.bot.HandleConnect()
	require.Eventually(t, func() bool { return len(h.transport.JoinedChannels()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"#seagl-main", "#seagl-staff", "#seagl-rust"}, h.transport.JoinedChannels())
}

func TestCommandsAreAnswered(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)

	h.bot.HandleMessage("alice", "#seagl-main", "!ping")
	h.waitForLine(t, testutil.Line{Target: "#seagl-main", Text: "alice, pong"})

	h.bot.HandleMessage("alice", "confbot", "!ping")
	h.waitForLine(t, testutil.Line{Target: "alice", Text: "pong"})

	h.bot.HandleMessage("alice", "#seagl-main", "!cr rust")
	h.waitForLine(t, testutil.Line{Target: "#seagl-main", Text: "alice, Created Channel: #seagl-rust Video-conf: https://meet.example.org/seagl-rust"})
	assert.Contains(t, h.transport.JoinedChannels(), "#seagl-rust")
}

func TestOwnAndPlainMessagesIgnored(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)

	h.bot.HandleMessage("confbot", "#seagl-main", "!ping")
	h.bot.HandleMessage("alice", "#seagl-main", "hello everyone")
	h.bot.HandleMessage("alice", "#seagl-main", "!unknown")
	h.bot.HandleMessage("bob", "#seagl-main", "!ping")
	h.waitForLine(t, testutil.Line{Target: "#seagl-main", Text: "bob, pong"})
	assert.Len(t, h.transport.SentLines(), 1)
}

func TestNamesReplyIsSampled(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	ctx := context.Background()

	h.bot.HandleNames("#seagl-main", []string{"@alice", "bob"})
	h.bot.HandleNames("#elsewhere", []string{"carol"})
	require.Eventually(t, func() bool {
		n, err := h.store.CountSamples(ctx, "#seagl-main")
		return err == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	latest, err := h.store.LatestOccupancy(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 2, latest[0].MemberCount)
	assert.Equal(t, "alice,bob", latest[0].MemberList)
}

func TestStartupJobsRun(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, nil)

	require.Eventually(t, func() bool { return len(h.transport.NameRequests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "#seagl-main", h.transport.NameRequests()[0])
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.MetricsPath)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTranscriptRecordsTraffic(t *testing.T) {
	dir := t.TempDir()
	transcript, err := chat.NewTranscript(dir)
	require.NoError(t, err)
	h := newHarness(t, testConfig(t), transcript)

	h.bot.HandleMembership("alice", "#seagl-main", true)
	h.bot.HandleMessage("alice", "#seagl-main", "!ping")
	h.waitForLine(t, testutil.Line{Target: "#seagl-main", Text: "alice, pong"})

	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(transcript.Path("#seagl-main"))
		return err == nil && strings.Count(string(raw), "\n") == 3
	}, 2*time.Second, 5*time.Millisecond)
	raw, err := os.ReadFile(transcript.Path("#seagl-main"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.True(t, strings.HasSuffix(lines[0], ":alice:joined #seagl-main"))
	assert.True(t, strings.HasSuffix(lines[1], ":alice:!ping"))
	assert.True(t, strings.HasSuffix(lines[2], ":confbot:alice, pong"))
}

func TestNoTransport(t *testing.T) {
	b := New(testConfig(t), testutil.SetupTestDB(t), nil)
	assert.ErrorIs(t, b.Say("#a", "hi"), ErrNoTransport)
	assert.ErrorIs(t, b.Say("#a", "hi"), chat.ErrNotConnected)
	assert.ErrorIs(t, b.RequestNames("#a"), ErrNoTransport)
	assert.Equal(t, []string{"#seagl-main", "#seagl-staff"}, b.seedChannels())
}
