package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/confbot/broadcast"
	"github.com/onnwee/confbot/chat"
	"github.com/onnwee/confbot/command"
	"github.com/onnwee/confbot/config"
	"github.com/onnwee/confbot/db"
	"github.com/onnwee/confbot/occupancy"
)

// ErrNoTransport is returned while no transport is attached.
var ErrNoTransport = fmt.Errorf("bot: no transport attached: %w", chat.ErrNotConnected)

// Transport is the chat connection as seen by the bot.
type Transport interface {
	Say(target, text string) error
	Join(channel string) error
	Depart(channel string) error
	RequestNames(channel string) error
}

// Bot owns the engine and every component running on it.
type Bot struct {
	cfg        *config.Config
	store      *db.Store
	engine     *Engine
	router     *command.Router
	sampler    *occupancy.Sampler
	transcript *chat.Transcript

	mu        sync.RWMutex
	transport Transport

	logger *slog.Logger
}

// New builds the bot. Attach a transport before Run; transcript may be nil.
func New(cfg *config.Config, store *db.Store, transcript *chat.Transcript) *Bot {
	b := &Bot{
		cfg:        cfg,
		store:      store,
		engine:     NewEngine(cfg.TickBudget, store),
		transcript: transcript,
		logger:     slog.Default().With(slog.String("component", "bot")),
	}

	cmds := command.New(store, b, b.engine, command.Options{
		BotNick:       cfg.IRCNick,
		ChannelPrefix: cfg.ChannelPrefix,
		MeetingPrefix: cfg.MeetingPrefix,
		ScheduleURL:   cfg.ScheduleURL,
		AdminChannels: cfg.AdminChannels,
		IsOperator:    cfg.IsOperator,
	})
	b.router = cmds.NewRouter()
	b.sampler = occupancy.NewSampler(store, b)

	trimmer := occupancy.NewTrimmer(store, occupancy.RetentionPolicy{MaxAge: cfg.SampleRetention})
	b.engine.AddJob(Job{Name: "names", Interval: cfg.NamesInterval, Run: b.sampler.Tick})
	b.engine.AddJob(Job{Name: "broadcast", Interval: cfg.BroadcastInterval, Run: broadcast.New(store, b).Tick})
	b.engine.AddJob(Job{Name: "metrics", Interval: cfg.MetricsInterval, Run: occupancy.NewMetricsWriter(store, cfg.MetricsPath).Tick})
	b.engine.AddJob(Job{Name: "channel_limit", Interval: cfg.LimitInterval, Run: occupancy.NewLimitGuard(store, cfg.AdminChannels, cfg.ChannelLimit).Tick})
	b.engine.AddJob(Job{Name: "audit", Interval: cfg.AuditInterval, Run: occupancy.NewAuditor(store, b, cfg.LowOccupancy, cfg.IsProtected).Tick})
	if trimmer.Enabled() {
		b.engine.AddJob(Job{Name: "sample_retention", Interval: cfg.RetentionInterval, Run: trimmer.Tick})
	}
	return b
}

// Attach sets the transport used for every outbound action.
func (b *Bot) Attach(t Transport) {
	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
}

// Router returns the command router.
func (b *Bot) Router() *command.Router { return b.router }

// Engine returns the bot's event loop.
func (b *Bot) Engine() *Engine { return b.engine }

// Handlers returns the chat callbacks feeding this bot.
func (b *Bot) Handlers() chat.Handlers {
	return chat.Handlers{
		OnConnect:    b.HandleConnect,
		OnMessage:    b.HandleMessage,
		OnNames:      b.HandleNames,
		OnMembership: b.HandleMembership,
	}
}

// EnsureSeedRooms creates a room for every seed and admin channel that has none.
func (b *Bot) EnsureSeedRooms(ctx context.Context) error {
	var rooms []db.Room
	for _, ch := range b.seedChannels() {
		rooms = append(rooms, db.Room{ChannelName: ch, MeetingLink: b.cfg.MeetingPrefix + strings.TrimPrefix(ch, "#")})
	}
	created, err := b.store.EnsureRooms(ctx, b.cfg.IRCNick, rooms)
	if err != nil {
		return fmt.Errorf("ensure seed rooms: %w", err)
	}
	b.logger.Info("seed rooms ensured", slog.Int("channels", len(rooms)), slog.Int("created", created))
	return nil
}

// Run drives the engine until ctx ends.
func (b *Bot) Run(ctx context.Context) error { return b.engine.Run(ctx) }

// HandleConnect joins every room and configured channel.
func (b *Bot) HandleConnect() {
	b.engine.Post("join_all", b.joinAll)
}

func (b *Bot) joinAll(ctx context.Context) error {
	rooms, err := b.store.AllRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms to join: %w", err)
	}
	seen := make(map[string]bool)
	var channels []string
	add := func(ch string) {
		if ch != "" && !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}
	for _, ch := range b.seedChannels() {
		add(ch)
	}
	for _, r := range rooms {
		add(r.ChannelName)
	}
	var errs []error
	for _, ch := range channels {
		if err := b.Join(ch); err != nil {
			errs = append(errs, fmt.Errorf("join %s: %w", ch, err))
		}
	}
	b.logger.Info("joined channels", slog.Int("channels", len(channels)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// HandleMessage records the line and dispatches it when it is a command.
func (b *Bot) HandleMessage(actor, channel, text string) {
	if strings.EqualFold(actor, b.cfg.IRCNick) {
		return
	}
	if strings.HasPrefix(channel, "#") {
		b.logTranscript(channel, actor, text)
	}
	if _, _, ok := command.Parse(text); !ok {
		return
	}
	b.engine.Post("command", func(ctx context.Context) error {
		reply, ok := b.router.Dispatch(ctx, actor, channel, text)
		if !ok {
			return nil
		}
		if err := b.Say(reply.Target, reply.Text); err != nil {
			return fmt.Errorf("send reply to %s: %w", reply.Target, err)
		}
		if strings.HasPrefix(reply.Target, "#") {
			b.logTranscript(reply.Target, b.cfg.IRCNick, reply.Text)
		}
		return nil
	})
}

// HandleNames records a membership reply.
func (b *Bot) HandleNames(channel string, members []string) {
	b.engine.Post("names_reply", func(ctx context.Context) error {
		return b.sampler.HandleNames(ctx, channel, members)
	})
}

// HandleMembership records joins and parts in the transcript.
func (b *Bot) HandleMembership(user, channel string, joined bool) {
	verb := "left"
	if joined {
		verb = "joined"
	}
	b.logTranscript(channel, user, verb+" "+channel)
}

func (b *Bot) logTranscript(channel, nick, text string) {
	if err := b.transcript.Log(channel, nick, text); err != nil {
		b.logger.Warn("transcript write failed", slog.String("channel", channel), slog.Any("err", err))
	}
}

func (b *Bot) seedChannels() []string {
	return config.NormalizeChannels(append(append([]string(nil), b.cfg.SeedChannels...), b.cfg.AdminChannels...))
}

func (b *Bot) current() (Transport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.transport == nil {
		return nil, ErrNoTransport
	}
	return b.transport, nil
}

// Say implements Transport.
func (b *Bot) Say(target, text string) error {
	t, err := b.current()
	if err != nil {
		return err
	}
	return t.Say(target, text)
}

// Join implements Transport.
func (b *Bot) Join(channel string) error {
	t, err := b.current()
	if err != nil {
		return err
	}
	return t.Join(channel)
}

// Depart implements Transport.
func (b *Bot) Depart(channel string) error {
	t, err := b.current()
	if err != nil {
		return err
	}
	return t.Depart(channel)
}

// RequestNames implements Transport.
func (b *Bot) RequestNames(channel string) error {
	t, err := b.current()
	if err != nil {
		return err
	}
	return t.RequestNames(channel)
}
