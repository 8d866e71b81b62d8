package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/confbot/db"
)

// RoomsPerPage is the listrooms page size.
const RoomsPerPage = 4

const questionTimeLayout = "2006-01-02 15:04:05"

var toasts = []string{
	"'A cup of tea is a cup of peace.' - Soshitsu Sen XV, Tea Life, Tea Mind",
	"'Many kinds of monkeys have a strong taste for tea, coffee and spirituous liqueurs.' - Charles Darwin",
	"'A cup of tea would restore my normality.' - Douglas Adams",
	"'Rainy days should be spent at home with a cup of tea and a good book.' - Bill Watterson",
	"'Honestly, if you're given the choice between Armageddon or tea, you don't say 'what kind of tea?'' - Neil Gaiman",
	"Tea ... is a religion of the art of life. - Kakuzo Okakura",
}

const helpText = `!schedule (!sched)               - Conference schedule
!createroom (!cr) <room-name>    - Create a channel and video conference room
!listrooms (!lr) <page-number>   - List conference chat rooms
!jointopic (!jt) <topic-name>    - Join a topic list, receive invites and information
!topicsubs (!ts) <topic-name>    - List members of a topic
!listtopics (!lt)                - List topics to join
!teagl (!tea) <nick>             - Send a tea toast to a friend
!ask <question>                  - Send the speaker a question
!timer <minutes> [name]          - Set an alarm in this channel`

// Options configures the built-in command set.
type Options struct {
	BotNick       string
	ChannelPrefix string // prepended to created room names, e.g. "#seagl-"
	MeetingPrefix string // prepended to created room ids to form the meeting link
	ScheduleURL   string
	AdminChannels []string
	IsOperator    func(nick string) bool
	MaxTimer      time.Duration
}

// Commands holds the dependencies of the built-in handlers.
type Commands struct {
	store     Store
	joiner    Joiner
	scheduler Scheduler
	opts      Options
	intn      func(n int) int
	logger    *slog.Logger
}

// New returns the built-in command set. joiner and scheduler may be nil; room joins and timers
// are then skipped.
func New(store Store, joiner Joiner, scheduler Scheduler, opts Options) *Commands {
	if opts.IsOperator == nil {
		opts.IsOperator = func(string) bool { return false }
	}
	if opts.MaxTimer <= 0 {
		opts.MaxTimer = 24 * time.Hour
	}
	return &Commands{
		store:     store,
		joiner:    joiner,
		scheduler: scheduler,
		opts:      opts,
		intn:      rand.IntN,
		logger:    slog.Default().With(slog.String("component", "commands")),
	}
}

// NewRouter builds a router with every built-in command registered.
func (c *Commands) NewRouter() *Router {
	r := NewRouter(c.opts.BotNick, c.opts.IsOperator)
	for _, rt := range c.Routes() {
		r.Register(rt)
	}
	return r
}

// Routes is the registration table for the built-in commands.
func (c *Commands) Routes() []Route {
	return []Route{
		{Name: "ping", Handler: c.ping},
		{Name: "help", Handler: c.help},
		{Name: "schedule", Aliases: []string{"sched"}, Handler: c.schedule},
		{Name: "createroom", Aliases: []string{"cr"}, Handler: c.createRoom},
		{Name: "listrooms", Aliases: []string{"lr"}, Handler: c.listRooms},
		{Name: "jointopic", Aliases: []string{"jt", "joingame"}, Handler: c.joinTopic},
		{Name: "topicsubs", Aliases: []string{"ts"}, Handler: c.topicSubs},
		{Name: "listtopics", Aliases: []string{"lt"}, Handler: c.listTopics},
		{Name: "teagl", Aliases: []string{"tea"}, Handler: c.teagl},
		{Name: "ask", Handler: c.ask},
		{Name: "questions", Aliases: []string{"q"}, OperatorOnly: true, Handler: c.questions},
		{Name: "clear_question_list", OperatorOnly: true, Handler: c.clearQuestions},
		{Name: "conf_announce", Aliases: []string{"CA"}, OperatorOnly: true, Handler: c.confAnnounce},
		{Name: "admin_announce", Aliases: []string{"AA"}, OperatorOnly: true, Handler: c.adminAnnounce},
		{Name: "list_announce", Aliases: []string{"LA"}, OperatorOnly: true, Handler: c.listAnnounce},
		{Name: "shuffle", Aliases: []string{"st"}, OperatorOnly: true, Handler: c.shuffle},
		{Name: "timer", Handler: c.timer},
	}
}

func (c *Commands) ping(context.Context, Request) (string, error) { return "pong", nil }

func (c *Commands) help(context.Context, Request) (string, error) { return helpText, nil }

func (c *Commands) schedule(context.Context, Request) (string, error) {
	if c.opts.ScheduleURL == "" {
		return "", notFound("No schedule has been published yet.")
	}
	return c.opts.ScheduleURL, nil
}

func (c *Commands) createRoom(ctx context.Context, req Request) (string, error) {
	id := strings.ToLower(SanitizeIdent(req.Args))
	if id == "" {
		return "", invalid("Error: No argument provided, usage: !createroom <room-name>")
	}
	room, err := c.openRoom(ctx, req.Actor, id)
	if errors.Is(err, db.ErrConflict) {
		return "", conflict("Error: Room already exists.")
	}
	if err != nil {
		return "", storeFailure("create room", err)
	}
	return fmt.Sprintf("Created Channel: %s Video-conf: %s", room.ChannelName, room.MeetingLink), nil
}

// openRoom stores a room for id and joins it. A failed join is logged; the room stays.
func (c *Commands) openRoom(ctx context.Context, creator, id string) (db.Room, error) {
	room, err := c.store.CreateRoom(ctx, creator, c.opts.MeetingPrefix+id, c.opts.ChannelPrefix+id)
	if err != nil {
		return db.Room{}, err
	}
	if c.joiner != nil {
		if err := c.joiner.Join(room.ChannelName); err != nil {
			c.logger.Warn("join new room failed", slog.String("channel", room.ChannelName), slog.Any("err", err))
		}
	}
	return room, nil
}

func (c *Commands) listRooms(ctx context.Context, req Request) (string, error) {
	page := parsePage(req.Args)
	total, err := c.store.CountRooms(ctx)
	if err != nil {
		return "", storeFailure("count rooms", err)
	}
	rooms, err := c.store.ListRooms(ctx, (page-1)*RoomsPerPage, RoomsPerPage)
	if err != nil {
		return "", storeFailure("list rooms", err)
	}
	pages := (total + RoomsPerPage - 1) / RoomsPerPage
	if len(rooms) == 0 {
		return fmt.Sprintf("No rooms on page %d/%d.", page, pages), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Listing Page: %d/%d of room list - IRC command: !lr %d", page, pages, page)
	for _, r := range rooms {
		fmt.Fprintf(&b, "\n%-13s %-13s", r.ChannelName, r.MeetingLink)
	}
	return b.String(), nil
}

// parsePage reads a 1-based page number; anything that is not a positive integer means page 1.
func parsePage(s string) int {
	n, err := strconv.Atoi(SanitizeIdent(s))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func (c *Commands) joinTopic(ctx context.Context, req Request) (string, error) {
	topic := strings.ToLower(SanitizeIdent(req.Args))
	if topic == "" {
		return "", invalid("Error: No argument provided, usage: !jointopic <topic-name>")
	}
	exists, err := c.store.TopicExists(ctx, topic)
	if err != nil {
		return "", storeFailure("topic exists", err)
	}
	if !exists && !c.opts.IsOperator(req.Actor) {
		return "", denied()
	}
	added, err := c.store.JoinTopic(ctx, topic, req.Actor)
	if err != nil {
		return "", storeFailure("join topic", err)
	}
	if !added {
		return fmt.Sprintf("%s is already on list: %s", req.Actor, topic), nil
	}
	return fmt.Sprintf("Adding %s to list: %s", req.Actor, topic), nil
}

func (c *Commands) topicSubs(ctx context.Context, req Request) (string, error) {
	topic := SanitizeIdent(req.Args)
	if topic == "" {
		return "", invalid("Error: No argument provided, usage: !topicsubs <topic-name>")
	}
	subs, err := c.store.TopicSubscribers(ctx, topic)
	if errors.Is(err, db.ErrNotFound) {
		return "", notFound("Could not find topic list")
	}
	if err != nil {
		return "", storeFailure("topic subscribers", err)
	}
	return strings.Join(subs, " "), nil
}

func (c *Commands) listTopics(ctx context.Context, _ Request) (string, error) {
	topics, err := c.store.ListTopics(ctx)
	if err != nil {
		return "", storeFailure("list topics", err)
	}
	if len(topics) == 0 {
		return "No topics yet.", nil
	}
	return strings.Join(topics, ", "), nil
}

func (c *Commands) teagl(ctx context.Context, req Request) (string, error) {
	target := SanitizeIdent(req.Args)
	if target == "" {
		return "", invalid("Error: No argument provided, usage: !teagl <nick>")
	}
	dest := req.ReplyTarget()
	if req.Private {
		dest = target
	}
	body := fmt.Sprintf("%s, %s sent you a toast: %s", target, req.Actor, toasts[c.intn(len(toasts))])
	if _, err := c.store.Enqueue(ctx, dest, body); err != nil {
		return "", storeFailure("enqueue toast", err)
	}
	return "Message Queued.", nil
}

func (c *Commands) ask(ctx context.Context, req Request) (string, error) {
	text := Sanitize(req.Args)
	if text == "" {
		return "", invalid("Error: No argument provided, usage: !ask <question>")
	}
	if _, err := c.store.AddQuestion(ctx, req.ReplyTarget(), req.Actor, text); err != nil {
		return "", storeFailure("add question", err)
	}
	return "Question Submitted.", nil
}

func (c *Commands) questions(ctx context.Context, req Request) (string, error) {
	n := parsePage(req.Args)
	q, total, err := c.store.GetQuestion(ctx, req.ReplyTarget(), n)
	if errors.Is(err, db.ErrNotFound) {
		return "", notFound("No Questions Found")
	}
	if err != nil {
		return "", storeFailure("read question", err)
	}
	return fmt.Sprintf("[%d/%d] %s : %s: %s", q.Seq, total, q.AskedAt.Format(questionTimeLayout), q.Creator, q.Body), nil
}

func (c *Commands) clearQuestions(ctx context.Context, req Request) (string, error) {
	if _, err := c.store.ClearQuestions(ctx, req.ReplyTarget()); err != nil {
		return "", storeFailure("clear questions", err)
	}
	return "Question list cleared", nil
}

func (c *Commands) confAnnounce(ctx context.Context, req Request) (string, error) {
	msg := Sanitize(req.Args)
	if msg == "" {
		return "", invalid("Error: Missing argument <message>")
	}
	rooms, err := c.store.AllRooms(ctx)
	if err != nil {
		return "", storeFailure("list rooms", err)
	}
	dests := make([]string, 0, len(rooms))
	for _, r := range rooms {
		dests = append(dests, r.ChannelName)
	}
	return c.announce(ctx, dests, msg)
}

func (c *Commands) adminAnnounce(ctx context.Context, req Request) (string, error) {
	msg := Sanitize(req.Args)
	if msg == "" {
		return "", invalid("Error: Missing argument <message>")
	}
	return c.announce(ctx, c.opts.AdminChannels, msg)
}

func (c *Commands) listAnnounce(ctx context.Context, req Request) (string, error) {
	topic, msg := splitFirst(Sanitize(req.Args))
	if topic == "" || msg == "" {
		return "", invalid("Error: Missing arguments, <topic-group> <message>")
	}
	subs, err := c.store.TopicSubscribers(ctx, topic)
	if errors.Is(err, db.ErrNotFound) {
		return "", notFound("Error: Topic does not exist.")
	}
	if err != nil {
		return "", storeFailure("topic subscribers", err)
	}
	return c.announce(ctx, subs, msg)
}

func (c *Commands) announce(ctx context.Context, dests []string, msg string) (string, error) {
	if _, err := c.store.EnqueueMany(ctx, dests, "Announcement: "+msg); err != nil {
		return "", storeFailure("enqueue announcement", err)
	}
	return "Announcement Queued.", nil
}

func (c *Commands) shuffle(ctx context.Context, req Request) (string, error) {
	fields := strings.Fields(Sanitize(req.Args))
	if len(fields) < 2 {
		return "", invalid("Error: Missing required args <topic-name> and <group-size>")
	}
	topic := strings.ToLower(fields[0])
	size, err := strconv.Atoi(fields[1])
	if err != nil || size <= 0 {
		return "", invalid("Error: group-size is not a positive integer")
	}
	subs, err := c.store.TopicSubscribers(ctx, topic)
	if errors.Is(err, db.ErrNotFound) {
		return "", notFound("Error: Topic not found.")
	}
	if err != nil {
		return "", storeFailure("topic subscribers", err)
	}

	groups := Groups(subs, size, c.intn)
	created := make([]string, 0, len(groups))
	for k, members := range groups {
		room, err := c.openRoom(ctx, req.Actor, fmt.Sprintf("%s_%d", topic, k))
		if errors.Is(err, db.ErrConflict) {
			c.logger.Info("shuffle room already exists", slog.String("topic", topic), slog.Int("group", k))
			room = db.Room{ChannelName: strings.ToLower(fmt.Sprintf("%s%s_%d", c.opts.ChannelPrefix, topic, k))}
		} else if err != nil {
			return "", storeFailure("create shuffle room", err)
		}
		if _, err := c.store.EnqueueMany(ctx, members, "You have been placed in "+room.ChannelName); err != nil {
			return "", storeFailure("enqueue shuffle invites", err)
		}
		created = append(created, room.ChannelName)
	}
	return fmt.Sprintf("Shuffled %d members into %d groups: %s", len(subs), len(groups), strings.Join(created, ", ")), nil
}

// Groups deals members into len(members)/size groups (at least one) after a random shuffle.
// intn must return a value in [0, n).
func Groups(members []string, size int, intn func(int) int) [][]string {
	if len(members) == 0 || size <= 0 {
		return nil
	}
	n := len(members) / size
	if n < 1 {
		n = 1
	}
	pool := append([]string(nil), members...)
	for i := len(pool) - 1; i > 0; i-- {
		j := intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([][]string, n)
	for i, m := range pool {
		out[i%n] = append(out[i%n], m)
	}
	return out
}

func (c *Commands) timer(_ context.Context, req Request) (string, error) {
	minutes, name := splitFirst(Sanitize(req.Args))
	n, err := strconv.Atoi(minutes)
	if err != nil || n <= 0 {
		return "", invalid("Incorrect time value: !timer <integer> <name>")
	}
	delay := time.Duration(n) * time.Minute
	if delay > c.opts.MaxTimer {
		return "", invalid(fmt.Sprintf("Timer too long, maximum is %d minutes.", int(c.opts.MaxTimer.Minutes())))
	}
	if c.scheduler == nil {
		return "", storeFailure("schedule timer", errors.New("no scheduler configured"))
	}
	secs := int(delay.Seconds())
	alarm := fmt.Sprintf("!!!!!! %d sec ALARM !!!!!!!", secs)
	if name = SanitizeIdent(name); name != "" {
		alarm = fmt.Sprintf("!!!!!! %s : %d sec ALARM !!!!!!!", name, secs)
	}
	dest := req.ReplyTarget()
	c.scheduler.After(delay, "timer", func(ctx context.Context) error {
		_, err := c.store.Enqueue(ctx, dest, alarm)
		return err
	})
	return fmt.Sprintf("Set %d sec Alarm.", secs), nil
}
