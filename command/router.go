// Package command parses "!"-prefixed chat lines and dispatches them to registered handlers.
//
// Handlers are bound by an explicit registration table, one entry per command with any number of
// aliases. Unknown commands are ignored without a reply. Handler failures are typed (*Error) and
// rendered by the router; a handler panic becomes the generic failure reply.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/confbot/telemetry"
)

// Sentinel starts every command line.
const Sentinel = "!"

// Request is one parsed command invocation.
type Request struct {
	Actor   string // nick that sent the line
	Channel string // channel the line arrived on, or the bot's nick for a private message
	Name    string // command name as typed
	Args    string // unparsed remainder
	Private bool
}

// ReplyTarget is where responses and follow-up messages for this request belong.
func (r Request) ReplyTarget() string {
	if r.Private {
		return r.Actor
	}
	return r.Channel
}

// Handler runs one command and returns the reply text.
type Handler func(ctx context.Context, req Request) (string, error)

// Route is one registration table entry.
type Route struct {
	Name         string
	Aliases      []string
	OperatorOnly bool
	Handler      Handler
}

// Reply is a rendered response ready for the transport.
type Reply struct {
	Target string
	Text   string
}

// Router maps command names and aliases to handlers.
type Router struct {
	nick       string
	isOperator func(nick string) bool
	routes     map[string]*Route
	logger     *slog.Logger
}

// NewRouter returns an empty router for a bot using nick. isOperator decides operator-only routes;
// nil denies everyone.
func NewRouter(nick string, isOperator func(string) bool) *Router {
	if isOperator == nil {
		isOperator = func(string) bool { return false }
	}
	return &Router{
		nick:       nick,
		isOperator: isOperator,
		routes:     make(map[string]*Route),
		logger:     slog.Default().With(slog.String("component", "command_router")),
	}
}

// Register adds a route under its name and aliases. Registering a name twice panics.
func (r *Router) Register(rt Route) {
	if rt.Handler == nil {
		panic(fmt.Sprintf("command %q registered without handler", rt.Name))
	}
	route := rt
	for _, name := range append([]string{rt.Name}, rt.Aliases...) {
		if _, dup := r.routes[name]; dup {
			panic(fmt.Sprintf("command %q registered twice", name))
		}
		r.routes[name] = &route
	}
}

// Names returns every registered name and alias, sorted.
func (r *Router) Names() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parse splits a chat line into command name and argument text. ok is false when the line does
// not start with the sentinel or has no name.
func Parse(line string) (name, args string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, Sentinel) {
		return "", "", false
	}
	rest := strings.TrimPrefix(line, Sentinel)
	if rest == "" || isSpace(rune(rest[0])) {
		return "", "", false
	}
	name, args = splitFirst(rest)
	return name, args, true
}

// Dispatch handles one inbound line. ok is false when the line is not a known command; nothing
// should be sent in that case.
func (r *Router) Dispatch(ctx context.Context, actor, channel, line string) (reply Reply, ok bool) {
	name, args, ok := Parse(line)
	if !ok {
		return Reply{}, false
	}
	route, found := r.routes[name]
	if !found {
		r.logger.Debug("ignoring unknown command", slog.String("command", name), slog.String("actor", actor))
		return Reply{}, false
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "command_router"),
		slog.String("command", route.Name),
		slog.String("actor", actor),
		slog.String("channel", channel),
	)
	req := Request{
		Actor:   actor,
		Channel: channel,
		Name:    name,
		Args:    args,
		Private: strings.EqualFold(channel, r.nick),
	}

	text, err := r.invoke(ctx, route, req)
	outcome := "ok"
	if err != nil {
		e := asError(err)
		outcome = string(e.Kind)
		if e.Kind == KindStoreFailure {
			logger.Error("command failed", slog.String("op", e.Message), slog.Any("err", e.Cause))
		} else {
			logger.Info("command rejected", slog.String("kind", string(e.Kind)), slog.String("reason", e.Message))
		}
		text = e.Reply()
	} else {
		logger.Debug("command handled")
	}
	telemetry.ObserveCommand(route.Name, outcome)

	if req.Private {
		return Reply{Target: actor, Text: text}, true
	}
	return Reply{Target: channel, Text: actor + ", " + text}, true
}

func (r *Router) invoke(ctx context.Context, route *Route, req Request) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = storeFailure("panic", fmt.Errorf("handler panic: %v", p))
		}
	}()
	if route.OperatorOnly && !r.isOperator(req.Actor) {
		return "", denied()
	}
	return route.Handler(ctx, req)
}
