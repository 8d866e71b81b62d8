package chat

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/confbot/telemetry"
)

// ErrNotConnected is returned by Say while the client has no live connection.
var ErrNotConnected = errors.New("chat: not connected")

// Config holds connection settings.
type Config struct {
	Server   string // host:port
	TLS      bool
	Nick     string
	Password string
}

// Handlers receive inbound traffic. Nil handlers are skipped.
type Handlers struct {
	OnConnect func()
	// OnMessage receives channel messages and private messages; for the latter channel is the
	// bot's own nick.
	OnMessage func(actor, channel, text string)
	OnNames   func(channel string, members []string)
	// OnMembership reports other users joining (joined=true) or leaving a channel.
	OnMembership func(user, channel string, joined bool)
}

// Client is the bot's IRC connection.
type Client struct {
	cfg       Config
	handlers  Handlers
	connected atomic.Bool
	logger    *slog.Logger

	// idle is how long the connection may stay silent before a PING is sent; pongWait is how
	// long the answer may take after that.
	idle     time.Duration
	pongWait time.Duration

	mu       sync.Mutex
	conn     net.Conn
	channels map[string]bool
	names    map[string][]string
}

// NewClient configures a client; nothing is dialed until Run.
func NewClient(cfg Config, h Handlers) *Client {
	return &Client{
		cfg:      cfg,
		handlers: h,
		logger:   slog.Default().With(slog.String("component", "chat"), slog.String("server", cfg.Server)),
		idle:     90 * time.Second,
		pongWait: 30 * time.Second,
		channels: make(map[string]bool),
		names:    make(map[string][]string),
	}
}

// Nick returns the bot's nick.
func (c *Client) Nick() string { return c.cfg.Nick }

// Connected reports whether the client is registered with the server.
func (c *Client) Connected() bool { return c.connected.Load() }

// Say sends text to a channel ("#name") or, privately, to a nick. Each line of a multi-line text
// is sent as its own message.
func (c *Client) Say(target, text string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if target == "" || strings.ContainsAny(target, " \r\n") {
		return fmt.Errorf("chat: invalid target %q", target)
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := c.send("PRIVMSG " + target + " :" + line); err != nil {
			return err
		}
	}
	return nil
}

// Join joins channel now, or on the next connect when offline.
func (c *Client) Join(channel string) error {
	if !isChannel(channel) {
		return fmt.Errorf("chat: invalid channel %q", channel)
	}
	channel = strings.ToLower(channel)
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
	if !c.Connected() {
		return nil
	}
	return c.send("JOIN " + channel)
}

// Depart leaves channel.
func (c *Client) Depart(channel string) error {
	if !isChannel(channel) {
		return fmt.Errorf("chat: invalid channel %q", channel)
	}
	channel = strings.ToLower(channel)
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
	if !c.Connected() {
		return nil
	}
	return c.send("PART " + channel)
}

// RequestNames sends NAMES for channel. The reply is delivered to Handlers.OnNames once the
// server ends the list; a channel with no visible members yields no callback.
func (c *Client) RequestNames(channel string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if !isChannel(channel) {
		return fmt.Errorf("chat: invalid channel %q", channel)
	}
	return c.send("NAMES " + strings.ToLower(channel))
}

// Run connects, registers and blocks until the connection ends or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Server, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.names = make(map[string][]string)
	c.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.connected.Store(false)
		telemetry.SetTransportConnected(false)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := c.register(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("register: %w", err)
	}

	err = c.read(conn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 10 * time.Second}
	if !c.cfg.TLS {
		return dialer.DialContext(ctx, "tcp", c.cfg.Server)
	}
	host, _, err := net.SplitHostPort(c.cfg.Server)
	if err != nil {
		return nil, err
	}
	td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return td.DialContext(ctx, "tcp", c.cfg.Server)
}

func (c *Client) register() error {
	if c.cfg.Password != "" {
		if err := c.send("PASS " + c.cfg.Password); err != nil {
			return err
		}
	}
	if err := c.send("NICK " + c.cfg.Nick); err != nil {
		return err
	}
	return c.send("USER " + c.cfg.Nick + " 0 * :" + c.cfg.Nick)
}

func (c *Client) read(conn net.Conn) error {
	tp := textproto.NewReader(bufio.NewReader(conn))
	pinged := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.idle))
		if pinged {
			_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		}
		line, err := tp.ReadLine()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() && !pinged {
				pinged = true
				if err := c.send("PING :" + c.cfg.Nick); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		pinged = false
		if err := c.handleLine(line); err != nil {
			return err
		}
	}
}

// handleLine decodes one server line. Errors end the connection.
func (c *Client) handleLine(line string) error {
	h := parseHead(line)
	switch h.command {
	case "001":
		c.welcome()
		return nil
	case "366":
		if len(h.params) >= 2 {
			c.flushNames(strings.ToLower(h.params[1]))
		}
		return nil
	case "432", "433":
		return fmt.Errorf("nick %q rejected: %s", c.cfg.Nick, h.command)
	case "ERROR":
		return fmt.Errorf("server closed link: %s", strings.Join(h.params, " "))
	case "PRIVMSG", "JOIN", "PART":
		if len(h.params) == 0 {
			return nil
		}
	}

	switch msg := twitch.ParseMessage(line).(type) {
	case *twitch.PrivateMessage:
		c.dispatchMessage(h, msg.Message)
	case *twitch.NamesMessage:
		if msg.Channel != "" {
			c.addNames("#"+strings.ToLower(msg.Channel), msg.Users)
		}
	case *twitch.PingMessage:
		if msg.Message == "" {
			return c.send("PONG")
		}
		return c.send("PONG :" + msg.Message)
	case *twitch.UserJoinMessage:
		c.membership(h, true)
	case *twitch.UserPartMessage:
		c.membership(h, false)
	}
	return nil
}

func (c *Client) welcome() {
	if c.connected.Swap(true) {
		return
	}
	telemetry.SetTransportConnected(true)
	c.logger.Info("chat connected", slog.String("nick", c.cfg.Nick))
	c.mu.Lock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	for _, ch := range channels {
		if err := c.send("JOIN " + ch); err != nil {
			c.logger.Warn("rejoin failed", slog.String("channel", ch), slog.Any("err", err))
		}
	}
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
}

func (c *Client) dispatchMessage(h head, text string) {
	if c.handlers.OnMessage == nil || h.nick == "" || len(h.params) < 2 {
		return
	}
	target := h.params[0]
	if isChannel(target) {
		c.handlers.OnMessage(h.nick, strings.ToLower(target), text)
		return
	}
	if strings.EqualFold(target, c.cfg.Nick) {
		c.handlers.OnMessage(h.nick, c.cfg.Nick, text)
	}
}

func (c *Client) membership(h head, joined bool) {
	if c.handlers.OnMembership == nil || h.nick == "" || strings.EqualFold(h.nick, c.cfg.Nick) {
		return
	}
	c.handlers.OnMembership(h.nick, strings.ToLower(h.params[0]), joined)
}

func (c *Client) addNames(channel string, users []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		u = strings.TrimLeft(u, "~&@%+")
		if u != "" {
			c.names[channel] = append(c.names[channel], u)
		}
	}
}

func (c *Client) flushNames(channel string) {
	c.mu.Lock()
	members, ok := c.names[channel]
	delete(c.names, channel)
	c.mu.Unlock()
	if !ok || c.handlers.OnNames == nil {
		return
	}
	c.handlers.OnNames(channel, members)
}

func (c *Client) send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("%w: write: %v", ErrNotConnected, err)
	}
	return nil
}

// head is the part of a line the decoder in go-twitch-irc does not keep: the sender's nick
// (not its ident) and the raw parameters, whose first entry tells a channel from a nick.
type head struct {
	nick    string
	command string
	params  []string
}

func parseHead(line string) head {
	var h head
	if strings.HasPrefix(line, "@") {
		_, line, _ = strings.Cut(line, " ")
	}
	if strings.HasPrefix(line, ":") {
		var prefix string
		prefix, line, _ = strings.Cut(line[1:], " ")
		if nick, _, found := strings.Cut(prefix, "!"); found {
			h.nick = nick
		} else if !strings.Contains(prefix, ".") {
			h.nick = prefix
		}
	}
	h.command, line, _ = strings.Cut(strings.TrimLeft(line, " "), " ")
	for line != "" {
		if strings.HasPrefix(line, ":") {
			h.params = append(h.params, line[1:])
			break
		}
		var p string
		p, line, _ = strings.Cut(line, " ")
		if p != "" {
			h.params = append(h.params, p)
		}
	}
	return h
}

func isChannel(name string) bool {
	return len(name) > 1 && (name[0] == '#' || name[0] == '&') && !strings.ContainsAny(name, " ,\r\n\a")
}
