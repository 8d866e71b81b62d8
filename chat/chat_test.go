package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHead(t *testing.T) {
	h := parseHead("@badge-info=;color= :mallory!admin@host.example PRIVMSG confbot :!op alice")
	assert.Equal(t, "mallory", h.nick)
	assert.Equal(t, "PRIVMSG", h.command)
	assert.Equal(t, []string{"confbot", "!op alice"}, h.params)

	h = parseHead(":irc.example.net 353 confbot = #seagl :@alice bob")
	assert.Equal(t, "", h.nick)
	assert.Equal(t, []string{"confbot", "=", "#seagl", "@alice bob"}, h.params)

	h = parseHead("PING :irc.example.net")
	assert.Equal(t, "PING", h.command)
	assert.Equal(t, []string{"irc.example.net"}, h.params)

	assert.True(t, isChannel("#seagl-main"))
	assert.False(t, isChannel("confbot"))
	assert.False(t, isChannel("#a,#b"))
}

func TestClientRequiresConnection(t *testing.T) {
	c := NewClient(Config{Server: "127.0.0.1:1", Nick: "confbot", Password: "pw"}, Handlers{})
	assert.False(t, c.Connected())
	assert.True(t, errors.Is(c.Say("#a", "hi"), ErrNotConnected))
	assert.True(t, errors.Is(c.RequestNames("#a"), ErrNotConnected))
	assert.Error(t, c.Join("nochannel"))
	assert.Error(t, c.Depart("nochannel"))
	// joins are queued until connect
	assert.NoError(t, c.Join("#seagl-main"))
	assert.NoError(t, c.Depart("#seagl-main"))
	assert.Equal(t, "confbot", c.Nick())
}

// ircServer is a single-connection IRC server for exercising the client over a socket.
type ircServer struct {
	ln    net.Listener
	conn  net.Conn
	lines chan string
}

func startIRCServer(t *testing.T) *ircServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return &ircServer{ln: ln, lines: make(chan string, 64)}
}

func (s *ircServer) accept(t *testing.T) {
	t.Helper()
	_ = s.ln.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	s.conn = conn
	go func() {
		tp := textproto.NewReader(bufio.NewReader(conn))
		for {
			line, err := tp.ReadLine()
			if err != nil {
				close(s.lines)
				return
			}
			s.lines <- line
		}
	}()
}

func (s *ircServer) next(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-s.lines:
		require.True(t, ok, "client closed the connection")
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client line")
		return ""
	}
}

func (s *ircServer) send(t *testing.T, line string) {
	t.Helper()
	_, err := s.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func nextEvent(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client callback")
		return ""
	}
}

func TestClientSession(t *testing.T) {
	events := make(chan string, 32)
	h := Handlers{
		OnConnect: func() { events <- "connect" },
		OnMessage: func(actor, channel, text string) {
			events <- fmt.Sprintf("msg %s %s %s", actor, channel, text)
		},
		OnNames: func(channel string, members []string) {
			events <- "names " + channel + " " + strings.Join(members, ",")
		},
		OnMembership: func(user, channel string, joined bool) {
			events <- fmt.Sprintf("member %s %s %t", user, channel, joined)
		},
	}
	srv := startIRCServer(t)
	c := NewClient(Config{Server: srv.ln.Addr().String(), Nick: "confbot", Password: "pw"}, h)
	require.NoError(t, c.Join("#SeaGL-Main"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	srv.accept(t)
	assert.Equal(t, "PASS pw", srv.next(t))
	assert.Equal(t, "NICK confbot", srv.next(t))
	assert.Equal(t, "USER confbot 0 * :confbot", srv.next(t))
	assert.False(t, c.Connected())

	srv.send(t, ":irc.example.net 001 confbot :Welcome to the network")
	assert.Equal(t, "JOIN #seagl-main", srv.next(t))
	assert.Equal(t, "connect", nextEvent(t, events))
	assert.True(t, c.Connected())

	// the actor is the nick, never the ident
	srv.send(t, ":mallory!alice@host.example PRIVMSG confbot :!ping")
	assert.Equal(t, "msg mallory confbot !ping", nextEvent(t, events))
	srv.send(t, ":alice!a@host.example PRIVMSG #SeaGL-Main :hello there")
	assert.Equal(t, "msg alice #seagl-main hello there", nextEvent(t, events))
	// a channel named after the bot is still a channel
	srv.send(t, ":alice!a@host.example PRIVMSG #confbot :!ping")
	assert.Equal(t, "msg alice #confbot !ping", nextEvent(t, events))

	srv.send(t, ":confbot!c@host.example JOIN #seagl-main")
	srv.send(t, ":bob!b@host.example JOIN #seagl-main")
	assert.Equal(t, "member bob #seagl-main true", nextEvent(t, events))
	srv.send(t, ":bob!b@host.example PART #seagl-main :bye")
	assert.Equal(t, "member bob #seagl-main false", nextEvent(t, events))

	require.NoError(t, c.RequestNames("#seagl-main"))
	assert.Equal(t, "NAMES #seagl-main", srv.next(t))
	srv.send(t, ":irc.example.net 353 confbot = #seagl-main :@alice +bob")
	srv.send(t, ":irc.example.net 353 confbot = #seagl-main :confbot")
	srv.send(t, ":irc.example.net 366 confbot #seagl-main :End of /NAMES list.")
	assert.Equal(t, "names #seagl-main alice,bob,confbot", nextEvent(t, events))

	srv.send(t, "PING :irc.example.net")
	assert.Equal(t, "PONG :irc.example.net", srv.next(t))

	require.NoError(t, c.Say("alice", "pong"))
	assert.Equal(t, "PRIVMSG alice :pong", srv.next(t))
	require.NoError(t, c.Say("#seagl-main", "one\ntwo"))
	assert.Equal(t, "PRIVMSG #seagl-main :one", srv.next(t))
	assert.Equal(t, "PRIVMSG #seagl-main :two", srv.next(t))
	assert.Error(t, c.Say("two words", "x"))

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.Connected())
}

func TestClientNickRejected(t *testing.T) {
	srv := startIRCServer(t)
	c := NewClient(Config{Server: srv.ln.Addr().String(), Nick: "confbot"}, Handlers{})
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.Background()) }()

	srv.accept(t)
	assert.Equal(t, "NICK confbot", srv.next(t))
	assert.Equal(t, "USER confbot 0 * :confbot", srv.next(t))
	srv.send(t, ":irc.example.net 433 * confbot :Nickname is already in use")

	select {
	case err := <-runErr:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "433")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, c.Connected())
}

func TestTranscript(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTranscript(dir)
	require.NoError(t, err)
	tr.now = func() time.Time { return time.Date(2026, 11, 13, 9, 30, 0, 0, time.UTC) }

	require.NoError(t, tr.Log("#SeaGL-Main", "alice", "hello"))
	require.NoError(t, tr.Log("#seagl-main", "confbot", "line one\nline two"))
	require.NoError(t, tr.Log("#../etc", "mallory", "x"))

	raw, err := os.ReadFile(filepath.Join(dir, "seagl-main.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "11.13.26-09:30:00 :alice:hello", lines[0])
	assert.Equal(t, "11.13.26-09:30:00 :confbot:line one | line two", lines[1])

	assert.Equal(t, dir, filepath.Dir(tr.Path("#../etc")))
	assert.Equal(t, filepath.Join(dir, "a_b.log"), tr.Path(`#a\b`))
}

func TestTranscriptDisabled(t *testing.T) {
	tr, err := NewTranscript("")
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.NoError(t, tr.Log("#a", "alice", "dropped"))
}
