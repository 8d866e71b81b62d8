package command

import (
	"context"
	"time"

	"github.com/onnwee/confbot/db"
)

// Store is the subset of *db.Store the command handlers use.
type Store interface {
	CreateRoom(ctx context.Context, creator, link, channel string) (db.Room, error)
	ListRooms(ctx context.Context, offset, limit int) ([]db.Room, error)
	AllRooms(ctx context.Context) ([]db.Room, error)
	CountRooms(ctx context.Context) (int, error)

	TopicExists(ctx context.Context, topic string) (bool, error)
	JoinTopic(ctx context.Context, topic, member string) (bool, error)
	TopicSubscribers(ctx context.Context, topic string) ([]string, error)
	ListTopics(ctx context.Context) ([]string, error)

	AddQuestion(ctx context.Context, channel, creator, body string) (int, error)
	GetQuestion(ctx context.Context, channel string, seq int) (db.Question, int, error)
	ClearQuestions(ctx context.Context, channel string) (int64, error)

	Enqueue(ctx context.Context, destination, body string) (int64, error)
	EnqueueMany(ctx context.Context, destinations []string, body string) (int, error)
}

// Joiner joins the bot to a newly created channel.
type Joiner interface {
	Join(channel string) error
}

// Scheduler defers work to a later turn of the bot's event loop.
type Scheduler interface {
	After(delay time.Duration, job string, fn func(ctx context.Context) error)
}

var _ Store = (*db.Store)(nil)
