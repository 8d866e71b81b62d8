package command

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/onnwee/confbot/db"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRoom(ctx context.Context, creator, link, channel string) (db.Room, error) {
	args := m.Called(ctx, creator, link, channel)
	return args.Get(0).(db.Room), args.Error(1)
}
func (m *MockStore) ListRooms(ctx context.Context, offset, limit int) ([]db.Room, error) {
	args := m.Called(ctx, offset, limit)
	rooms, _ := args.Get(0).([]db.Room)
	return rooms, args.Error(1)
}
func (m *MockStore) AllRooms(ctx context.Context) ([]db.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]db.Room)
	return rooms, args.Error(1)
}
func (m *MockStore) CountRooms(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) TopicExists(ctx context.Context, topic string) (bool, error) {
	args := m.Called(ctx, topic)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) JoinTopic(ctx context.Context, topic, member string) (bool, error) {
	args := m.Called(ctx, topic, member)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) TopicSubscribers(ctx context.Context, topic string) ([]string, error) {
	args := m.Called(ctx, topic)
	subs, _ := args.Get(0).([]string)
	return subs, args.Error(1)
}
func (m *MockStore) ListTopics(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	topics, _ := args.Get(0).([]string)
	return topics, args.Error(1)
}
func (m *MockStore) AddQuestion(ctx context.Context, channel, creator, body string) (int, error) {
	args := m.Called(ctx, channel, creator, body)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) GetQuestion(ctx context.Context, channel string, seq int) (db.Question, int, error) {
	args := m.Called(ctx, channel, seq)
	return args.Get(0).(db.Question), args.Int(1), args.Error(2)
}
func (m *MockStore) ClearQuestions(ctx context.Context, channel string) (int64, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) Enqueue(ctx context.Context, destination, body string) (int64, error) {
	args := m.Called(ctx, destination, body)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) EnqueueMany(ctx context.Context, destinations []string, body string) (int, error) {
	args := m.Called(ctx, destinations, body)
	return args.Int(0), args.Error(1)
}
