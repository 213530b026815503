package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) CreateRoomMessage(ctx context.Context, msg RoomMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockRepository) GetRoomMessages(ctx context.Context, roomId string, before time.Time, limit int) ([]RoomMessage, error) {
	args := m.Called(ctx, roomId, before, limit)
	if msgs, ok := args.Get(0).([]RoomMessage); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) CreateNotification(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *MockRepository) ListNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]Notification, error) {
	args := m.Called(ctx, userId, unreadOnly, limit)
	if ns, ok := args.Get(0).([]Notification); ok {
		return ns, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) MarkNotificationRead(ctx context.Context, id, userId string) (bool, error) {
	args := m.Called(ctx, id, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) MarkAllNotificationsRead(ctx context.Context, userId string) (int64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) ListCategories(ctx context.Context) ([]Category, error) {
	args := m.Called(ctx)
	if cs, ok := args.Get(0).([]Category); ok {
		return cs, args.Error(1)
	}
	return nil, args.Error(1)
}
