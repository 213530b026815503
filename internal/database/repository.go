package database

import (
	"context"
	"time"
)

type Repository interface {
	Ping(ctx context.Context) error
	CreateRoomMessage(ctx context.Context, msg RoomMessage) error
	GetRoomMessages(ctx context.Context, roomId string, before time.Time, limit int) ([]RoomMessage, error)
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userId string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userId string) (int64, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
