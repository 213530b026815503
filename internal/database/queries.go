package database

import (
	"context"
	"fmt"
	"slices"
	"time"
)

const (
	defaultMessageLimit      = 50
	defaultNotificationLimit = 50
	maxLimit                 = 200
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

func (db *PgRepository) CreateRoomMessage(ctx context.Context, msg RoomMessage) error {
	_, err := db.conn.NamedExecContext(ctx,
		"INSERT INTO room_messages (id, room_id, username, body, created_at) "+
			"VALUES (:id, :room_id, :username, :body, :created_at)",
		msg,
	)
	if err != nil {
		return fmt.Errorf("insert room message: %w", err)
	}

	return nil
}

// GetRoomMessages returns up to limit messages created strictly before the
// given time (no bound when zero), oldest first.
func (db *PgRepository) GetRoomMessages(ctx context.Context, roomId string, before time.Time, limit int) ([]RoomMessage, error) {
	limit = clampLimit(limit, defaultMessageLimit)
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Minute)
	}

	messages := make([]RoomMessage, 0, limit)
	err := db.conn.SelectContext(ctx, &messages,
		"SELECT id, room_id, username, body, created_at FROM room_messages "+
			"WHERE room_id = $1 AND created_at < $2 ORDER BY created_at DESC, id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select room messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (db *PgRepository) CreateNotification(ctx context.Context, n Notification) error {
	_, err := db.conn.NamedExecContext(ctx,
		"INSERT INTO notifications (id, user_id, type, title, content, link, is_read, metadata, created_at, updated_at) "+
			"VALUES (:id, :user_id, :type, :title, :content, :link, :is_read, :metadata, :created_at, :updated_at)",
		n,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

func (db *PgRepository) ListNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]Notification, error) {
	limit = clampLimit(limit, defaultNotificationLimit)

	query := "SELECT id, user_id, type, title, content, link, is_read, metadata, created_at, updated_at " +
		"FROM notifications WHERE user_id = $1"
	if unreadOnly {
		query += " AND is_read = false"
	}
	query += " ORDER BY created_at DESC LIMIT $2"

	notifications := make([]Notification, 0)
	if err := db.conn.SelectContext(ctx, &notifications, query, userId, limit); err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead reports false when no notification with the id
// belongs to the user.
func (db *PgRepository) MarkNotificationRead(ctx context.Context, id, userId string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET is_read = true, updated_at = $3 WHERE id = $1 AND user_id = $2",
		id,
		userId,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("update notification: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

func (db *PgRepository) MarkAllNotificationsRead(ctx context.Context, userId string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET is_read = true, updated_at = $2 WHERE user_id = $1 AND is_read = false",
		userId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}

	return res.RowsAffected()
}

func (db *PgRepository) ListCategories(ctx context.Context) ([]Category, error) {
	categories := make([]Category, 0)
	err := db.conn.SelectContext(ctx, &categories,
		"SELECT id, name, COALESCE(description, '') AS description FROM categories ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}

	return categories, nil
}
