package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/npezzotti/go-classroom/internal/types"
)

const defaultHistoryLimit = 50

// MembersOf returns the usernames currently in roomId.
func (h *Hub) MembersOf(ctx context.Context, roomId string) ([]string, error) {
	if !ValidRoomId(roomId) {
		return nil, ErrInvalidRoom
	}

	var users []string
	if err := h.call(ctx, func() {
		users = h.rooms.MembersOf(roomId)
	}); err != nil {
		return nil, err
	}
	return users, nil
}

func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	var users []string
	if err := h.call(ctx, func() {
		users = h.presence.OnlineUsers()
	}); err != nil {
		return nil, err
	}
	return users, nil
}

func (h *Hub) IsOnline(ctx context.Context, userId string) (bool, error) {
	var online bool
	if err := h.call(ctx, func() {
		online = h.presence.IsOnline(userId)
	}); err != nil {
		return false, err
	}
	return online, nil
}

// Notify dispatches a notification from outside the loop.
func (h *Hub) Notify(ctx context.Context, p NotifyParams) ([]types.Notification, error) {
	var (
		sent      []types.Notification
		notifyErr error
	)
	err := h.call(ctx, func() {
		sent, notifyErr = h.notifier.Notify(p)
	})
	if err != nil {
		return nil, err
	}
	return sent, notifyErr
}

// NotifyEvent maps a domain event raised by from and dispatches it.
func (h *Hub) NotifyEvent(ctx context.Context, from Identity, event string, raw json.RawMessage) ([]types.Notification, error) {
	p, err := DomainNotification(from, event, raw)
	if err != nil {
		return nil, err
	}
	return h.Notify(ctx, p)
}

func (h *Hub) Notifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]types.Notification, error) {
	return h.notifier.List(ctx, userId, unreadOnly, limit)
}

func (h *Hub) MarkRead(ctx context.Context, id, userId string) error {
	return h.notifier.MarkRead(ctx, id, userId)
}

func (h *Hub) MarkAllRead(ctx context.Context, userId string) (int64, error) {
	return h.notifier.MarkAllRead(ctx, userId)
}

// RoomMessages returns up to limit messages older than before, oldest first.
// The latest page is served from the cache when it holds enough history.
func (h *Hub) RoomMessages(ctx context.Context, roomId string, before time.Time, limit int) ([]types.Message, error) {
	if !ValidRoomId(roomId) {
		return nil, ErrInvalidRoom
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if before.IsZero() && h.cache != nil {
		msgs, err := h.cache.Recent(ctx, roomId, limit)
		if err == nil {
			return msgs, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.log.Warn().Err(err).Str(logging.FieldRoomId, roomId).Msg("message cache read failed")
		}
	}

	rows, err := h.db.GetRoomMessages(ctx, roomId, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	msgs := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, types.Message{
			Id:        row.Id,
			RoomId:    row.RoomId,
			Username:  row.Username,
			Message:   row.Body,
			Timestamp: row.CreatedAt.UTC(),
		})
	}
	return msgs, nil
}
