package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
)

type NotificationStore interface {
	CreateNotification(ctx context.Context, n database.Notification) error
	ListNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]database.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userId string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userId string) (int64, error)
}

type NotifyParams struct {
	Recipients []string               `json:"recipients" validate:"required,min=1,dive,max=128"`
	Type       types.NotificationType `json:"type" validate:"required"`
	Title      string                 `json:"title" validate:"required,max=200"`
	Content    string                 `json:"content" validate:"max=4000"`
	Link       string                 `json:"link,omitempty" validate:"max=512"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
}

// Dispatcher creates per-recipient notifications and pushes them to online
// recipients. Notify must run on the hub loop since it reads presence; the
// read-side methods only touch storage and are safe from any goroutine.
type Dispatcher struct {
	presence *Presence
	out      Broadcaster
	store    NotificationStore
	writer   *asyncWriter
	stats    stats.StatsProvider
	clock    func() time.Time
	newId    func() string
}

func NewDispatcher(p *Presence, out Broadcaster, store NotificationStore, w *asyncWriter, st stats.StatsProvider, clock func() time.Time) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		presence: p,
		out:      out,
		store:    store,
		writer:   w,
		stats:    st,
		clock:    clock,
		newId:    uuid.NewString,
	}
}

func (d *Dispatcher) Notify(p NotifyParams) ([]types.Notification, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, p.Type)
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidNotification)
	}

	recipients := dedupeRecipients(p.Recipients)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrInvalidNotification)
	}

	now := d.clock().UTC()
	out := make([]types.Notification, 0, len(recipients))
	for _, userId := range recipients {
		n := types.Notification{
			Id:        d.newId(),
			UserId:    userId,
			Type:      p.Type,
			Title:     p.Title,
			Content:   p.Content,
			Link:      p.Link,
			Metadata:  maps.Clone(p.Metadata),
			CreatedAt: now,
			UpdatedAt: now,
		}

		d.persist(n)
		d.stats.Incr(stats.NumNotifications)
		if d.presence.IsOnline(userId) {
			d.out.SendToUser(userId, newEvent(EventNotification, n))
		}

		out = append(out, n)
	}

	return out, nil
}

func (d *Dispatcher) persist(n types.Notification) {
	row := toNotificationRow(n)
	d.writer.Go("notification", func(ctx context.Context) error {
		if err := d.store.CreateNotification(ctx, row); err != nil {
			return fmt.Errorf("store notification %s for %s: %w", row.Id, row.UserId, err)
		}
		return nil
	})
}

// MarkRead flags one notification as read. Unknown ids and notifications
// owned by another user both report ErrNotFound.
func (d *Dispatcher) MarkRead(ctx context.Context, id, userId string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	ok, err := d.store.MarkNotificationRead(ctx, id, userId)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userId string) (int64, error) {
	n, err := d.store.MarkAllNotificationsRead(ctx, userId)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, nil
}

func (d *Dispatcher) List(ctx context.Context, userId string, unreadOnly bool, limit int) ([]types.Notification, error) {
	rows, err := d.store.ListNotifications(ctx, userId, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	out := make([]types.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromNotificationRow(row))
	}
	return out, nil
}

func dedupeRecipients(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func toNotificationRow(n types.Notification) database.Notification {
	return database.Notification{
		Id:        n.Id,
		UserId:    n.UserId,
		Type:      string(n.Type),
		Title:     n.Title,
		Content:   n.Content,
		Link:      sql.NullString{String: n.Link, Valid: n.Link != ""},
		IsRead:    n.IsRead,
		Metadata:  database.JSONMap(n.Metadata),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func fromNotificationRow(row database.Notification) types.Notification {
	return types.Notification{
		Id:        row.Id,
		UserId:    row.UserId,
		Type:      types.NotificationType(row.Type),
		Title:     row.Title,
		Content:   row.Content,
		Link:      row.Link.String,
		IsRead:    row.IsRead,
		Metadata:  map[string]any(row.Metadata),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// CourseNotification announces a new course to its enrolled users.
func CourseNotification(ev NewCourse) NotifyParams {
	return NotifyParams{
		Recipients: ev.Recipients,
		Type:       types.NotificationCourse,
		Title:      "New course: " + ev.Title,
		Content:    ev.Title,
		Link:       "/courses/" + ev.CourseId,
		Metadata:   map[string]any{"courseId": ev.CourseId},
	}
}

func StreamNotification(ev NewStream) NotifyParams {
	return NotifyParams{
		Recipients: ev.Recipients,
		Type:       types.NotificationStream,
		Title:      "Live stream: " + ev.Title,
		Content:    ev.Title,
		Link:       "/streams/" + ev.StreamId,
		Metadata:   map[string]any{"streamId": ev.StreamId},
	}
}

// DirectMessageNotification tells the recipient of a DM who wrote to them.
func DirectMessageNotification(from Identity, ev NewDirectMessage) NotifyParams {
	roomId := DirectRoomId(from.UserId, ev.ToUserId)
	return NotifyParams{
		Recipients: []string{ev.ToUserId},
		Type:       types.NotificationMessage,
		Title:      "New message from " + from.Username,
		Content:    ev.Message,
		Link:       "/messages/" + roomId,
		Metadata: map[string]any{
			"roomId":   roomId,
			"senderId": from.UserId,
		},
	}
}

// DomainNotification decodes a newCourse, newStream or newMessage payload
// sent by from and maps it to notification parameters.
func DomainNotification(from Identity, event string, raw json.RawMessage) (NotifyParams, error) {
	switch event {
	case EventNewCourse:
		var ev NewCourse
		if err := decodePayload(raw, &ev); err != nil {
			return NotifyParams{}, err
		}
		return CourseNotification(ev), nil
	case EventNewStream:
		var ev NewStream
		if err := decodePayload(raw, &ev); err != nil {
			return NotifyParams{}, err
		}
		return StreamNotification(ev), nil
	case EventNewMessage:
		if from.UserId == "" {
			return NotifyParams{}, ErrNotRegistered
		}
		var ev NewDirectMessage
		if err := decodePayload(raw, &ev); err != nil {
			return NotifyParams{}, err
		}
		return DirectMessageNotification(from, ev), nil
	}
	return NotifyParams{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
}
