package hub

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/oklog/ulid/v2"
)

type MessageStore interface {
	CreateRoomMessage(ctx context.Context, msg database.RoomMessage) error
}

// Relay validates, stamps, persists and fans out chat messages. It is driven
// from the hub loop and is not safe for concurrent use.
type Relay struct {
	out     Broadcaster
	store   MessageStore
	cache   cache.MessageCache
	writer  *asyncWriter
	clock   func() time.Time
	entropy io.Reader
	last    time.Time
}

func NewRelay(out Broadcaster, store MessageStore, mc cache.MessageCache, w *asyncWriter, clock func() time.Time) *Relay {
	if clock == nil {
		clock = time.Now
	}
	return &Relay{
		out:     out,
		store:   store,
		cache:   mc,
		writer:  w,
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Publish broadcasts body to every connection in roomId and hands the
// message to the async writer. Storage failures never fail the publish.
func (r *Relay) Publish(roomId, sender, body string) (types.Message, error) {
	if !ValidRoomId(roomId) {
		return types.Message{}, ErrInvalidRoom
	}
	if strings.TrimSpace(body) == "" {
		return types.Message{}, ErrEmptyMessage
	}

	now := r.now()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return types.Message{}, fmt.Errorf("message id: %w", err)
	}

	msg := types.Message{
		Id:        id.String(),
		RoomId:    roomId,
		Username:  sender,
		Message:   body,
		Timestamp: now,
	}

	r.persist(msg)
	r.out.SendToRoom(roomId, &ServerEvent{
		Event:     EventChatMessage,
		Timestamp: now,
		Data:      msg,
	})

	return msg, nil
}

// now never goes backwards across calls.
func (r *Relay) now() time.Time {
	now := r.clock().UTC()
	if now.Before(r.last) {
		now = r.last
	}
	r.last = now
	return now
}

func (r *Relay) persist(msg types.Message) {
	// Writes of one room are queued so the cache sees them in publish order.
	r.writer.GoOrdered(msg.RoomId, "room_message", func(ctx context.Context) error {
		err := r.store.CreateRoomMessage(ctx, database.RoomMessage{
			Id:        msg.Id,
			RoomId:    msg.RoomId,
			Username:  msg.Username,
			Body:      msg.Message,
			CreatedAt: msg.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("store message %s: %w", msg.Id, err)
		}

		if r.cache != nil {
			if err := r.cache.Append(ctx, msg); err != nil {
				return fmt.Errorf("cache message %s: %w", msg.Id, err)
			}
		}
		return nil
	})
}
