package hub

import (
	"fmt"

	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
)

func (h *Hub) handleEvent(ev *ClientEvent) {
	c := ev.client
	if c == nil {
		return
	}
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	var err error
	switch ev.Event {
	case EventRegister, EventUserLogin:
		err = h.handleIdentify(ev)
	case EventJoinRoom:
		err = h.handleJoin(ev)
	case EventJoinDirect:
		err = h.handleJoinDirect(ev)
	case EventLeaveRoom:
		err = h.handleLeave(ev)
	case EventChatMessage:
		err = h.handlePublish(ev)
	case EventNewCourse, EventNewStream, EventNewMessage:
		err = h.handleDomainEvent(ev)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Event)
	}

	if err != nil {
		h.log.Debug().
			Err(err).
			Str(logging.FieldConnId, c.id).
			Str("event", ev.Event).
			Msg("event rejected")
		c.queueEvent(ErrResponse(ev.Id, err))
	}
}

// ack confirms a request. Requests without an id get no success ack.
func ack(c *Client, ev *ServerEvent) {
	if ev.Id > 0 {
		c.queueEvent(ev)
	}
}

func (h *Hub) handleIdentify(ev *ClientEvent) error {
	c := ev.client
	id, err := decodeIdentity(ev.Event, ev.Data)
	if err != nil {
		return err
	}

	if c.authenticated {
		if id.UserId != c.identity.UserId {
			return fmt.Errorf("%w: connection is bound to user %q", ErrNotRegistered, c.identity.UserId)
		}
		id = c.identity
	}

	renamed := c.identity.Username != "" && c.identity.Username != id.Username

	h.presence.Register(c.id, id.UserId)
	c.identity = id
	c.state = StateRegistered

	if renamed {
		for _, roomId := range h.rooms.Rename(c.id, id.Username) {
			h.broadcastRoomUsers(roomId)
		}
	}

	ack(c, NoErrOK(ev.Id, map[string]any{
		"userId":   id.UserId,
		"username": id.Username,
	}))
	return nil
}

// memberName picks the name a connection shows up under in a room. The
// registered identity wins over a name carried in the payload.
func memberName(c *Client, fromPayload string) (string, error) {
	if c.identity.Username != "" {
		return c.identity.Username, nil
	}
	if fromPayload != "" {
		return fromPayload, nil
	}
	return "", ErrNotRegistered
}

func (h *Hub) handleJoin(ev *ClientEvent) error {
	var p JoinRoom
	if err := decodePayload(ev.Data, &p); err != nil {
		return err
	}
	return h.joinRoom(ev, p.RoomId, p.Username)
}

func (h *Hub) handleJoinDirect(ev *ClientEvent) error {
	var p JoinDirect
	if err := decodePayload(ev.Data, &p); err != nil {
		return err
	}
	if ev.client.identity.UserId == "" {
		return ErrNotRegistered
	}
	return h.joinRoom(ev, DirectRoomId(ev.client.identity.UserId, p.PeerId), p.Username)
}

func (h *Hub) joinRoom(ev *ClientEvent, roomId, username string) error {
	c := ev.client
	name, err := memberName(c, username)
	if err != nil {
		return err
	}

	before := h.rooms.Count()
	users, joined, err := h.rooms.Join(roomId, c.id, name)
	if err != nil {
		return err
	}
	h.trackRooms(before)

	if joined {
		h.broadcastRoomUsers(roomId)
	} else {
		h.SendToConnection(c.id, newEvent(EventRoomUsers, types.RoomUsers{
			RoomId: roomId,
			Users:  users,
		}))
	}

	ack(c, NoErrOK(ev.Id, map[string]any{
		"roomId": roomId,
		"users":  users,
	}))
	return nil
}

func (h *Hub) handleLeave(ev *ClientEvent) error {
	var p LeaveRoom
	if err := decodePayload(ev.Data, &p); err != nil {
		return err
	}
	if !ValidRoomId(p.RoomId) {
		return ErrInvalidRoom
	}

	c := ev.client
	before := h.rooms.Count()
	if !h.rooms.LeaveRoom(p.RoomId, c.id) {
		return ErrNotJoined
	}
	h.trackRooms(before)
	h.broadcastRoomUsers(p.RoomId)

	ack(c, NoErrOK(ev.Id, map[string]any{"roomId": p.RoomId}))
	return nil
}

func (h *Hub) handlePublish(ev *ClientEvent) error {
	var p ChatMessage
	if err := decodePayload(ev.Data, &p); err != nil {
		return err
	}

	c := ev.client
	sender, err := memberName(c, p.Username)
	if err != nil {
		return err
	}
	if ValidRoomId(p.RoomId) && !h.rooms.IsMember(p.RoomId, c.id) {
		return ErrNotJoined
	}

	msg, err := h.relay.Publish(p.RoomId, sender, p.Message)
	if err != nil {
		return err
	}
	h.stats.Incr(stats.NumMessages)

	ack(c, NoErrAccepted(ev.Id, map[string]any{"id": msg.Id}))
	return nil
}

func (h *Hub) handleDomainEvent(ev *ClientEvent) error {
	c := ev.client
	if c.state != StateRegistered {
		return ErrNotRegistered
	}

	params, err := DomainNotification(c.identity, ev.Event, ev.Data)
	if err != nil {
		return err
	}

	sent, err := h.notifier.Notify(params)
	if err != nil {
		return err
	}

	ack(c, NoErrAccepted(ev.Id, map[string]any{"count": len(sent)}))
	return nil
}
