package hub

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/rs/zerolog"
)

const eventQueueSize = 256

type Options struct {
	// PersistConcurrency bounds in-flight storage writes.
	PersistConcurrency int
	// Cache is optional. Leave it nil when no cache is configured.
	Cache cache.MessageCache
	Clock func() time.Time
}

// Hub owns presence, room membership and the client table. All of them are
// mutated only from the goroutine running Run.
type Hub struct {
	log      zerolog.Logger
	db       database.Repository
	cache    cache.MessageCache
	stats    stats.StatsProvider
	writer   *asyncWriter
	presence *Presence
	rooms    *Rooms
	relay    *Relay
	notifier *Dispatcher
	clients  map[string]*Client

	register   chan *Client
	unregister chan *Client
	events     chan *ClientEvent
	calls      chan func()
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func NewHub(l zerolog.Logger, db database.Repository, st stats.StatsProvider, opts Options) *Hub {
	h := &Hub{
		log:        l,
		db:         db,
		cache:      opts.Cache,
		stats:      st,
		writer:     newAsyncWriter(opts.PersistConcurrency, l, st),
		presence:   NewPresence(),
		rooms:      NewRooms(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan *ClientEvent, eventQueueSize),
		calls:      make(chan func()),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	h.relay = NewRelay(h, db, opts.Cache, h.writer, opts.Clock)
	h.notifier = NewDispatcher(h.presence, h, db, h.writer, st, opts.Clock)

	for _, m := range []string{
		stats.NumActiveClients,
		stats.NumActiveRooms,
		stats.NumMessages,
		stats.NumNotifications,
		stats.NumPersistFailures,
	} {
		st.RegisterMetric(m)
	}

	return h
}

func (h *Hub) Run() {
	h.log.Info().Msg("hub started")
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c, true)
		case ev := <-h.events:
			h.handleEvent(ev)
		case fn := <-h.calls:
			fn()
		case <-h.stop:
			for _, c := range h.clients {
				h.removeClient(c, false)
			}
			h.log.Info().Msg("hub stopped")
			close(h.done)
			return
		}
	}
}

// Shutdown disconnects every client, stops the loop and waits for pending
// storage writes.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return h.writer.Wait(ctx)
}

// Connect hands a new client to the loop.
func (h *Hub) Connect(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) disconnect(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// dispatch queues ev without blocking and reports whether it was accepted.
func (h *Hub) dispatch(ev *ClientEvent) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.id] = c
	h.stats.Incr(stats.NumActiveClients)

	if c.identity.UserId != "" {
		h.presence.Register(c.id, c.identity.UserId)
		c.state = StateRegistered
	} else {
		c.state = StateConnected
	}

	h.log.Debug().
		Str(logging.FieldConnId, c.id).
		Str(logging.FieldUserId, c.identity.UserId).
		Stringer("state", c.state).
		Msg("client connected")
}

// removeClient is idempotent. With rebroadcast set, every room the client
// left receives its new member list.
func (h *Hub) removeClient(c *Client, rebroadcast bool) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	before := h.rooms.Count()
	affected := h.rooms.Leave(c.id)
	h.presence.Unregister(c.id)
	delete(h.clients, c.id)
	c.state = StateDisconnected
	c.stopClient()

	h.stats.Decr(stats.NumActiveClients)
	h.trackRooms(before)

	if rebroadcast {
		for _, roomId := range affected {
			h.broadcastRoomUsers(roomId)
		}
	}

	h.log.Debug().
		Str(logging.FieldConnId, c.id).
		Strs("rooms", affected).
		Msg("client disconnected")
}

// trackRooms moves the active room gauge from before to the current count.
func (h *Hub) trackRooms(before int) {
	for n := before; n < h.rooms.Count(); n++ {
		h.stats.Incr(stats.NumActiveRooms)
	}
	for n := before; n > h.rooms.Count(); n-- {
		h.stats.Decr(stats.NumActiveRooms)
	}
}

func (h *Hub) broadcastRoomUsers(roomId string) {
	h.SendToRoom(roomId, newEvent(EventRoomUsers, types.RoomUsers{
		RoomId: roomId,
		Users:  h.rooms.MembersOf(roomId),
	}))
}

func (h *Hub) SendToRoom(roomId string, ev *ServerEvent) int {
	n := 0
	for _, connId := range h.rooms.ConnectionsIn(roomId) {
		if h.SendToConnection(connId, ev) {
			n++
		}
	}
	return n
}

func (h *Hub) SendToUser(userId string, ev *ServerEvent) int {
	n := 0
	for _, connId := range h.presence.ConnectionsOf(userId) {
		if h.SendToConnection(connId, ev) {
			n++
		}
	}
	return n
}

func (h *Hub) SendToConnection(connId string, ev *ServerEvent) bool {
	c, ok := h.clients[connId]
	if !ok {
		return false
	}
	return c.queueEvent(ev)
}
