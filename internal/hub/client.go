package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

type ConnState int

const (
	StateConnected ConnState = iota
	StateRegistered
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

type Client struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	log      zerolog.Logger
	send     chan *ServerEvent
	stop     chan struct{}
	stopOnce sync.Once

	// owned by the hub loop
	identity Identity
	state    ConnState

	// authenticated is set when identity came from a verified session token.
	// Such a connection cannot register as anyone else.
	authenticated bool
}

// NewClient wraps an upgraded connection. A non-empty identity, taken from
// a verified session token, starts the connection registered.
func NewClient(conn *websocket.Conn, h *Hub, identity Identity, l zerolog.Logger) (*Client, error) {
	id, err := newConnectionId()
	if err != nil {
		return nil, err
	}

	return &Client{
		id:       id,
		conn:     conn,
		hub:      h,
		log:      l.With().Str(logging.FieldConnId, id).Logger(),
		send:     make(chan *ServerEvent, sendBufferSize),
		stop:     make(chan struct{}),
		identity: identity,

		authenticated: identity.UserId != "",
	}, nil
}

func newConnectionId() (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("connection id: %w", err)
	}
	return id, nil
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case ev := <-c.send:
			raw, err := json.Marshal(ev)
			if err != nil {
				c.log.Error().Err(err).Str("event", ev.Event).Msg("failed to serialize event")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, raw) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.hub.disconnect(c)
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			return
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Debug().Err(err).Msg("error parsing event")
			c.queueEvent(ErrResponse(0, fmt.Errorf("%w: %s", ErrInvalidMessage, err)))
			continue
		}
		if err := validate.Struct(&ev); err != nil {
			c.queueEvent(ErrResponse(ev.Id, fmt.Errorf("%w: %s", ErrInvalidMessage, err)))
			continue
		}

		ev.client = c
		ev.Timestamp = Now()
		if !c.hub.dispatch(&ev) {
			c.log.Warn().Str("event", ev.Event).Msg("hub event queue full")
			c.queueEvent(ErrResponse(ev.Id, ErrServiceUnavailable))
		}
	}
}

// queueEvent never blocks. When the send buffer is full the event is
// dropped for this client only.
func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Warn().Str("event", ev.Event).Msg("failed to send event to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}
