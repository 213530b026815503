package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/testutil"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func Test_queueEvent(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerEvent, 1),
			log:  testutil.TestLogger(t),
		}

		assert.True(t, c.queueEvent(&ServerEvent{}), "expected queueEvent to return true when channel is not full")

		select {
		case ev := <-c.send:
			assert.NotNil(t, ev)
		default:
			t.Error("expected an event to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerEvent, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerEvent{}
		assert.False(t, c.queueEvent(&ServerEvent{}), "expected queueEvent to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_newConnectionId(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id, err := newConnectionId()
		require.NoError(t, err)
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate connection id %q", id)
		seen[id] = struct{}{}
	}
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "ConnState(9)", ConnState(9).String())
}

type wireEvent struct {
	Id       int             `json:"id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	Response *Response       `json:"response"`
}

// Client pumps outlive the test body, so the websocket tests log nowhere.
func newWsServer(t *testing.T, h *Hub) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c, err := NewClient(conn, h, Identity{}, zerolog.Nop())
		if err != nil {
			conn.Close()
			return
		}
		if err := h.Connect(c); err != nil {
			conn.Close()
			return
		}
		go c.Write()
		go c.Read()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWs(t *testing.T, conn *websocket.Conn, id int, event string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":    id,
		"event": event,
		"data":  json.RawMessage(raw),
	}))
}

// readUntil returns the first frame with the given event name.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Event == event {
			return ev
		}
	}
}

func TestClient_RoundTrip(t *testing.T) {
	db := &database.MockRepository{}
	db.On("CreateRoomMessage", mock.Anything, mock.Anything).Return(nil)

	h := NewHub(zerolog.Nop(), db, stats.NoopStats{}, Options{})
	go h.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})

	srv := newWsServer(t, h)
	alice := dialWs(t, srv)
	bob := dialWs(t, srv)

	sendWs(t, alice, 1, EventRegister, Identity{UserId: "u1", Username: "alice"})
	ack := readUntil(t, alice, EventResponse)
	assert.Equal(t, 1, ack.Id)
	assert.Equal(t, http.StatusOK, ack.Response.Code)

	sendWs(t, bob, 1, EventUserLogin, "bob")
	readUntil(t, bob, EventResponse)

	sendWs(t, alice, 2, EventJoinRoom, JoinRoom{RoomId: "general"})
	readUntil(t, alice, EventResponse)
	sendWs(t, bob, 2, EventJoinRoom, JoinRoom{RoomId: "general"})
	readUntil(t, bob, EventResponse)

	var users types.RoomUsers
	require.NoError(t, json.Unmarshal(readUntil(t, alice, EventRoomUsers).Data, &users))
	assert.Equal(t, []string{"alice", "bob"}, users.Users)

	sendWs(t, alice, 3, EventChatMessage, ChatMessage{RoomId: "general", Message: "hello bob"})

	var msg types.Message
	require.NoError(t, json.Unmarshal(readUntil(t, bob, EventChatMessage).Data, &msg))
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hello bob", msg.Message)
	assert.Equal(t, "general", msg.RoomId)
	assert.NotEmpty(t, msg.Id)

	ack = readUntil(t, alice, EventResponse)
	assert.Equal(t, 3, ack.Id)
	assert.Equal(t, http.StatusAccepted, ack.Response.Code)

	require.NoError(t, alice.Close())

	require.NoError(t, json.Unmarshal(readUntil(t, bob, EventRoomUsers).Data, &users))
	assert.Equal(t, types.RoomUsers{RoomId: "general", Users: []string{"bob"}}, users)
}

func TestClient_InvalidFrame(t *testing.T) {
	h := NewHub(zerolog.Nop(), &database.MockRepository{}, stats.NoopStats{}, Options{})
	go h.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})

	conn := dialWs(t, newWsServer(t, h))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	ev := readUntil(t, conn, EventResponse)
	assert.Equal(t, http.StatusBadRequest, ev.Response.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":4}`)))
	ev = readUntil(t, conn, EventResponse)
	assert.Equal(t, 4, ev.Id)
	assert.Equal(t, http.StatusBadRequest, ev.Response.Code)
}
