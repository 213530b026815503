package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/testutil"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	target string
	ev     *ServerEvent
}

// recordingBroadcaster captures fan-out requests instead of delivering them.
type recordingBroadcaster struct {
	rooms []sentEvent
	users []sentEvent
}

func (b *recordingBroadcaster) SendToRoom(roomId string, ev *ServerEvent) int {
	b.rooms = append(b.rooms, sentEvent{roomId, ev})
	return 1
}

func (b *recordingBroadcaster) SendToUser(userId string, ev *ServerEvent) int {
	b.users = append(b.users, sentEvent{userId, ev})
	return 1
}

func (b *recordingBroadcaster) SendToConnection(string, *ServerEvent) bool {
	return true
}

type fakeCache struct {
	mu       sync.Mutex
	appended []types.Message
	recent   []types.Message
	err      error
}

func (c *fakeCache) Append(_ context.Context, msg types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appended = append(c.appended, msg)
	return nil
}

func (c *fakeCache) Recent(_ context.Context, _ string, limit int) ([]types.Message, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.recent) < limit {
		return nil, cache.ErrCacheMiss
	}
	return c.recent[len(c.recent)-limit:], nil
}

func (c *fakeCache) Close() error { return nil }

func (c *fakeCache) Appended() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.appended...)
}

func newTestHub(t *testing.T, db *database.MockRepository, opts Options) *Hub {
	return NewHub(testutil.TestLogger(t), db, stats.NoopStats{}, opts)
}

func newTestClient(t *testing.T, h *Hub, id string, identity Identity) *Client {
	c := &Client{
		id:       id,
		hub:      h,
		log:      testutil.TestLogger(t),
		send:     make(chan *ServerEvent, 64),
		stop:     make(chan struct{}),
		identity: identity,

		authenticated: identity.UserId != "",
	}
	h.addClient(c)
	return c
}

func waitWrites(t *testing.T, h *Hub) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.writer.Wait(ctx), "timed out waiting for async writes")
}

// emit runs a client event through the hub as if the loop had received it.
func emit(t *testing.T, h *Hub, c *Client, id int, event string, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	h.handleEvent(&ClientEvent{
		Id:        id,
		Event:     event,
		Data:      raw,
		Timestamp: Now(),
		client:    c,
	})
}

func recv(t *testing.T, c *Client) *ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout: client %s received no event", c.id)
	}
	return nil
}

// recvEvent skips events until one named event arrives.
func recvEvent(t *testing.T, c *Client, event string) *ServerEvent {
	t.Helper()
	for {
		ev := recv(t, c)
		if ev.Event == event {
			return ev
		}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Errorf("expected no event for client %s, got %q", c.id, ev.Event)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
