package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/testutil"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, db *database.MockRepository, mc *fakeCache, st stats.StatsProvider, clock func() time.Time) (*Relay, *recordingBroadcaster, *asyncWriter) {
	out := &recordingBroadcaster{}
	w := newAsyncWriter(4, testutil.TestLogger(t), st)
	if mc == nil {
		return NewRelay(out, db, nil, w, clock), out, w
	}
	return NewRelay(out, db, mc, w, clock), out, w
}

func waitWriter(t *testing.T, w *asyncWriter) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
}

func TestRelay_Publish(t *testing.T) {
	t.Run("stamps persists and broadcasts", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		mc := &fakeCache{}

		r, out, w := newTestRelay(t, db, mc, stats.NoopStats{}, nil)

		db.On("CreateRoomMessage", mock.Anything, mock.MatchedBy(func(m database.RoomMessage) bool {
			return m.RoomId == "general" && m.Username == "alice" && m.Body == "hello"
		})).Return(nil).Once()

		before := time.Now()
		msg, err := r.Publish("general", "alice", "hello")
		require.NoError(t, err)
		waitWriter(t, w)

		assert.NotEmpty(t, msg.Id)
		assert.Equal(t, "general", msg.RoomId)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hello", msg.Message)
		assert.False(t, msg.Timestamp.Before(before), "expected timestamp not to precede the publish call")
		assert.Equal(t, time.UTC, msg.Timestamp.Location())

		require.Len(t, out.rooms, 1, "expected exactly one room broadcast")
		assert.Equal(t, "general", out.rooms[0].target)
		assert.Equal(t, EventChatMessage, out.rooms[0].ev.Event)
		assert.Equal(t, msg, out.rooms[0].ev.Data)

		assert.Equal(t, []types.Message{msg}, mc.Appended())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tcases := []struct {
			name   string
			roomId string
			body   string
			err    error
		}{
			{"empty room", "", "hello", ErrInvalidRoom},
			{"malformed room", "no spaces", "hello", ErrInvalidRoom},
			{"empty body", "general", "", ErrEmptyMessage},
			{"whitespace body", "general", " \n\t ", ErrEmptyMessage},
		}

		for _, tc := range tcases {
			t.Run(tc.name, func(t *testing.T) {
				db := &database.MockRepository{}
				defer db.AssertExpectations(t)

				r, out, w := newTestRelay(t, db, nil, stats.NoopStats{}, nil)
				_, err := r.Publish(tc.roomId, "alice", tc.body)
				waitWriter(t, w)

				assert.ErrorIs(t, err, tc.err)
				assert.Empty(t, out.rooms, "expected no broadcast")
				db.AssertNotCalled(t, "CreateRoomMessage", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("storage failure does not fail publish", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		mc := &fakeCache{}

		su.On("Incr", stats.NumPersistFailures).Return().Once()
		db.On("CreateRoomMessage", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

		r, out, w := newTestRelay(t, db, mc, su, nil)
		msg, err := r.Publish("general", "alice", "hello")
		waitWriter(t, w)

		require.NoError(t, err)
		assert.NotEmpty(t, msg.Id)
		assert.Len(t, out.rooms, 1, "expected broadcast despite storage failure")
		assert.Empty(t, mc.Appended(), "expected cache to be skipped after storage failure")
	})

	t.Run("cache keeps publish order when a write is slow", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		mc := &fakeCache{}

		db.On("CreateRoomMessage", mock.Anything, mock.MatchedBy(func(m database.RoomMessage) bool {
			return m.Body == "m0"
		})).Run(func(mock.Arguments) {
			time.Sleep(50 * time.Millisecond)
		}).Return(nil).Once()
		db.On("CreateRoomMessage", mock.Anything, mock.MatchedBy(func(m database.RoomMessage) bool {
			return m.Body != "m0"
		})).Return(nil).Twice()

		r, _, w := newTestRelay(t, db, mc, stats.NoopStats{}, nil)
		for _, body := range []string{"m0", "m1", "m2"} {
			_, err := r.Publish("general", "alice", body)
			require.NoError(t, err)
		}
		waitWriter(t, w)

		var bodies []string
		for _, m := range mc.Appended() {
			bodies = append(bodies, m.Message)
		}
		assert.Equal(t, []string{"m0", "m1", "m2"}, bodies, "expected cache appends in publish order")
	})

	t.Run("timestamps never go backwards", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("CreateRoomMessage", mock.Anything, mock.Anything).Return(nil)

		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Millisecond)}
		i := 0
		clock := func() time.Time {
			now := ticks[i]
			i++
			return now
		}

		r, _, w := newTestRelay(t, db, nil, stats.NoopStats{}, clock)

		var msgs []types.Message
		for range ticks {
			msg, err := r.Publish("general", "alice", "tick")
			require.NoError(t, err)
			msgs = append(msgs, msg)
		}
		waitWriter(t, w)

		assert.Equal(t, base, msgs[0].Timestamp)
		assert.Equal(t, base, msgs[1].Timestamp, "expected clock regression to be clamped")
		assert.Equal(t, base.Add(time.Millisecond), msgs[2].Timestamp)
		assert.Less(t, msgs[0].Id, msgs[1].Id, "expected ids to sort in publish order")
		assert.Less(t, msgs[1].Id, msgs[2].Id, "expected ids to sort in publish order")
	})
}
