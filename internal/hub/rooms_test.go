package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRoomId(t *testing.T) {
	tcases := []struct {
		name   string
		roomId string
		valid  bool
	}{
		{"simple", "general", true},
		{"course id", "course:42", true},
		{"dm room", DirectRoomId("u1", "u2"), true},
		{"unicode", "salón-3", true},
		{"empty", "", false},
		{"whitespace", "  ", false},
		{"inner space", "my room", false},
		{"slash", "a/b", false},
		{"max length", strings.Repeat("r", maxRoomIdLength), true},
		{"too long", strings.Repeat("r", maxRoomIdLength+1), false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidRoomId(tc.roomId))
		})
	}
}

func TestDirectRoomId(t *testing.T) {
	assert.Equal(t, "dm_alice_bob", DirectRoomId("alice", "bob"))
	assert.Equal(t, DirectRoomId("alice", "bob"), DirectRoomId("bob", "alice"))
	assert.Equal(t, "dm_7_7", DirectRoomId("7", "7"))
}

func TestRooms_Join(t *testing.T) {
	t.Run("members in join order", func(t *testing.T) {
		r := NewRooms()

		users, joined, err := r.Join("general", "c1", "alice")
		require.NoError(t, err)
		assert.True(t, joined)
		assert.Equal(t, []string{"alice"}, users)

		users, _, err = r.Join("general", "c2", "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, users)
		assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsIn("general"))
	})

	t.Run("join is idempotent", func(t *testing.T) {
		r := NewRooms()
		_, _, err := r.Join("general", "c1", "alice")
		require.NoError(t, err)

		users, joined, err := r.Join("general", "c1", "alice")
		require.NoError(t, err)
		assert.False(t, joined)
		assert.Equal(t, []string{"alice"}, users)
		assert.Equal(t, []string{"c1"}, r.ConnectionsIn("general"))
	})

	t.Run("members deduplicated by username", func(t *testing.T) {
		r := NewRooms()
		for _, connId := range []string{"c1", "c2", "c3"} {
			_, _, err := r.Join("general", connId, "alice")
			require.NoError(t, err)
		}
		_, _, err := r.Join("general", "c4", "bob")
		require.NoError(t, err)

		assert.Equal(t, []string{"alice", "bob"}, r.MembersOf("general"))
		assert.Len(t, r.ConnectionsIn("general"), 4)
	})

	t.Run("invalid room leaves state unchanged", func(t *testing.T) {
		r := NewRooms()
		for _, roomId := range []string{"", "bad room", strings.Repeat("x", maxRoomIdLength+1)} {
			_, _, err := r.Join(roomId, "c1", "alice")
			assert.ErrorIs(t, err, ErrInvalidRoom)
		}
		assert.Zero(t, r.Count())
		assert.Empty(t, r.RoomsOf("c1"))
	})
}

func TestRooms_Leave(t *testing.T) {
	r := NewRooms()
	for _, roomId := range []string{"b", "a", "c"} {
		_, _, err := r.Join(roomId, "c1", "alice")
		require.NoError(t, err)
	}
	_, _, err := r.Join("a", "c2", "bob")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, r.RoomsOf("c1"))

	affected := r.Leave("c1")
	assert.Equal(t, []string{"a", "b", "c"}, affected)
	assert.Empty(t, r.RoomsOf("c1"))
	assert.Equal(t, []string{"bob"}, r.MembersOf("a"))
	assert.Equal(t, 1, r.Count(), "expected empty rooms to be dropped")

	assert.Empty(t, r.Leave("c1"), "expected second leave to affect nothing")
	assert.Empty(t, r.Leave("unknown"))
}

func TestRooms_LeaveRoom(t *testing.T) {
	r := NewRooms()
	_, _, err := r.Join("general", "c1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("random", "c1", "alice")
	require.NoError(t, err)

	assert.True(t, r.LeaveRoom("general", "c1"))
	assert.False(t, r.LeaveRoom("general", "c1"))
	assert.False(t, r.IsMember("general", "c1"))
	assert.True(t, r.IsMember("random", "c1"))
	assert.Empty(t, r.MembersOf("general"))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.LeaveRoom("random", "c1"))
	assert.Zero(t, r.Count())
	assert.Empty(t, r.RoomsOf("c1"))
}

func TestRooms_MembersOfUnknownRoom(t *testing.T) {
	r := NewRooms()
	users := r.MembersOf("nowhere")
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestRooms_Rename(t *testing.T) {
	r := NewRooms()
	for _, j := range []struct{ room, conn, name string }{
		{"general", "c1", "alice"},
		{"general", "c2", "bob"},
		{"random", "c1", "alice"},
		{"random", "c3", "alicia"},
	} {
		_, _, err := r.Join(j.room, j.conn, j.name)
		require.NoError(t, err)
	}

	changed := r.Rename("c1", "alicia")

	assert.Equal(t, []string{"general", "random"}, changed)
	assert.Equal(t, []string{"alicia", "bob"}, r.MembersOf("general"))
	assert.Equal(t, []string{"alicia"}, r.MembersOf("random"))
	assert.Empty(t, r.Rename("c1", "alicia"), "expected no change for the same name")
	assert.Empty(t, r.Rename("c9", "zed"), "expected unknown connection to be a no-op")
}
