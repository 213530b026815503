package hub

import (
	"maps"
	"regexp"
	"slices"
)

const (
	maxRoomIdLength  = 128
	directRoomPrefix = "dm_"
)

var roomIdPattern = regexp.MustCompile(`^[\p{L}\p{N}_.:\-]+$`)

func ValidRoomId(roomId string) bool {
	return len(roomId) <= maxRoomIdLength && roomIdPattern.MatchString(roomId)
}

// DirectRoomId returns the DM room shared by two users. Both sides derive
// the same id regardless of argument order.
func DirectRoomId(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return directRoomPrefix + a + "_" + b
}

type member struct {
	connId   string
	username string
}

// Rooms tracks room membership per connection. A room exists only while it
// has members. Not safe for concurrent use; the hub loop owns it.
type Rooms struct {
	members   map[string][]member            // roomId -> members in join order
	connRooms map[string]map[string]struct{} // connId -> roomIds
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string][]member),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Join adds connId to the room and returns the room's member list. joined is
// false when the connection was already a member, in which case nothing
// changes.
func (r *Rooms) Join(roomId, connId, username string) (users []string, joined bool, err error) {
	if !ValidRoomId(roomId) {
		return nil, false, ErrInvalidRoom
	}

	if r.IsMember(roomId, connId) {
		return r.MembersOf(roomId), false, nil
	}

	r.members[roomId] = append(r.members[roomId], member{connId: connId, username: username})
	if r.connRooms[connId] == nil {
		r.connRooms[connId] = make(map[string]struct{})
	}
	r.connRooms[connId][roomId] = struct{}{}

	return r.MembersOf(roomId), true, nil
}

// LeaveRoom removes connId from one room and reports whether it was a member.
func (r *Rooms) LeaveRoom(roomId, connId string) bool {
	if !r.IsMember(roomId, connId) {
		return false
	}

	r.removeMember(roomId, connId)
	delete(r.connRooms[connId], roomId)
	if len(r.connRooms[connId]) == 0 {
		delete(r.connRooms, connId)
	}

	return true
}

// Leave removes connId from every room and returns the affected rooms, sorted.
func (r *Rooms) Leave(connId string) []string {
	affected := slices.Sorted(maps.Keys(r.connRooms[connId]))
	for _, roomId := range affected {
		r.removeMember(roomId, connId)
	}
	delete(r.connRooms, connId)

	return affected
}

func (r *Rooms) removeMember(roomId, connId string) {
	members := slices.DeleteFunc(r.members[roomId], func(m member) bool {
		return m.connId == connId
	})
	if len(members) == 0 {
		delete(r.members, roomId)
		return
	}
	r.members[roomId] = members
}

// Rename changes the name connId shows up under and returns the rooms whose
// member list changed, sorted.
func (r *Rooms) Rename(connId, username string) []string {
	var changed []string
	for _, roomId := range r.RoomsOf(connId) {
		before := r.MembersOf(roomId)
		for i := range r.members[roomId] {
			if r.members[roomId][i].connId == connId {
				r.members[roomId][i].username = username
			}
		}
		if !slices.Equal(before, r.MembersOf(roomId)) {
			changed = append(changed, roomId)
		}
	}
	return changed
}

func (r *Rooms) IsMember(roomId, connId string) bool {
	_, ok := r.connRooms[connId][roomId]
	return ok
}

// MembersOf returns the distinct usernames present in the room, ordered by
// their first join.
func (r *Rooms) MembersOf(roomId string) []string {
	users := make([]string, 0, len(r.members[roomId]))
	seen := make(map[string]struct{}, len(r.members[roomId]))
	for _, m := range r.members[roomId] {
		if _, ok := seen[m.username]; ok {
			continue
		}
		seen[m.username] = struct{}{}
		users = append(users, m.username)
	}
	return users
}

// ConnectionsIn returns the room's connections in join order.
func (r *Rooms) ConnectionsIn(roomId string) []string {
	conns := make([]string, 0, len(r.members[roomId]))
	for _, m := range r.members[roomId] {
		conns = append(conns, m.connId)
	}
	return conns
}

func (r *Rooms) RoomsOf(connId string) []string {
	return slices.Sorted(maps.Keys(r.connRooms[connId]))
}

// Count returns the number of rooms with at least one member.
func (r *Rooms) Count() int {
	return len(r.members)
}
