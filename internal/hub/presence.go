package hub

import (
	"maps"
	"slices"
)

// Presence maps connections to the users they were registered under. It is
// not safe for concurrent use; the hub loop owns it.
type Presence struct {
	users map[string]string              // connId -> userId
	conns map[string]map[string]struct{} // userId -> connIds
}

func NewPresence() *Presence {
	return &Presence{
		users: make(map[string]string),
		conns: make(map[string]map[string]struct{}),
	}
}

// Register binds connId to userId. A connection registered under another
// user is moved, the last registration wins.
func (p *Presence) Register(connId, userId string) {
	if connId == "" || userId == "" {
		return
	}

	if prev, ok := p.users[connId]; ok {
		if prev == userId {
			return
		}
		p.detach(connId, prev)
	}

	p.users[connId] = userId
	if p.conns[userId] == nil {
		p.conns[userId] = make(map[string]struct{})
	}
	p.conns[userId][connId] = struct{}{}
}

func (p *Presence) Unregister(connId string) {
	if userId, ok := p.users[connId]; ok {
		p.detach(connId, userId)
		delete(p.users, connId)
	}
}

func (p *Presence) detach(connId, userId string) {
	if set, ok := p.conns[userId]; ok {
		delete(set, connId)
		if len(set) == 0 {
			delete(p.conns, userId)
		}
	}
}

func (p *Presence) UserOf(connId string) (string, bool) {
	userId, ok := p.users[connId]
	return userId, ok
}

// ConnectionsOf returns the user's connections in sorted order.
func (p *Presence) ConnectionsOf(userId string) []string {
	return slices.Sorted(maps.Keys(p.conns[userId]))
}

func (p *Presence) IsOnline(userId string) bool {
	return len(p.conns[userId]) > 0
}

func (p *Presence) OnlineUsers() []string {
	return slices.Sorted(maps.Keys(p.conns))
}
