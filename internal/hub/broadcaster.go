package hub

// Broadcaster fans server events out to live connections. Implementations
// return the number of connections the event was queued for.
type Broadcaster interface {
	SendToRoom(roomId string, ev *ServerEvent) int
	SendToUser(userId string, ev *ServerEvent) int
	SendToConnection(connId string, ev *ServerEvent) bool
}
