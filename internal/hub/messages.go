package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Client events.
const (
	EventRegister    = "register"
	EventUserLogin   = "userLogin"
	EventJoinRoom    = "joinRoom"
	EventJoinDirect  = "joinDirect"
	EventLeaveRoom   = "leaveRoom"
	EventChatMessage = "chatMessage"
	EventNewCourse   = "newCourse"
	EventNewStream   = "newStream"
	EventNewMessage  = "newMessage"
)

// Server events. chatMessage is shared with the client side.
const (
	EventRoomUsers    = "roomUsers"
	EventNotification = "notification"
	EventResponse     = "response"
)

type ClientEvent struct {
	Id        int             `json:"id,omitempty"`
	Event     string          `json:"event" validate:"required,max=32"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"-"`
	client    *Client
}

type ServerEvent struct {
	Id        int       `json:"id,omitempty"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Response  *Response `json:"response,omitempty"`
}

type Response struct {
	Code  int            `json:"code"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

type Identity struct {
	UserId   string `json:"userId" validate:"max=128"`
	Username string `json:"username" validate:"max=64"`
}

type JoinRoom struct {
	RoomId   string `json:"roomId"`
	Username string `json:"username" validate:"max=64"`
}

type JoinDirect struct {
	PeerId   string `json:"peerId" validate:"required,max=128"`
	Username string `json:"username" validate:"max=64"`
}

type LeaveRoom struct {
	RoomId string `json:"roomId"`
}

type ChatMessage struct {
	RoomId   string `json:"roomId"`
	Message  string `json:"message" validate:"max=4000"`
	Username string `json:"username" validate:"max=64"`
}

type NewCourse struct {
	CourseId   string   `json:"courseId" validate:"required,max=128"`
	Title      string   `json:"title" validate:"required,max=200"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,max=128"`
}

type NewStream struct {
	StreamId   string   `json:"streamId" validate:"required,max=128"`
	Title      string   `json:"title" validate:"required,max=200"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,max=128"`
}

type NewDirectMessage struct {
	ToUserId string `json:"toUserId" validate:"required,max=128"`
	Message  string `json:"message" validate:"required,max=4000"`
}

func newEvent(event string, data any) *ServerEvent {
	return &ServerEvent{
		Event:     event,
		Timestamp: Now(),
		Data:      data,
	}
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Event:     EventResponse,
		Timestamp: Now(),
		Response: &Response{
			Code: http.StatusOK,
			Data: data,
		},
	}
}

func NoErrAccepted(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		Id:        id,
		Event:     EventResponse,
		Timestamp: Now(),
		Response: &Response{
			Code: http.StatusAccepted,
			Data: data,
		},
	}
}

// ErrResponse converts err into an error ack. Unrecognized errors are
// reported as internal errors without leaking their text.
func ErrResponse(id int, err error) *ServerEvent {
	code := responseCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}

	return &ServerEvent{
		Id:        id,
		Event:     EventResponse,
		Timestamp: Now(),
		Response: &Response{
			Code:  code,
			Error: msg,
		},
	}
}

func responseCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRoom),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrInvalidNotification),
		errors.Is(err, ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotRegistered), errors.Is(err, ErrNotJoined):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrHubClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
