package types

import (
	"time"
)

type NotificationType string

const (
	NotificationCourse  NotificationType = "course"
	NotificationMessage NotificationType = "message"
	NotificationStream  NotificationType = "stream"
	NotificationSystem  NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationCourse, NotificationMessage, NotificationStream, NotificationSystem:
		return true
	}
	return false
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"roomId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Id        string           `json:"id"`
	UserId    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Link      string           `json:"link,omitempty"`
	IsRead    bool             `json:"isRead"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type Category struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RoomUsers struct {
	RoomId string   `json:"roomId"`
	Users  []string `json:"users"`
}
