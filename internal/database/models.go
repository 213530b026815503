package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type RoomMessage struct {
	Id        string    `db:"id"`
	RoomId    string    `db:"room_id"`
	Username  string    `db:"username"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

type Notification struct {
	Id        string         `db:"id"`
	UserId    string         `db:"user_id"`
	Type      string         `db:"type"`
	Title     string         `db:"title"`
	Content   string         `db:"content"`
	Link      sql.NullString `db:"link"`
	IsRead    bool           `db:"is_read"`
	Metadata  JSONMap        `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type Category struct {
	Id          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// JSONMap stores an opaque key-value bag in a jsonb column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}

	return json.Unmarshal(data, m)
}
