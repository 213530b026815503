package cache

import (
	"context"
	"errors"

	"github.com/npezzotti/go-classroom/internal/types"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache keeps the most recent messages of each room.
type MessageCache interface {
	Append(ctx context.Context, msg types.Message) error
	Recent(ctx context.Context, roomId string, limit int) ([]types.Message, error)
	Close() error
}
