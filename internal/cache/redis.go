package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix  = "classroom:room"
	defaultHistory = 100
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// History is the number of messages kept per room.
	History int
}

type RedisMessageCache struct {
	client  *redis.Client
	prefix  string
	history int
}

func NewRedisMessageCache(cfg RedisConfig) (*RedisMessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisMessageCache(client, cfg.History), nil
}

func newRedisMessageCache(client *redis.Client, history int) *RedisMessageCache {
	if history <= 0 {
		history = defaultHistory
	}

	return &RedisMessageCache{
		client:  client,
		prefix:  defaultPrefix,
		history: history,
	}
}

func (c *RedisMessageCache) key(roomId string) string {
	return fmt.Sprintf("%s:%s:messages", c.prefix, roomId)
}

// Append pushes msg to the head of the room's list and trims the tail.
func (c *RedisMessageCache) Append(ctx context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := c.key(msg.RoomId)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(c.history-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}

	return nil
}

// Recent returns up to limit messages, oldest first. It returns ErrCacheMiss
// when the cache cannot satisfy the request in full, so callers fall back to
// the database.
func (c *RedisMessageCache) Recent(ctx context.Context, roomId string, limit int) ([]types.Message, error) {
	if limit <= 0 || limit > c.history {
		return nil, ErrCacheMiss
	}

	raw, err := c.client.LRange(ctx, c.key(roomId), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	if len(raw) < limit {
		return nil, ErrCacheMiss
	}

	messages := make([]types.Message, 0, len(raw))
	for _, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
		}
		messages = append(messages, msg)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
