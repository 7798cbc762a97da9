package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannel pushes live updates to candidates over Redis pub/sub. The
// gateway holding the candidate's websocket subscribes to the per-attempt
// channel. Delivery is best effort.
type RedisChannel struct {
	client        *redis.Client
	channelPrefix string
	logger        *slog.Logger
}

func NewRedisChannel(client *redis.Client, channelPrefix string, logger *slog.Logger) *RedisChannel {
	return &RedisChannel{
		client:        client,
		channelPrefix: channelPrefix,
		logger:        logger,
	}
}

type pushMessage struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func (c *RedisChannel) PushToAttempt(ctx context.Context, attemptID uint, eventName string, payload interface{}) error {
	data, err := json.Marshal(pushMessage{
		Event:     eventName,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	channel := fmt.Sprintf("%s:%d", c.channelPrefix, attemptID)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	c.logger.Debug("pushed to attempt channel", "channel", channel, "event", eventName)
	return nil
}
