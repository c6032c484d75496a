package progress

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink publishes progress events to a Redis pub/sub channel so a UI
// process can render them. Publishing is fire-and-forget: failures are
// logged and dropped, never surfaced to the engine.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisSink creates a sink publishing to the given pub/sub channel.
func NewRedisSink(client *redis.Client, channel string, logger *zap.Logger) *RedisSink {
	if channel == "" {
		channel = "schemalift:analysis:progress"
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		logger:  logger.Named("progress-redis"),
	}
}

// Publish implements Sink.
func (s *RedisSink) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal progress event", zap.Error(err))
		return
	}
	go func() {
		if err := s.client.Publish(context.Background(), s.channel, payload).Err(); err != nil {
			s.logger.Debug("publish progress event", zap.Error(err))
		}
	}()
}
