package eventbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds Redis pub/sub configuration
type RedisConfig struct {
	Addresses []string
	Password  string
	DB        int
	Channel   string
}

// RedisPublisher broadcasts messages on a Redis pub/sub channel
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher over a standalone or cluster client
func NewRedisPublisher(cfg RedisConfig, logger *zap.Logger) (*RedisPublisher, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("%w: no Redis addresses configured", ErrInvalidConfiguration)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisPublisherWithClient(client, cfg.Channel, logger), nil
}

// NewRedisPublisherWithClient wraps an existing client
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = "pns:domain-changed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish sends the encoded message to the channel
func (p *RedisPublisher) Publish(ctx context.Context, msg *DomainChanged) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.channel, err)
	}
	p.logger.Debug("published to redis",
		zap.String("channel", p.channel),
		zap.String("name_hash", msg.NameHash),
		zap.Int64("receivers", receivers))
	return nil
}

// Close closes the Redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
