package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// RedisPublisher publishes events on Redis pub/sub channels named "<prefix>:<event>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisPublisher(client, cfg.ChannelPrefix), nil
}

func newRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "versefriends"
	}
	return &RedisPublisher{client: client, prefix: prefix, now: time.Now}
}

// Channel returns the pub/sub channel used for eventName.
func (p *RedisPublisher) Channel(eventName string) string {
	return p.prefix + ":" + eventName
}

// Publish sends the event. Subscribers that are not listening miss it.
func (p *RedisPublisher) Publish(ctx context.Context, eventName string, payload any) error {
	data, err := Encode(eventName, payload, p.now())
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.Channel(eventName), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", eventName, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
