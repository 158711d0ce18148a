package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSender pushes JSON notifications onto a Redis list consumed by the
// mail/SMS workers.
type RedisSender struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedisSender.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisSender connects to Redis and checks the connection.
func NewRedisSender(ctx context.Context, opts RedisOptions) (*RedisSender, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSenderFromClient(client, opts.Key), nil
}

// NewRedisSenderFromClient wraps an existing client.
func NewRedisSenderFromClient(client *redis.Client, key string) *RedisSender {
	return &RedisSender{client: client, key: key}
}

func (s *RedisSender) Send(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

func (s *RedisSender) Close() error {
	return s.client.Close()
}
