package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chatdoc:"

// RedisAdapter stores documents as Redis strings and signals changes
// over a per-key pub/sub channel. The published payload is the writer's
// origin id, so an adapter can drop notifications for its own writes.
type RedisAdapter struct {
	client *redis.Client
	origin string
}

// NewRedisAdapter connects to Redis and verifies the connection.
func NewRedisAdapter(redisURL string) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisAdapter{client: client, origin: uuid.NewString()}, nil
}

func redisKey(key string) string     { return redisKeyPrefix + key }
func redisChannel(key string) string { return redisKeyPrefix + "changed:" + key }

func (a *RedisAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	doc, err := a.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", key, err)
	}
	return doc, nil
}

func (a *RedisAdapter) Write(ctx context.Context, key string, doc []byte) error {
	pipe := a.client.Pipeline()
	pipe.Set(ctx, redisKey(key), doc, 0)
	pipe.Publish(ctx, redisChannel(key), a.origin)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write document %q: %w", key, err)
	}
	return nil
}

func (a *RedisAdapter) Subscribe(key string, handler func(doc []byte)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := a.client.Subscribe(ctx, redisChannel(key))
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %q: %w", key, err)
	}

	go func() {
		for msg := range sub.Channel() {
			if msg.Payload == a.origin {
				continue
			}
			doc, err := a.Read(ctx, key)
			if err == ErrNotFound {
				doc = nil
			} else if err != nil {
				log.Printf("store: re-read after change of %q failed: %v", key, err)
				continue
			}
			handler(doc)
		}
	}()

	return func() {
		cancel()
		_ = sub.Close()
	}, nil
}

func (a *RedisAdapter) Close() error {
	return a.client.Close()
}
