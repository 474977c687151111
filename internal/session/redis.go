package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "streamchat:snapshot:"

// RedisOptions configures the redis connection.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// RedisStore keeps the snapshot under streamchat:snapshot:<profile>.
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(opts RedisOptions, profile string) (*RedisStore, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	s := NewRedisStoreFromClient(client, profile)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves it open.
func NewRedisStoreFromClient(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = DefaultProfile
	}
	return &RedisStore{client: client, key: redisKeyPrefix + profile}
}

func (s *RedisStore) Load(ctx context.Context) ([]Message, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *RedisStore) Save(ctx context.Context, msgs []Message) error {
	data, err := encodeSnapshot(msgs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
