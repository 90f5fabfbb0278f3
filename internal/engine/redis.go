package engine

import (
	"context"

	"github.com/nicolagi/kvs/internal/kverr"
	"github.com/redis/go-redis/v9"
)

var _ Engine = (*RedisStore)(nil)

// RedisStore delegates the mappings to a Redis server. It is mostly useful
// to put the server pipeline in front of a backend that is someone else's
// problem to persist.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Set(key, value string) error {
	err := s.client.Set(context.Background(), key, value, 0).Err()
	return kverr.Wrap(err, kverr.Engine)
}

func (s *RedisStore) Get(key string) (string, bool, error) {
	value, err := s.client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, kverr.Wrap(err, kverr.Engine)
	}
	return value, true, nil
}

func (s *RedisStore) Remove(key string) error {
	n, err := s.client.Del(context.Background(), key).Result()
	if err != nil {
		return kverr.Wrap(err, kverr.Engine)
	}
	if n == 0 {
		return kverr.Newf(kverr.KeyNotFound, "%q", key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
