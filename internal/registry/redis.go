package registry

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述 redis 注册表的连接参数。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type redisStore struct {
	client *redis.Client
}

// NewRedis 创建基于 redis 的注册表；连接惰性建立，首次查询时才会拨号。
func NewRedis(opts RedisOptions) *KVRegistry {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &KVRegistry{kind: "redis", store: &redisStore{client: client}}
}

func (s *redisStore) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *redisStore) putAll(ctx context.Context, entries map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, key, value, 0)
		}
		return nil
	})
	return err
}

func (s *redisStore) close() error {
	return s.client.Close()
}
