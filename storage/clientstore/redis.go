package clientstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/session"
)

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(conf *core.Config) (session.ClientStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return &redisStore{client: client}, nil
}

func redisKey(clientID, key string) string {
	return fmt.Sprintf("client:%s:%s", clientID, key)
}

func (s *redisStore) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, redisKey(clientID, key)).Bytes()
	if err == redis.Nil {
		return nil, session.ErrKeyNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, clientID, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(clientID, key), value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, clientID, key string) error {
	if err := s.client.Del(ctx, redisKey(clientID, key)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}
