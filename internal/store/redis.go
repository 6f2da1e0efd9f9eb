package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore 基于 Redis 的去重存储
// 每个 namespace 一个 hash 存值，一个有序集合按更新时间索引
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 解析连接地址并检查连通性
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, prefix: "wecom-sync"}, nil
}

func (s *RedisStore) valuesKey(namespace string) string {
	return fmt.Sprintf("%s:%s", s.prefix, namespace)
}

func (s *RedisStore) updatedKey(namespace string) string {
	return fmt.Sprintf("%s:%s:updated", s.prefix, namespace)
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.valuesKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Put(ctx context.Context, namespace, key, value string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.valuesKey(namespace), key, value)
		pipe.ZAdd(ctx, s.updatedKey(namespace), redis.Z{
			Score:  float64(time.Now().Unix()),
			Member: key,
		})
		return nil
	})
	return err
}

func (s *RedisStore) Purge(ctx context.Context, namespace string, before time.Time) (int64, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.updatedKey(namespace), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.valuesKey(namespace), keys...)
		pipe.ZRem(ctx, s.updatedKey(namespace), members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
