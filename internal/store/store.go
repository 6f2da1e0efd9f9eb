// Package store 持久化去重状态，按 (namespace, key) 存储单行字符串值。
package store

import (
	"context"
	"fmt"
	"time"
)

// KV 去重存储接口，SQLiteStore、RedisStore、PostgresStore 均实现该接口
// 写操作必须幂等，重试的步骤可能重复写入同一个值
type KV interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Put(ctx context.Context, namespace, key, value string) error
	// Purge 删除 namespace 下更新时间早于 before 的记录
	Purge(ctx context.Context, namespace string, before time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open 按驱动名打开存储
func Open(ctx context.Context, driver, dsn string) (KV, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(ctx, dsn)
	case "redis":
		return NewRedisStore(ctx, dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", driver)
	}
}
