package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"
)

const kvTable = "sync_state"

// SQLiteStore 基于 SQLite 的去重存储
type SQLiteStore struct {
	drv *entsql.Driver
}

// NewSQLiteStore 打开 SQLite 数据库并初始化表结构
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	drv, err := entsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, err
	}
	drv.DB().SetMaxOpenConns(1)
	if err := drv.DB().PingContext(ctx); err != nil {
		drv.Close()
		return nil, err
	}

	s := &SQLiteStore{drv: drv}
	if err := s.initSchema(ctx); err != nil {
		drv.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_state (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, name)
	);
	CREATE INDEX IF NOT EXISTS idx_sync_state_updated ON sync_state(namespace, updated_at);
	`
	_, err := s.drv.DB().ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	query, args := s.builder().
		Select("value").
		From(entsql.Table(kvTable)).
		Where(entsql.And(
			entsql.EQ("namespace", namespace),
			entsql.EQ("name", key),
		)).
		Query()

	var value string
	err := s.drv.DB().QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, namespace, key, value string) error {
	query, args := s.builder().
		Insert(kvTable).
		Columns("namespace", "name", "value", "updated_at").
		Values(namespace, key, value, time.Now().Unix()).
		OnConflict(
			entsql.ConflictColumns("namespace", "name"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	_, err := s.drv.DB().ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) Purge(ctx context.Context, namespace string, before time.Time) (int64, error) {
	query, args := s.builder().
		Delete(kvTable).
		Where(entsql.And(
			entsql.EQ("namespace", namespace),
			entsql.LT("updated_at", before.Unix()),
		)).
		Query()

	res, err := s.drv.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.drv.DB().PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.drv.Close()
}
