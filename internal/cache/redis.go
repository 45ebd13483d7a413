package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/pricesync/internal/config"
)

// redisSchemaVersion is recorded under <prefix>:schema_version. Hashes are
// created on first write, so migration only raises the stored version.
const redisSchemaVersion = 2

// RedisBackend stores each table as a Redis hash keyed <prefix>:<table>.
type RedisBackend struct {
	cfg    config.RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a backend that connects using cfg on Open.
func NewRedisBackend(cfg config.RedisConfig) *RedisBackend {
	return &RedisBackend{cfg: cfg}
}

func (b *RedisBackend) Open(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     b.cfg.Addr,
		Password: b.cfg.Password,
		DB:       b.cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	versionKey := b.cfg.KeyPrefix + ":schema_version"
	current, err := client.Get(ctx, versionKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		client.Close()
		return fmt.Errorf("read schema version: %w", err)
	}
	if current < redisSchemaVersion {
		if err := client.Set(ctx, versionKey, strconv.Itoa(redisSchemaVersion), 0).Err(); err != nil {
			client.Close()
			return fmt.Errorf("write schema version: %w", err)
		}
	}

	b.client = client
	return nil
}

func (b *RedisBackend) key(table Table) string {
	return b.cfg.KeyPrefix + ":" + string(table)
}

func (b *RedisBackend) Get(ctx context.Context, table Table, key string) ([]byte, bool, error) {
	data, err := b.client.HGet(ctx, b.key(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, table Table, key string, value []byte) error {
	return b.client.HSet(ctx, b.key(table), key, value).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, table Table, key string) error {
	return b.client.HDel(ctx, b.key(table), key).Err()
}

func (b *RedisBackend) Scan(ctx context.Context, table Table) (map[string][]byte, error) {
	values, err := b.client.HGetAll(ctx, b.key(table)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(values))
	for k, v := range values {
		out[k] = []byte(v)
	}
	return out, nil
}

func (b *RedisBackend) Close() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}
