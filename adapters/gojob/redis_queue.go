package gojob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisadapter "github.com/goliatone/go-job/queue/adapters/redis"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultQueueName = "provider_link.uploads"

// RedisQueueConfig tunes the go-job redis storage behind the upload queue.
type RedisQueueConfig struct {
	QueueName         string
	VisibilityTimeout time.Duration
	StatusTTL         time.Duration
}

// NewRedisQueue returns a durable go-job queue stored in redis. The returned
// adapter is both the Dispatcher's enqueuer and the Worker's dequeuer.
func NewRedisQueue(client goredis.UniversalClient, cfg RedisQueueConfig, opts ...redisadapter.Option) (*redisadapter.Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("gojob: redis client is required")
	}
	name := strings.TrimSpace(cfg.QueueName)
	if name == "" {
		name = DefaultQueueName
	}
	storageOpts := []redisadapter.Option{
		redisadapter.WithQueueName(name),
		redisadapter.WithVisibilityTimeout(cfg.VisibilityTimeout),
		redisadapter.WithStatusTTL(cfg.StatusTTL),
	}
	storageOpts = append(storageOpts, opts...)
	storage := redisadapter.NewStorage(NewRedisClient(client), storageOpts...)
	return redisadapter.NewAdapter(storage), nil
}

// RedisClient adapts a go-redis client to the command set the go-job redis
// storage expects. Missing keys read back as empty values, not errors.
type RedisClient struct {
	client goredis.UniversalClient
}

func NewRedisClient(client goredis.UniversalClient) *RedisClient {
	return &RedisClient{client: client}
}

func (c *RedisClient) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	return c.client.HSet(ctx, key, args...).Err()
}

func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c *RedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	value, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return value, err
}

func (c *RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return c.client.HDel(ctx, key, fields...).Err()
}

func (c *RedisClient) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return c.client.LPush(ctx, key, toAny(values)...).Err()
}

func (c *RedisClient) RPop(ctx context.Context, key string) (string, error) {
	value, err := c.client.RPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return value, err
}

func (c *RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.client.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (c *RedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return c.client.ZRem(ctx, key, toAny(members)...).Err()
}

func (c *RedisClient) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]redisadapter.ZItem, error) {
	by := &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}
	if limit > 0 {
		by.Count = limit
	}
	entries, err := c.client.ZRangeByScoreWithScores(ctx, key, by).Result()
	if err != nil {
		return nil, err
	}
	items := make([]redisadapter.ZItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, redisadapter.ZItem{Member: fmt.Sprint(entry.Member), Score: entry.Score})
	}
	return items, nil
}

func (c *RedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	value, err := c.client.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return value, err
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}

var _ redisadapter.Client = (*RedisClient)(nil)
