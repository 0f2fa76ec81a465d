package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/resumekit/authz/pkg/authz"
)

// keyPrefix namespaces context entries so InvalidateAll never touches
// foreign keys in a shared Redis.
const keyPrefix = "authz:ctx:"

// Config holds the Redis connection settings.
type Config struct {
	// URL is a redis:// connection string.
	URL string
	// Password overrides any password embedded in the URL.
	Password string
	// DB overrides the database number when positive.
	DB int
	// MaxRetries bounds command retries.
	MaxRetries int
	// PoolSize bounds the connection pool.
	PoolSize int
	// TTL expires entries that explicit invalidation missed. Zero keeps
	// entries until they are invalidated.
	TTL time.Duration
}

// Cache stores serialized user contexts in Redis, letting multiple
// engine instances share resolution work and invalidations reach all
// of them.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ authz.ContextCache = (*Cache)(nil)

// NewCache connects to Redis and verifies the connection.
func NewCache(config Config) (*Cache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: config.TTL}, nil
}

// NewCacheWithClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Client exposes the underlying connection for health checks.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func contextKey(userID string) string {
	return keyPrefix + userID
}

// Get returns the cached context for the user, or (nil, nil) on a miss.
// Entries that no longer unmarshal are deleted rather than served.
func (c *Cache) Get(ctx context.Context, userID string) (*authz.UserAuthContext, error) {
	data, err := c.client.Get(ctx, contextKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var authCtx authz.UserAuthContext
	if err := json.Unmarshal([]byte(data), &authCtx); err != nil {
		c.client.Del(ctx, contextKey(userID))
		return nil, fmt.Errorf("failed to unmarshal cached context: %w", err)
	}
	return &authCtx, nil
}

// Set stores the user's resolved context.
func (c *Cache) Set(ctx context.Context, userID string, authCtx *authz.UserAuthContext) error {
	data, err := json.Marshal(authCtx)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := c.client.Set(ctx, contextKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate drops the user's cached context.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, contextKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached context by scanning the key prefix.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Ping checks the connection, for health endpoints.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
