// Package cache is the redis-backed store for validator results and OTP
// secrets. Every key is namespaced by a prefix.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

type Client struct {
	rdb    *redis.Client
	prefix string
	logger ectologger.Logger
}

// NewClient dials redis and fails when the first ping does.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}

	logger.WithField("addr", addr).Info("redis connected")
	return NewFromRedis(rdb, cfg.Prefix, logger), nil
}

func NewFromRedis(rdb *redis.Client, prefix string, logger ectologger.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Client) key(k string) string { return c.prefix + k }

// GetJSON reports false for a missing key. An entry that no longer decodes
// also counts as a miss so the caller overwrites it.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := c.get(ctx, key)
	if !ok || err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("dropping undecodable cache entry")
		return false, nil
	}
	return true, nil
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// Get returns ("", false, nil) for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	return c.get(ctx, key)
}

func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, c.key(k))
	}
	return c.rdb.Del(ctx, prefixed...).Err()
}
