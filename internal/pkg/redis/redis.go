package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Client is the application-facing facade over go-redis.
type Client struct {
	conn *redis.Client
}

var Default *Client

// Connect parses the URL, opens a pool and verifies it with a ping.
func Connect(rawURL string) (*Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := &Client{conn: redis.NewClient(opts)}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	Default = c
	return c, nil
}

// Raw exposes the underlying client for callers that need the full API.
func (c *Client) Raw() *redis.Client {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error { return c.conn.Ping(ctx).Err() }

func (c *Client) Close() error { return c.conn.Close() }

// Set stores a value; a zero ttl means no expiry.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// Get reads a string value, mapping a missing key to ("", nil).
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.conn.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.conn.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.conn.Exists(ctx, key).Result()
	return n > 0, err
}

// Publish sends a message to a pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.conn.Publish(ctx, channel, message).Err()
}

// Subscribe opens a pub/sub subscription for the given channels.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.conn.Subscribe(ctx, channels...)
}
