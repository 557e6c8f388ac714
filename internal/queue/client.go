package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client owns the Redis connections shared by every queue in the process.
// Blocking pops run on their own connection pool so a worker parked in
// BRPOP never starves pushes or due-queue reads.
type Client struct {
	cmd      *redis.Client
	blocking *redis.Client
	log      *zap.Logger
}

// NewClient connects to the Redis instance at url (redis://host:port/db)
func NewClient(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	cmdOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	blockingOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	c := NewClientFromRedis(redis.NewClient(cmdOpts), redis.NewClient(blockingOpts), log)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close() // ignore: already returning the ping failure
		return nil, err
	}

	log.Info("Connected to Redis", zap.String("addr", cmdOpts.Addr), zap.Int("db", cmdOpts.DB))
	return c, nil
}

// NewClientFromRedis wraps existing go-redis clients
func NewClientFromRedis(cmd, blocking *redis.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cmd: cmd, blocking: blocking, log: log.Named("queue")}
}

// Redis returns the general purpose connection
func (c *Client) Redis() *redis.Client {
	return c.cmd
}

// Ping checks that both connections are usable
func (c *Client) Ping(ctx context.Context) error {
	if err := c.cmd.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if err := c.blocking.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed on blocking connection: %w", err)
	}
	return nil
}

// Close closes both connections
func (c *Client) Close() error {
	errCmd := c.cmd.Close()
	errBlocking := c.blocking.Close()
	if errCmd != nil {
		return errCmd
	}
	return errBlocking
}
