package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDecode is wrapped by every DecodeError
var ErrDecode = errors.New("undecodable queue payload")

// DecodeError carries a payload that was popped but could not be decoded.
// The payload is already gone from the queue; callers decide where it goes.
type DecodeError struct {
	Queue string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message from %s: %v", e.Queue, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Delivery is a popped message together with its serialized form
type Delivery[T any] struct {
	Message T
	Raw     string
}

// Queue is a typed FIFO list in Redis. Producers LPUSH and consumers BRPOP,
// so the oldest message is served first. Delivery is at-least-once only in
// the sense that consumers must re-queue or dead-letter explicitly.
type Queue[T any] struct {
	name   string
	client *Client
}

// New binds a typed queue to a Redis key
func New[T any](client *Client, name string) *Queue[T] {
	return &Queue[T]{name: name, client: client}
}

// Name returns the Redis key of the queue
func (q *Queue[T]) Name() string {
	return q.name
}

// Push serializes msg and appends it to the queue
func (q *Queue[T]) Push(ctx context.Context, msg T) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", q.name, err)
	}
	if err := q.client.cmd.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.name, err)
	}
	return nil
}

// Pop waits up to timeout for a message. It returns nil, nil when the timeout
// elapses with the queue empty, and a *DecodeError when the payload is not a T.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (*Delivery[T], error) {
	res, err := q.client.blocking.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", q.name, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply from %s: %v", q.name, res)
	}

	raw := res[1]
	var msg T
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, &DecodeError{Queue: q.name, Raw: raw, Err: err}
	}
	return &Delivery[T]{Message: msg, Raw: raw}, nil
}

// Len returns the number of queued messages
func (q *Queue[T]) Len(ctx context.Context) (int64, error) {
	n, err := q.client.cmd.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", q.name, err)
	}
	return n, nil
}

// Peek returns up to n of the most recently pushed payloads without removing them
func (q *Queue[T]) Peek(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := q.client.cmd.LRange(ctx, q.name, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek %s: %w", q.name, err)
	}
	return items, nil
}
