package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akmatori/incidentd/internal/queue"
)

var testLoop = LoopConfig{PopTimeout: time.Second, ErrorDelay: 10 * time.Millisecond}

// peekAll decodes every entry of a queue, newest first
func peekAll[T any](t *testing.T, q *queue.Queue[T]) []T {
	t.Helper()
	raw, err := q.Peek(context.Background(), 100)
	require.NoError(t, err)
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		require.NoError(t, json.Unmarshal([]byte(r), &v))
		out = append(out, v)
	}
	return out
}

func queueLen[T any](t *testing.T, q *queue.Queue[T]) int64 {
	t.Helper()
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}
