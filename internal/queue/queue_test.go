package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/alerts"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewClientFromRedis(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		zap.NewNop(),
	)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestQueue_PushPopFIFO(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	q := New[IncidentMessage](c, Incidents)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, IncidentMessage{IncidentID: id}))
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"a", "b", "c"} {
		d, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, want, d.Message.IncidentID)
		assert.Contains(t, d.Raw, `"incident_id":"`+want+`"`)
	}
}

func TestQueue_PopTimeoutReturnsNil(t *testing.T) {
	c, _ := newTestClient(t)
	q := New[IncidentMessage](c, Incidents)

	d, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestQueue_PopUndecodablePayload(t *testing.T) {
	c, mr := newTestClient(t)
	q := New[NotificationRequest](c, Notifications)

	_, err := mr.Lpush(Notifications, "{not json")
	require.NoError(t, err)

	d, err := q.Pop(context.Background(), time.Second)
	assert.Nil(t, d)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "{not json", decodeErr.Raw)
	assert.Equal(t, Notifications, decodeErr.Queue)
	assert.True(t, errors.Is(err, ErrDecode))

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "payload is consumed even when undecodable")
}

func TestQueue_Peek(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	q := New[DeadLetterEntry](c, NotificationDeadLetter)

	for _, reason := range []string{"first", "second", "third"} {
		require.NoError(t, q.Push(ctx, DeadLetterEntry{Reason: reason}))
	}

	items, err := q.Peek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, items[0], "third")
	assert.Contains(t, items[1], "second")

	items, err = q.Peek(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "peek must not consume")
}

func TestQueue_MessageWireFormat(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	q := New[RetryAlertMessage](c, RetryAlerts)

	msg := RetryAlertMessage{
		Alert:        alerts.RawAlert{Status: "firing", Labels: map[string]string{"alertname": "X"}},
		AttemptCount: 2,
		LastError:    "boom",
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, q.Push(ctx, msg))

	stored, err := mr.List(RetryAlerts)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.JSONEq(t,
		`{"alert":{"status":"firing","labels":{"alertname":"X"},"annotations":null},"attemptCount":2,"lastError":"boom","timestamp":"2026-01-01T00:00:00Z"}`,
		stored[0])
}

func TestQueue_PopHonorsContext(t *testing.T) {
	c, _ := newTestClient(t)
	q := New[IncidentMessage](c, Incidents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := q.Pop(ctx, time.Second)
	assert.Nil(t, d)
	assert.Error(t, err)
}

func TestSet_DepthsAndDeadLetters(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	s := NewSet(c)

	require.NoError(t, s.Raw.Push(ctx, RawAlertMessage{}))
	require.NoError(t, s.Raw.Push(ctx, RawAlertMessage{}))
	require.NoError(t, s.NotificationDeadLetter.Push(ctx, DeadLetterEntry{Reason: "parse_error"}))

	depths, err := s.Depths(ctx)
	require.NoError(t, err)
	require.Len(t, depths, 8)
	assert.Equal(t, Depth{Queue: RawAlerts, Len: 2}, depths[0])

	byName := map[string]int64{}
	for _, d := range depths {
		byName[d.Queue] = d.Len
	}
	assert.Equal(t, int64(1), byName[NotificationDeadLetter])
	assert.Equal(t, int64(0), byName[Incidents])

	letters, err := s.DeadLetters(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, letters[NotificationDeadLetter], 1)
	assert.Empty(t, letters[ErrorAlerts])
}

func TestNotificationRequest_RequestedChannels(t *testing.T) {
	req := NotificationRequest{}
	assert.Equal(t, []string{ChannelEmail, ChannelSMS}, req.RequestedChannels())

	req.Channels = []string{ChannelSMS}
	assert.Equal(t, []string{ChannelSMS}, req.RequestedChannels())
}
