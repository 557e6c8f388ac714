package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/notify"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/testhelpers"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	err  error
	sent []queue.NotificationRequest
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req queue.NotificationRequest) (notify.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, req)
	if d.err != nil {
		return notify.Result{}, d.err
	}
	return notify.Result{Channels: map[string]notify.ChannelResult{queue.ChannelEmail: {Success: true}}}, nil
}

func newNotificationFixture(t *testing.T, dispatcher Dispatcher) (*NotificationWorker, *testhelpers.Env) {
	t.Helper()
	env := testhelpers.NewEnv(t)
	w := NewNotificationWorker(env.Queues, dispatcher, NotificationWorkerConfig{
		RetryAttempts: 3,
		RetryDelay:    0,
		Loop:          testLoop,
	}, zap.NewNop())
	return w, env
}

func TestNotificationWorker_Dispatches(t *testing.T) {
	d := &fakeDispatcher{}
	w, env := newNotificationFixture(t, d)
	ctx := context.Background()

	require.NoError(t, env.Queues.Notifications.Push(ctx, testhelpers.NewNotificationBuilder().Build()))
	popped, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, popped)

	require.Len(t, d.sent, 1)
	assert.Equal(t, "Alice", d.sent[0].Engineer.Name)
	assert.Zero(t, queueLen(t, env.Queues.Notifications))
	assert.Zero(t, queueLen(t, env.Queues.NotificationDeadLetter))
}

func TestNotificationWorker_DeadLetterReasons(t *testing.T) {
	tests := []struct {
		name   string
		req    queue.NotificationRequest
		reason string
	}{
		{
			name:   "missing engineer",
			req:    testhelpers.NewNotificationBuilder().WithoutEngineer().Build(),
			reason: ReasonInvalidData,
		},
		{
			name:   "missing type",
			req:    testhelpers.NewNotificationBuilder().WithType("").Build(),
			reason: ReasonInvalidData,
		},
		{
			name:   "unknown type",
			req:    testhelpers.NewNotificationBuilder().WithType("page").Build(),
			reason: "unknown_type:page",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			w, env := newNotificationFixture(t, d)

			require.NoError(t, w.Handle(context.Background(), tt.req))

			dead := peekAll(t, env.Queues.NotificationDeadLetter)
			require.Len(t, dead, 1)
			assert.Equal(t, tt.reason, dead[0].Reason)
			assert.NotEmpty(t, dead[0].OriginalMessage)
			assert.Empty(t, d.sent)
		})
	}
}

func TestNotificationWorker_ParseError(t *testing.T) {
	w, env := newNotificationFixture(t, &fakeDispatcher{})
	ctx := context.Background()
	require.NoError(t, env.Redis.Redis().LPush(ctx, queue.Notifications, "{{{").Err())

	popped, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, popped)

	dead := peekAll(t, env.Queues.NotificationDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, ReasonParseError, dead[0].Reason)
	assert.Equal(t, "{{{", dead[0].OriginalMessage)
}

func TestNotificationWorker_RetriesThenDeadLetters(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("all channels failed")}
	w, env := newNotificationFixture(t, d)
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, testhelpers.NewNotificationBuilder().Build()))
	requeued := peekAll(t, env.Queues.Notifications)
	require.Len(t, requeued, 1)
	assert.Equal(t, 1, requeued[0].RetryCount)

	// retries 2 and 3 are requeued, the fourth failure is final
	for i := 0; i < 3; i++ {
		_, err := w.ProcessOne(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, d.sent, 4)
	assert.Zero(t, queueLen(t, env.Queues.Notifications))
	dead := peekAll(t, env.Queues.NotificationDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, ReasonMaxRetries, dead[0].Reason)

	var original queue.NotificationRequest
	require.NoError(t, json.Unmarshal([]byte(dead[0].OriginalMessage), &original))
	assert.Equal(t, 4, original.RetryCount)
}
