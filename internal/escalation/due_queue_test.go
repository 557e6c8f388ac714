package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDueQueue(t *testing.T) (*DueQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDueQueue(rdb), mr
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2026, 2, 9, 14, 30, 0, 0, time.UTC)
	e := NewEntry("inc-1", "alice@example.com", "bob@example.com", at, 5*time.Minute)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, at.Add(5*time.Minute), e.EscalationAt)
	assert.Equal(t, "inc-1", e.IncidentID)
}

func TestDueQueue_OnlyDueEntriesReturned(t *testing.T) {
	q, _ := newTestDueQueue(t)
	ctx := context.Background()
	now := time.Now()

	past := NewEntry("past", "a@x", "b@x", now.Add(-10*time.Minute), 5*time.Minute)
	exact := NewEntry("exact", "a@x", "b@x", now.Add(-5*time.Minute), 5*time.Minute)
	future := NewEntry("future", "a@x", "b@x", now, 5*time.Minute)

	for _, e := range []Entry{future, exact, past} {
		require.NoError(t, q.Schedule(ctx, e))
	}

	due, err := q.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "past", due[0].IncidentID)
	assert.Equal(t, "exact", due[1].IncidentID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "reading due entries must not remove them")
}

func TestDueQueue_DuplicateTuplesDoNotCollide(t *testing.T) {
	q, _ := newTestDueQueue(t)
	ctx := context.Background()
	at := time.Now().Add(-time.Hour)

	first := NewEntry("inc-1", "a@x", "b@x", at, time.Minute)
	second := NewEntry("inc-1", "a@x", "b@x", at, time.Minute)
	require.NoError(t, q.Schedule(ctx, first))
	require.NoError(t, q.Schedule(ctx, second))

	due, err := q.Due(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 2)

	require.NoError(t, q.Remove(ctx, due[0].Member))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDueQueue_UndecodableMember(t *testing.T) {
	q, mr := newTestDueQueue(t)
	ctx := context.Background()

	_, err := mr.ZAdd(PendingKey, 1, "garbage")
	require.NoError(t, err)

	due, err := q.Due(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Error(t, due[0].DecodeErr)
	assert.Equal(t, "garbage", due[0].Member)

	require.NoError(t, q.Remove(ctx, due[0].Member))
	n, _ := q.Len(ctx)
	assert.Equal(t, int64(0), n)
}

func TestDueQueue_Pending(t *testing.T) {
	q, _ := newTestDueQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Schedule(ctx, NewEntry("later", "a@x", "", now, time.Hour)))
	require.NoError(t, q.Schedule(ctx, NewEntry("sooner", "a@x", "", now, time.Minute)))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "sooner", pending[0].IncidentID)
	assert.Equal(t, "later", pending[1].IncidentID)
}
