package oncall

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	*StaticProvider
	lookups atomic.Int32
}

func (p *countingProvider) Engineer(ctx context.Context, email string) (*Engineer, error) {
	p.lookups.Add(1)
	return p.StaticProvider.Engineer(ctx, email)
}

func newCountingProvider(t *testing.T) *countingProvider {
	t.Helper()
	static, err := ParseRoster([]byte(testRoster))
	require.NoError(t, err)
	return &countingProvider{StaticProvider: static}
}

func TestCachingProvider_CachesLookups(t *testing.T) {
	next := newCountingProvider(t)
	c := NewCachingProvider(next, time.Minute, time.Hour)
	defer c.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e, err := c.Engineer(ctx, "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, "Alice", e.Name)
	}
	assert.EqualValues(t, 1, next.lookups.Load())

	// callers may modify what they get back
	e, _ := c.Engineer(ctx, "alice@example.com")
	e.Name = "Mallory"
	again, _ := c.Engineer(ctx, "alice@example.com")
	assert.Equal(t, "Alice", again.Name)
}

func TestCachingProvider_Expiry(t *testing.T) {
	next := newCountingProvider(t)
	c := NewCachingProvider(next, time.Minute, time.Hour)
	defer c.Stop()

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := c.Engineer(ctx, "bob@example.com")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Engineer(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.lookups.Load())

	now = now.Add(2 * time.Minute)
	c.cleanup()
	assert.Zero(t, c.Len())
}

func TestCachingProvider_MissesAreNotCached(t *testing.T) {
	next := newCountingProvider(t)
	c := NewCachingProvider(next, time.Minute, time.Hour)
	defer c.Stop()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Engineer(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrEngineerNotFound)
	}
	assert.EqualValues(t, 2, next.lookups.Load())
	assert.Zero(t, c.Len())
}

func TestCachingProvider_RotationPassesThrough(t *testing.T) {
	c := NewCachingProvider(newCountingProvider(t), time.Minute, time.Hour)
	defer c.Stop()
	c.Stop()

	r, err := c.PrimaryAndSecondary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rotation{Primary: "alice@example.com", Secondary: "bob@example.com"}, r)
}
