package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingChecker struct {
	known map[uuid.UUID]bool
	calls int
}

func (c *countingChecker) SubjectExists(_ context.Context, id uuid.UUID) (bool, error) {
	c.calls++
	return c.known[id], nil
}

func newCache(t *testing.T) (*SubjectCache, *countingChecker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingChecker{known: map[uuid.UUID]bool{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSubjectCache(next, client, time.Minute, logger), next, mr
}

func TestSubjectCacheRemembersExistingSubjects(t *testing.T) {
	c, next, mr := newCache(t)
	ctx := context.Background()
	id := uuid.New()
	next.known[id] = true

	for i := 0; i < 3; i++ {
		ok, err := c.SubjectExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, next.calls)

	mr.FastForward(2 * time.Minute)
	_, err := c.SubjectExists(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "expired entries go back to the source")
}

func TestSubjectCacheDoesNotCacheMisses(t *testing.T) {
	c, next, _ := newCache(t)
	ctx := context.Background()
	id := uuid.New()

	ok, err := c.SubjectExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	next.known[id] = true
	ok, err = c.SubjectExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, next.calls)
}

func TestSubjectCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	c, next, mr := newCache(t)
	id := uuid.New()
	next.known[id] = true
	mr.Close()

	ok, err := c.SubjectExists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}
