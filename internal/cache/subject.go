// Package cache keeps Redis-backed read-through caches in front of the
// directories owned by other services.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type SubjectChecker interface {
	SubjectExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// SubjectCache remembers subjects known to exist. Subjects are never deleted
// while a conversation refers to them, so only positive answers are cached.
type SubjectCache struct {
	next   SubjectChecker
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ SubjectChecker = (*SubjectCache)(nil)

func NewSubjectCache(next SubjectChecker, client *redis.Client, ttl time.Duration, logger *slog.Logger) *SubjectCache {
	return &SubjectCache{next: next, client: client, ttl: ttl, logger: logger.With("component", "cache.subject")}
}

func subjectKey(id uuid.UUID) string {
	return "subject:exists:" + id.String()
}

func (c *SubjectCache) SubjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	key := subjectKey(id)

	n, err := c.client.Exists(ctx, key).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		c.logger.Warn("subject cache read failed", "subject_id", id, "error", err)
	}

	ok, err := c.next.SubjectExists(ctx, id)
	if err != nil || !ok {
		return ok, err
	}

	if err := c.client.Set(ctx, key, 1, c.ttl).Err(); err != nil {
		c.logger.Warn("subject cache write failed", "subject_id", id, "error", err)
	}
	return true, nil
}
