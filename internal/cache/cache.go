// Package cache provides a small redis-backed status cache so polling
// clients can read a job's live status without touching postgres.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/plotforge/plotforge-api/internal/domain"
)

// statusTTL bounds how long a stale status entry can outlive its job.
const statusTTL = 30 * time.Minute

// Cache mirrors job status for cheap polling. Implementations must be
// safe for concurrent use. Misses are not errors: the database remains
// authoritative.
type Cache interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, bool, error)
	Delete(ctx context.Context, jobID uuid.UUID) error
	Ping(ctx context.Context) error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	return c.client.Set(ctx, JobStatusKey(jobID), string(status), statusTTL).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.JobStatus(val), true, nil
}

func (c *RedisCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	return c.client.Del(ctx, JobStatusKey(jobID)).Err()
}

// NoopCache satisfies Cache when no redis is configured.
type NoopCache struct{}

func (NoopCache) SetJobStatus(context.Context, uuid.UUID, domain.JobStatus) error { return nil }
func (NoopCache) GetJobStatus(context.Context, uuid.UUID) (domain.JobStatus, bool, error) {
	return "", false, nil
}
func (NoopCache) Delete(context.Context, uuid.UUID) error { return nil }
func (NoopCache) Ping(context.Context) error              { return nil }
