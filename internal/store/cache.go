package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/models"

	"github.com/redis/go-redis/v9"
)

const directoryCachePrefix = "broadcast:directory:"

// CachedDirectory memoizes directory lookups in Redis. Cache failures fall
// through to the wrapped directory.
type CachedDirectory struct {
	next   Directory
	rdb    *redis.Client
	ttl    atomic.Int64
	logger logger.Logger
}

func NewCachedDirectory(next Directory, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedDirectory {
	c := &CachedDirectory{
		next:   next,
		rdb:    rdb,
		logger: log.WithFields(map[string]interface{}{"component": "directory-cache"}),
	}
	c.ttl.Store(int64(ttl))
	return c
}

func (c *CachedDirectory) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// SetTTL changes the lifetime of new entries and drops the cached lookups
// written under the previous one. Unchanged values are a no-op.
func (c *CachedDirectory) SetTTL(ctx context.Context, ttl time.Duration) error {
	if time.Duration(c.ttl.Swap(int64(ttl))) == ttl {
		return nil
	}
	return c.Invalidate(ctx)
}

func (c *CachedDirectory) ActiveInArea(ctx context.Context, area string) ([]models.Franchise, error) {
	key := directoryCachePrefix + area

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []models.Franchise
		if jsonErr := json.Unmarshal(cached, &out); jsonErr == nil {
			return out, nil
		}
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{"area": area})
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("directory cache read failed", map[string]interface{}{"area": area, "error": err})
	}

	out, err := c.next.ActiveInArea(ctx, area)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.TTL()).Err(); err != nil {
			c.logger.Warn("directory cache write failed", map[string]interface{}{"area": area, "error": err})
		}
	}
	return out, nil
}

// Invalidate drops every cached directory lookup.
func (c *CachedDirectory) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, directoryCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
