package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/config"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const userCacheKeyPrefix = "crosslink:user:"

// redisCache is the slice of the Redis client the cache uses, satisfied by
// *redis.Client.
type redisCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cacheBackend is the user service surface the cache fronts: the handler
// reads plus the sync write path, so upserts can invalidate their entries.
type cacheBackend interface {
	UserStore
	GetLatestUpdate(ctx context.Context) (time.Time, error)
	UpsertUsers(ctx context.Context, users []*user.User) error
}

// cachedUserStore adds a Redis read-through cache over single-user and
// multi-user lookups, and invalidates entries on delete and upsert. Cache
// failures degrade to the underlying store; they are logged, never
// surfaced to callers.
type cachedUserStore struct {
	inner  cacheBackend
	client redisCache
	ttl    time.Duration
	logger *logger.Logger
}

func newCachedUserStore(inner cacheBackend, client redisCache, cfg *config.Config, logger *logger.Logger) *cachedUserStore {
	ttlSeconds, err := strconv.Atoi(cfg.GetOrDefault("redis.cache_ttl_seconds", "300"))
	if err != nil || ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &cachedUserStore{
		inner:  inner,
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: logger,
	}
}

// cacheGet returns the cached user for an id, or nil on miss
func (c *cachedUserStore) cacheGet(ctx context.Context, userID string) *user.User {
	key := userCacheKeyPrefix + userID

	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warnf("User cache read failed for %s: %v", userID, err)
		}
		return nil
	}

	var cached user.User
	if err := json.Unmarshal(payload, &cached); err != nil {
		// Unreadable entry, drop it
		c.client.Del(ctx, key)
		return nil
	}
	return &cached
}

func (c *cachedUserStore) cacheSet(ctx context.Context, u *user.User) {
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, userCacheKeyPrefix+u.ID, payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warnf("User cache write failed for %s: %v", u.ID, err)
	}
}

func (c *cachedUserStore) invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userCacheKeyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && c.logger != nil {
		c.logger.Warnf("User cache invalidation failed: %v", err)
	}
}

func (c *cachedUserStore) GetByID(ctx context.Context, userID string) (*user.User, error) {
	if cached := c.cacheGet(ctx, userID); cached != nil {
		return cached, nil
	}

	u, err := c.inner.GetByID(ctx, userID)
	if err != nil || u == nil {
		return u, err
	}

	c.cacheSet(ctx, u)
	return u, nil
}

// GetByIDs serves what it can from the cache and fetches only the missing
// ids from the store. Result order follows the store's ordering with cache
// hits appended, matching the unordered contract of the underlying query.
func (c *cachedUserStore) GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error) {
	var hits []*user.User
	var missing []string
	for _, id := range userIDs {
		if cached := c.cacheGet(ctx, id); cached != nil {
			hits = append(hits, cached)
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return hits, nil
	}

	fetched, err := c.inner.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range fetched {
		c.cacheSet(ctx, u)
	}

	return append(fetched, hits...), nil
}

func (c *cachedUserStore) DeleteByID(ctx context.Context, userID string) error {
	if err := c.inner.DeleteByID(ctx, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

// UpsertUsers writes through to the store and drops the touched entries,
// so the next read sees the synced profile instead of a stale one.
func (c *cachedUserStore) UpsertUsers(ctx context.Context, users []*user.User) error {
	if err := c.inner.UpsertUsers(ctx, users); err != nil {
		return err
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	c.invalidate(ctx, ids...)
	return nil
}

func (c *cachedUserStore) GetLatestUpdate(ctx context.Context) (time.Time, error) {
	return c.inner.GetLatestUpdate(ctx)
}

func (c *cachedUserStore) Count(ctx context.Context, updatedAfter *int64) (int, error) {
	return c.inner.Count(ctx, updatedAfter)
}

func (c *cachedUserStore) List(ctx context.Context, updatedAfter *int64, limit, page int) ([]*user.User, error) {
	return c.inner.List(ctx, updatedAfter, limit, page)
}

func (c *cachedUserStore) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return c.inner.GetByUsername(ctx, username)
}
