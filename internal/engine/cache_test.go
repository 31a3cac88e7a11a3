package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory stand-in for the Redis client
type fakeRedis struct {
	store map[string]string
	err   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	val, ok := f.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.store[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var deleted int64
	for _, key := range keys {
		if _, ok := f.store[key]; ok {
			delete(f.store, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

// countingBackend wraps stubUserStore and counts store reads
type countingBackend struct {
	stubUserStore
	getByIDCalls  int
	getByIDsCalls [][]string
	upserted      [][]*user.User
}

func (b *countingBackend) GetByID(ctx context.Context, userID string) (*user.User, error) {
	b.getByIDCalls++
	return b.stubUserStore.GetByID(ctx, userID)
}

func (b *countingBackend) GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error) {
	b.getByIDsCalls = append(b.getByIDsCalls, userIDs)
	return b.stubUserStore.GetByIDs(ctx, userIDs)
}

func (b *countingBackend) GetLatestUpdate(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (b *countingBackend) UpsertUsers(ctx context.Context, users []*user.User) error {
	b.upserted = append(b.upserted, users)
	for _, u := range users {
		b.stubUserStore.users[u.ID] = u
	}
	return nil
}

func newCacheUnderTest(backend cacheBackend, client redisCache) *cachedUserStore {
	return newCachedUserStore(backend, client, config.New(), nil)
}

func TestCachedGetByIDReadThrough(t *testing.T) {
	backend := &countingBackend{stubUserStore: stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a", Username: strPtr("alice")},
	}}}
	cache := newCacheUnderTest(backend, newFakeRedis())

	first, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "alice", *second.Username)

	// The second read must come from the cache
	assert.Equal(t, 1, backend.getByIDCalls)
}

func TestCachedGetByIDsFetchesOnlyMisses(t *testing.T) {
	backend := &countingBackend{stubUserStore: stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a"},
		"user_b": {ID: "user_b"},
	}}}
	cache := newCacheUnderTest(backend, newFakeRedis())

	// Prime user_a
	_, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)

	got, err := cache.GetByIDs(context.Background(), []string{"user_a", "user_b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Len(t, backend.getByIDsCalls, 1)
	assert.Equal(t, []string{"user_b"}, backend.getByIDsCalls[0])

	// Both entries are now cached
	got, err = cache.GetByIDs(context.Background(), []string{"user_a", "user_b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, backend.getByIDsCalls, 1)
}

func TestCachedDeleteInvalidates(t *testing.T) {
	backend := &countingBackend{stubUserStore: stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a"},
	}}}
	cache := newCacheUnderTest(backend, newFakeRedis())

	_, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)

	require.NoError(t, cache.DeleteByID(context.Background(), "user_a"))

	_, err = cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.getByIDCalls)
}

func TestCachedUpsertInvalidates(t *testing.T) {
	backend := &countingBackend{stubUserStore: stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a", Username: strPtr("alice")},
	}}}
	cache := newCacheUnderTest(backend, newFakeRedis())

	stale, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, "alice", *stale.Username)

	// A sync upsert renames the user; the cached entry must not survive
	err = cache.UpsertUsers(context.Background(), []*user.User{
		{ID: "user_a", Username: strPtr("alicia")},
	})
	require.NoError(t, err)
	require.Len(t, backend.upserted, 1)

	fresh, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, "alicia", *fresh.Username)
}

func TestCacheFailureDegradesToStore(t *testing.T) {
	backend := &countingBackend{stubUserStore: stubUserStore{users: map[string]*user.User{
		"user_a": {ID: "user_a"},
	}}}
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	cache := newCacheUnderTest(backend, client)

	got, err := cache.GetByID(context.Background(), "user_a")
	require.NoError(t, err)
	assert.Equal(t, "user_a", got.ID)
}
