package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type cachedCourse struct {
	Code string `json:"code"`
}

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, nil), mr
}

func TestCacheRepositorySetGet(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "catalog:course:c1", cachedCourse{Code: "CS101"}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("catalog:course:c1"))

	var got cachedCourse
	require.NoError(t, repo.Get(ctx, "catalog:course:c1", &got))
	assert.Equal(t, "CS101", got.Code)

	assert.ErrorIs(t, repo.Get(ctx, "catalog:course:none", &got), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDropsUndecodableEntry(t *testing.T) {
	repo, mr := newCacheRepo(t)
	require.NoError(t, mr.Set("catalog:course:bad", "{not json"))

	var got cachedCourse
	assert.ErrorIs(t, repo.Get(context.Background(), "catalog:course:bad", &got), appErrors.ErrCacheMiss)
	assert.False(t, mr.Exists("catalog:course:bad"))
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	for i := 0; i < scanBatch+50; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("catalog:course:%d", i), "{}"))
	}
	require.NoError(t, mr.Set("seats:course:c1", "1"))

	require.NoError(t, repo.DeleteByPattern(context.Background(), "catalog:course:*"))
	assert.Equal(t, []string{"seats:course:c1"}, mr.Keys())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var got cachedCourse
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &got), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", got, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "*"))
}
