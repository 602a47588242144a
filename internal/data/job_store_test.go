package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	"github.com/parkngo/parkngo-api/internal/testutil"
)

func newCacheOnlyStore() *RedisJobStore {
	return NewRedisJobStore(JobStoreOptions{})
}

func TestRedisJobStore_CacheOnlyMode(t *testing.T) {
	ctx := context.Background()
	store := newCacheOnlyStore()

	assert.False(t, store.Durable())

	t.Run("save and get", func(t *testing.T) {
		job := testutil.NewJob().Build()
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, model.JobStatusAwaitingPayment, got.Status)
	})

	t.Run("get unknown job", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-job")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		job := testutil.NewJob().Build()
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		got.Status = model.JobStatusFailed

		again, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusAwaitingPayment, again.Status)
	})
}

func TestRedisJobStore_Update(t *testing.T) {
	ctx := context.Background()
	store := newCacheOnlyStore()

	t.Run("applies status, result and error", func(t *testing.T) {
		job := testutil.NewJob().Build()
		require.NoError(t, store.Save(ctx, job))

		running := model.JobStatusRunning
		updated, err := store.Update(ctx, job.ID, model.JobUpdate{Status: &running})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, updated.Status)

		completed := model.JobStatusCompleted
		result := []byte(`{"summary":"spot A1 booked"}`)
		updated, err = store.Update(ctx, job.ID, model.JobUpdate{Status: &completed, Result: result})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, updated.Status)
		assert.JSONEq(t, `{"summary":"spot A1 booked"}`, string(updated.Result))
	})

	t.Run("rejects illegal transition", func(t *testing.T) {
		job := testutil.NewJob().WithStatus(model.JobStatusFailed).Build()
		require.NoError(t, store.Save(ctx, job))

		running := model.JobStatusRunning
		_, err := store.Update(ctx, job.ID, model.JobUpdate{Status: &running})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		// The stored job is untouched.
		got, getErr := store.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, model.JobStatusFailed, got.Status)
	})

	t.Run("terminal job is immutable", func(t *testing.T) {
		job := testutil.NewJob().
			WithStatus(model.JobStatusCompleted).
			WithResult([]byte(`{"summary":"original"}`)).
			Build()
		require.NoError(t, store.Save(ctx, job))

		late := "late overwrite"
		_, err := store.Update(ctx, job.ID, model.JobUpdate{
			Result: []byte(`{"summary":"overwritten"}`),
			Error:  &late,
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		// A same-status write is a mutation too.
		completed := model.JobStatusCompleted
		_, err = store.Update(ctx, job.ID, model.JobUpdate{Status: &completed})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		got, getErr := store.Get(ctx, job.ID)
		require.NoError(t, getErr)
		assert.JSONEq(t, `{"summary":"original"}`, string(got.Result))
		assert.Empty(t, got.Error)
	})

	t.Run("unknown job", func(t *testing.T) {
		running := model.JobStatusRunning
		_, err := store.Update(ctx, "no-such-job", model.JobUpdate{Status: &running})
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestRedisJobStore_CountActive_CacheOnly(t *testing.T) {
	ctx := context.Background()
	store := newCacheOnlyStore()

	require.NoError(t, store.Save(ctx, testutil.NewJob().Build()))
	require.NoError(t, store.Save(ctx, testutil.NewJob().WithStatus(model.JobStatusRunning).Build()))
	require.NoError(t, store.Save(ctx, testutil.NewJob().WithStatus(model.JobStatusCompleted).Build()))
	require.NoError(t, store.Save(ctx, testutil.NewJob().WithStatus(model.JobStatusFailed).Build()))

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRedisJobStore_Durable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	store := NewRedisJobStore(JobStoreOptions{Client: client, TTL: time.Minute})
	require.True(t, store.Durable())

	t.Run("save writes through to redis", func(t *testing.T) {
		job := testutil.NewJob().Build()
		require.NoError(t, store.Save(ctx, job))

		exists, err := client.Exists(ctx, jobKeyPrefix+job.ID).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)

		ttl := client.TTL(ctx, jobKeyPrefix+job.ID).Val()
		assert.True(t, ttl > 0 && ttl <= time.Minute)
	})

	t.Run("cold cache falls back to redis", func(t *testing.T) {
		job := testutil.NewJob().WithStatus(model.JobStatusRunning).Build()
		require.NoError(t, store.Save(ctx, job))

		// A second store shares the Redis backend but not the cache.
		cold := NewRedisJobStore(JobStoreOptions{Client: client, TTL: time.Minute})
		got, err := cold.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, got.Status)
	})

	t.Run("count active scans redis", func(t *testing.T) {
		done := testutil.NewJob().WithStatus(model.JobStatusCompleted).Build()
		require.NoError(t, store.Save(ctx, done))

		cold := NewRedisJobStore(JobStoreOptions{Client: client, TTL: time.Minute})
		count, err := cold.CountActive(ctx)
		require.NoError(t, err)
		// One awaiting payment and one running from the subtests above; the
		// completed job does not count.
		assert.Equal(t, 2, count)
	})
}
