package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	testinfra.RequireIntegration(t)

	endpoint := testinfra.StartRedis(t)
	port, err := strconv.Atoi(endpoint.Port)
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	client, err := NewClient(context.Background(), Config{Host: endpoint.Host, Port: port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		locker := NewLocker(client, "test:", time.Minute, 0)

		lock, err := locker.Acquire(ctx, "subject-1")
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, "subject-1")
		assert.ErrorIs(t, err, ErrLockNotAcquired)

		require.NoError(t, lock.Release(ctx))
		assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

		again, err := locker.Acquire(ctx, "subject-1")
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("WithLockReportsConflict", func(t *testing.T) {
		locker := NewLocker(client, "test:", time.Minute, 50*time.Millisecond)

		held, err := locker.Acquire(ctx, "subject-2")
		require.NoError(t, err)
		defer func() { _ = held.Release(ctx) }()

		called := false
		err = locker.WithLock(ctx, "subject-2", func(context.Context) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.ErrorIs(t, err, ErrLockNotAcquired)
	})

	t.Run("WithLockReleasesAfterError", func(t *testing.T) {
		locker := NewLocker(client, "test:", time.Minute, 0)
		boom := errors.New("boom")

		err := locker.WithLock(ctx, "subject-3", func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		lock, err := locker.Acquire(ctx, "subject-3")
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})

	t.Run("TryAcquireWaitsForExpiry", func(t *testing.T) {
		short := NewLocker(client, "test:", 100*time.Millisecond, 0)
		_, err := short.Acquire(ctx, "subject-4")
		require.NoError(t, err)

		waiting := NewLocker(client, "test:", time.Minute, 2*time.Second)
		lock, err := waiting.TryAcquire(ctx, "subject-4")
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})
}
