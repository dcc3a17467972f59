package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitService_CheckLimit(t *testing.T) {
	ctx := context.Background()
	window := time.Minute

	t.Run("call within budget is allowed", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewRateLimitService(client)

		mock.ExpectIncr("rate_limit:dispatch:tenant-1").SetVal(1)
		mock.ExpectExpire("rate_limit:dispatch:tenant-1", window).SetVal(true)

		allowed, retryAfter, err := svc.CheckLimit(ctx, "dispatch:tenant-1", 1000, window)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retryAfter)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("call over budget is rejected with reset ttl", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewRateLimitService(client)

		mock.ExpectIncr("rate_limit:dispatch:tenant-1").SetVal(1001)
		mock.ExpectExpire("rate_limit:dispatch:tenant-1", window).SetVal(true)
		mock.ExpectTTL("rate_limit:dispatch:tenant-1").SetVal(42 * time.Second)

		allowed, retryAfter, err := svc.CheckLimit(ctx, "dispatch:tenant-1", 1000, window)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 42*time.Second, retryAfter)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tenants count against separate windows", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewRateLimitService(client)

		mock.ExpectIncr("rate_limit:dispatch:tenant-a").SetVal(1000)
		mock.ExpectExpire("rate_limit:dispatch:tenant-a", window).SetVal(true)
		mock.ExpectIncr("rate_limit:dispatch:tenant-b").SetVal(1)
		mock.ExpectExpire("rate_limit:dispatch:tenant-b", window).SetVal(true)

		allowed, _, err := svc.CheckLimit(ctx, "dispatch:tenant-a", 1000, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, _, err = svc.CheckLimit(ctx, "dispatch:tenant-b", 1000, window)
		require.NoError(t, err)
		assert.True(t, allowed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure surfaces as error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewRateLimitService(client)

		mock.ExpectIncr("rate_limit:dispatch:tenant-1").SetErr(context.DeadlineExceeded)

		allowed, _, err := svc.CheckLimit(ctx, "dispatch:tenant-1", 1000, window)
		require.Error(t, err)
		assert.False(t, allowed)
	})
}
