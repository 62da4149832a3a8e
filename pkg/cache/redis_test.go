package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("Success - connects by URL", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := NewClient("redis://"+mr.Addr()+"/0", logger.Nop())

		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("Error - invalid URL", func(t *testing.T) {
		_, err := NewClient("not-a-url", logger.Nop())
		assert.Error(t, err)
	})
}

func TestClient_SetGetDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "followup:report:1", []byte(`{"total":1}`), time.Minute))

	val, err := client.Get(ctx, "followup:report:1")
	require.NoError(t, err)
	assert.Equal(t, `{"total":1}`, string(val))

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "followup:report:1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, client.Set(ctx, "followup:report:2", []byte("x"), time.Minute))
	require.NoError(t, client.Delete(ctx, "followup:report:2"))
	_, err = client.Get(ctx, "followup:report:2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestClient_DeletePattern(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"followup:report:1:a", "followup:report:1:b", "followup:report:2:a"} {
		require.NoError(t, client.Set(ctx, k, []byte("v"), time.Hour))
	}

	deleted, err := client.DeletePattern(ctx, "followup:report:1:*")

	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	_, err = client.Get(ctx, "followup:report:2:a")
	assert.NoError(t, err)
}
