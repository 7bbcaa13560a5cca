package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	client := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "ingest:jobs", "workers"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "ingest:jobs", "workers"))
}

func TestPublishAndRead(t *testing.T) {
	client := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "ingest:jobs", "workers"))

	_, err := PublishToStream(ctx, client, "ingest:jobs", map[string]interface{}{
		"job_id":  "2f4b0a3c-8a7e-4b53-9a4e-4b4f1f0f0c11",
		"records": 12001,
		"retry":   false,
	})
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "ingest:jobs", "workers", "worker-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "2f4b0a3c-8a7e-4b53-9a4e-4b4f1f0f0c11", msgs[0].Values["job_id"])
	assert.Equal(t, "12001", msgs[0].Values["records"])
	assert.Equal(t, "false", msgs[0].Values["retry"])

	require.NoError(t, Ack(ctx, client, "ingest:jobs", "workers", msgs[0].ID))

	pending, err := client.XPending(ctx, "ingest:jobs", "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestReadPendingFromStream(t *testing.T) {
	client := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "ingest:jobs", "workers"))
	for _, id := range []string{"job-a", "job-b"} {
		_, err := PublishToStream(ctx, client, "ingest:jobs", map[string]interface{}{"job_id": id})
		require.NoError(t, err)
	}

	pending, err := ReadPendingFromStream(ctx, client, "ingest:jobs", "workers", "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	msgs, err := ReadFromStream(ctx, client, "ingest:jobs", "workers", "worker-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NoError(t, Ack(ctx, client, "ingest:jobs", "workers", msgs[0].ID))

	pending, err = ReadPendingFromStream(ctx, client, "ingest:jobs", "workers", "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, msgs[1].ID, pending[0].ID)
	assert.Equal(t, "job-b", pending[0].Values["job_id"])

	other, err := ReadPendingFromStream(ctx, client, "ingest:jobs", "workers", "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
