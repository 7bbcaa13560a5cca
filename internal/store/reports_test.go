package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-health-ingest/internal/models"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV_Miss(t *testing.T) {
	_, kv := setupMiniRedis(t)

	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestReportCache_RoundTrip(t *testing.T) {
	mr, kv := setupMiniRedis(t)
	cache := NewReportCache(kv, time.Hour)
	ctx := context.Background()

	jobID := uuid.New()
	report := models.NewIngestReport(models.ModeBackground)
	report.ProcessedCount = 12000
	report.FailedCount = 1
	report.JobID = &jobID
	report.Family(models.FamilyActivity).Accepted = 12000
	idx := 7
	report.Rejected = append(report.Rejected, models.RejectedRecord{
		Index:     &idx,
		Family:    models.FamilyHeartRate,
		ErrorKind: models.KindOutOfRange,
		Message:   "heart_rate 400 outside [15, 300]",
	})

	require.NoError(t, cache.Put(ctx, jobID, report))
	assert.True(t, mr.Exists("health:ingest:report:"+jobID.String()))
	assert.Equal(t, time.Hour, mr.TTL("health:ingest:report:"+jobID.String()))

	got, err := cache.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 12000, got.ProcessedCount)
	assert.Equal(t, 12000, got.PerFamily[models.FamilyActivity].Accepted)
	require.Len(t, got.Rejected, 1)
	assert.Equal(t, 7, *got.Rejected[0].Index)

	require.NoError(t, cache.Evict(ctx, jobID))
	_, err = cache.Get(ctx, jobID)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestReportCache_Expires(t *testing.T) {
	mr, kv := setupMiniRedis(t)
	cache := NewReportCache(kv, time.Minute)
	ctx := context.Background()

	jobID := uuid.New()
	require.NoError(t, cache.Put(ctx, jobID, models.NewIngestReport(models.ModeBackground)))

	mr.FastForward(2 * time.Minute)
	_, err := cache.Get(ctx, jobID)
	assert.ErrorIs(t, err, ErrMiss)
}
