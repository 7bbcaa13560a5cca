package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	rediscommon "wisefido-health-ingest/common/redis"
	"wisefido-health-ingest/internal/models"
)

// RedisJobQueue 通过 Redis Streams 投递任务 ID
type RedisJobQueue struct {
	client *redis.Client
	stream string
}

// NewRedisJobQueue 创建任务队列
func NewRedisJobQueue(client *redis.Client, stream string) *RedisJobQueue {
	return &RedisJobQueue{client: client, stream: stream}
}

// Publish 投递任务
func (q *RedisJobQueue) Publish(ctx context.Context, job *models.ProcessingJob) error {
	_, err := rediscommon.PublishToStream(ctx, q.client, q.stream, map[string]interface{}{
		"job_id":  job.ID.String(),
		"user_id": job.UserID.String(),
		"records": job.TotalMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.stream, err)
	}
	return nil
}

func decodeReport(b []byte) (*models.IngestReport, error) {
	var report models.IngestReport
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report summary: %w", err)
	}
	return &report, nil
}
