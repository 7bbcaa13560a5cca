package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wisefido-health-ingest/internal/models"
)

const reportKeyPrefix = "health:ingest:report:"

// ReportCache 后台任务报告缓存，未命中时由调用方回退到 processing_jobs.result_summary
type ReportCache struct {
	kv  KV
	ttl time.Duration
}

// NewReportCache 创建报告缓存
func NewReportCache(kv KV, ttl time.Duration) *ReportCache {
	return &ReportCache{kv: kv, ttl: ttl}
}

func reportKey(jobID uuid.UUID) string {
	return reportKeyPrefix + jobID.String()
}

// Put 缓存报告
func (c *ReportCache) Put(ctx context.Context, jobID uuid.UUID, report *models.IngestReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.kv.Set(ctx, reportKey(jobID), b, c.ttl); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Get 读取报告；未命中返回 ErrMiss
func (c *ReportCache) Get(ctx context.Context, jobID uuid.UUID) (*models.IngestReport, error) {
	val, err := c.kv.Get(ctx, reportKey(jobID))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}
	var report models.IngestReport
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &report, nil
}

// Evict 删除缓存
func (c *ReportCache) Evict(ctx context.Context, jobID uuid.UUID) error {
	return c.kv.Del(ctx, reportKey(jobID))
}
