package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-health-ingest/common/sentry"
	"wisefido-health-ingest/internal/metrics"
	"wisefido-health-ingest/internal/models"
)

// RawStore raw_ingestions 访问
type RawStore interface {
	Insert(ctx context.Context, raw *models.RawIngestion) error
	Get(ctx context.Context, id uuid.UUID) (*models.RawIngestion, error)
}

// JobStore processing_jobs 访问
type JobStore interface {
	Create(ctx context.Context, job *models.ProcessingJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateProgress(ctx context.Context, id uuid.UUID, p models.Progress) error
	Complete(ctx context.Context, id uuid.UUID, report *models.IngestReport, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, message string, at time.Time) error
}

// JobPublisher 通知后台消费者有新任务
type JobPublisher interface {
	Publish(ctx context.Context, job *models.ProcessingJob) error
}

// ReportCache 任务报告缓存
type ReportCache interface {
	Put(ctx context.Context, jobID uuid.UUID, report *models.IngestReport) error
	Get(ctx context.Context, jobID uuid.UUID) (*models.IngestReport, error)
}

// BackgroundService 大上传的后台处理：保存原始内容、建任务、投递任务 ID，由消费者执行
type BackgroundService struct {
	raws      RawStore
	jobs      JobStore
	publisher JobPublisher
	cache     ReportCache
	ingest    *IngestService
	metrics   *metrics.Manager
	logger    *zap.Logger
	now       func() time.Time
}

// NewBackgroundService 创建后台服务；ingest 通过 Attach 注入（两者互相引用）
func NewBackgroundService(
	raws RawStore,
	jobs JobStore,
	publisher JobPublisher,
	cache ReportCache,
	m *metrics.Manager,
	logger *zap.Logger,
) *BackgroundService {
	return &BackgroundService{
		raws:      raws,
		jobs:      jobs,
		publisher: publisher,
		cache:     cache,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Attach 设置执行任务使用的流水线
func (b *BackgroundService) Attach(ingest *IngestService) {
	b.ingest = ingest
}

// Enqueue 保存原始上传并创建 pending 任务
func (b *BackgroundService) Enqueue(ctx context.Context, userID uuid.UUID, body []byte, records int) (*models.ProcessingJob, error) {
	now := b.now()
	raw := &models.RawIngestion{
		ID:          uuid.New(),
		UserID:      userID,
		Payload:     body,
		PayloadSize: len(body),
		RecordCount: records,
		ReceivedAt:  now,
	}
	if err := b.raws.Insert(ctx, raw); err != nil {
		return nil, err
	}

	job := &models.ProcessingJob{
		ID:             uuid.New(),
		UserID:         userID,
		RawIngestionID: raw.ID,
		Status:         models.JobPending,
		TotalMetrics:   records,
		CreatedAt:      now,
	}
	if err := b.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := b.publisher.Publish(ctx, job); err != nil {
		// 任务行已存在，投递失败时标记失败，避免永远停在 pending
		_ = b.fail(ctx, job.ID, errors.New("failed to publish job"))
		return nil, fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return job, nil
}

// Job 查询任务状态
func (b *BackgroundService) Job(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	return b.jobs.Get(ctx, id)
}

// Report 读取已完成任务的报告：先查缓存，未命中回退到 result_summary
func (b *BackgroundService) Report(ctx context.Context, id uuid.UUID) (*models.IngestReport, error) {
	if b.cache != nil {
		if report, err := b.cache.Get(ctx, id); err == nil {
			return report, nil
		}
	}
	job, err := b.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobCompleted || len(job.ResultSummary) == 0 {
		return nil, fmt.Errorf("%w: job %s is %s", ErrReportNotReady, id, job.Status)
	}
	report, err := decodeReport(job.ResultSummary)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		_ = b.cache.Put(ctx, id, report)
	}
	return report, nil
}

// ErrReportNotReady 任务尚未完成
var ErrReportNotReady = errors.New("report not ready")

// RunJob 执行一个后台任务
// 返回 nil 表示任务已完成（或此前已结束）；错误链含 models.ErrJobFailed 表示任务已标记为 failed。
// 其他错误表示任务未到终态，消息应保留以便重新投递。
func (b *BackgroundService) RunJob(ctx context.Context, jobID uuid.UUID) (err error) {
	logger := b.logger.With(zap.String("job_id", jobID.String()))

	defer func() {
		if r := recover(); r != nil {
			perr := sentry.Recover(r, map[string]string{"job_id": jobID.String()})
			logger.Error("Job panicked", zap.Error(perr))
			err = b.fail(ctx, jobID, perr)
		}
	}()

	job, err := b.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		logger.Info("Job already finished, skipping", zap.String("status", string(job.Status)))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.jobs.MarkProcessing(ctx, jobID, b.now()); err != nil {
		return err
	}

	raw, err := b.raws.Get(ctx, job.RawIngestionID)
	if err != nil {
		if !errors.Is(err, models.ErrJobNotFound) {
			return err
		}
		return b.fail(ctx, jobID, err)
	}
	payload, err := DecodePayload(raw.Payload)
	if err != nil {
		return b.fail(ctx, jobID, err)
	}

	sink := NewJobProgressSink(b.jobs, jobID, logger)
	report, err := b.ingest.Process(ctx, job.UserID, payload, models.ModeBackground, sink)
	if err != nil {
		return b.fail(ctx, jobID, err)
	}
	report.JobID = &jobID

	if err := b.jobs.Complete(context.WithoutCancel(ctx), jobID, report, b.now()); err != nil {
		return err
	}
	if b.cache != nil {
		if err := b.cache.Put(ctx, jobID, report); err != nil {
			logger.Warn("Failed to cache job report", zap.Error(err))
		}
	}
	b.metrics.JobFinished(models.JobCompleted)

	logger.Info("Job completed",
		zap.Int("processed", report.ProcessedCount),
		zap.Int("failed", report.FailedCount),
	)
	return nil
}

// fail 将任务标记为 failed；标记成功时返回包含 models.ErrJobFailed 的错误，
// 标记失败时返回写库错误（任务未到终态）
func (b *BackgroundService) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	if err := b.jobs.Fail(context.WithoutCancel(ctx), jobID, cause.Error(), b.now()); err != nil {
		b.logger.Error("Failed to mark job failed",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	b.metrics.JobFinished(models.JobFailed)
	return fmt.Errorf("%w: %w", models.ErrJobFailed, cause)
}

// JobProgressSink 将写入进度同步到 processing_jobs
type JobProgressSink struct {
	jobs   JobStore
	jobID  uuid.UUID
	logger *zap.Logger
}

// NewJobProgressSink 创建任务进度接收器
func NewJobProgressSink(jobs JobStore, jobID uuid.UUID, logger *zap.Logger) *JobProgressSink {
	return &JobProgressSink{jobs: jobs, jobID: jobID, logger: logger}
}

func (s *JobProgressSink) Report(ctx context.Context, p models.Progress) error {
	if err := s.jobs.UpdateProgress(ctx, s.jobID, p); err != nil {
		s.logger.Warn("Failed to update job progress", zap.Error(err))
		return err
	}
	return nil
}
