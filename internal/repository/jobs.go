package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/models"
)

// RawIngestionRepository raw_ingestions 表
type RawIngestionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRawIngestionRepository 创建原始上传仓库
func NewRawIngestionRepository(db *sql.DB, logger *zap.Logger) *RawIngestionRepository {
	return &RawIngestionRepository{db: db, logger: logger}
}

// Insert 保存原始上传
func (r *RawIngestionRepository) Insert(ctx context.Context, raw *models.RawIngestion) error {
	query := `
		INSERT INTO raw_ingestions (id, user_id, payload, payload_size, record_count, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		raw.ID, raw.UserID, raw.Payload, raw.PayloadSize, raw.RecordCount, raw.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert raw ingestion: %w", err)
	}
	return nil
}

// Get 读取原始上传
func (r *RawIngestionRepository) Get(ctx context.Context, id uuid.UUID) (*models.RawIngestion, error) {
	query := `
		SELECT id, user_id, payload, payload_size, record_count, received_at
		FROM raw_ingestions
		WHERE id = $1
	`
	var raw models.RawIngestion
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&raw.ID, &raw.UserID, &raw.Payload, &raw.PayloadSize, &raw.RecordCount, &raw.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw ingestion %s not found: %w", id, models.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw ingestion: %w", err)
	}
	return &raw, nil
}

// JobRepository processing_jobs 表
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository 创建后台任务仓库
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

// Create 创建 pending 任务
func (r *JobRepository) Create(ctx context.Context, job *models.ProcessingJob) error {
	query := `
		INSERT INTO processing_jobs (
			id, user_id, raw_ingestion_id, status, total_metrics,
			processed_metrics, failed_metrics, progress_percentage, created_at
		) VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.RawIngestionID, string(job.Status), job.TotalMetrics, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create processing job: %w", err)
	}
	return nil
}

// Get 查询任务
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	query := `
		SELECT id, user_id, raw_ingestion_id, status, total_metrics,
			processed_metrics, failed_metrics, progress_percentage,
			error_message, result_summary, created_at, started_at, completed_at
		FROM processing_jobs
		WHERE id = $1
	`
	var (
		job       models.ProcessingJob
		status    string
		errMsg    sql.NullString
		summary   []byte
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.RawIngestionID, &status, &job.TotalMetrics,
		&job.ProcessedMetrics, &job.FailedMetrics, &job.ProgressPercentage,
		&errMsg, &summary, &job.CreatedAt, &startedAt, &doneAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing job: %w", err)
	}

	job.Status = models.JobStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if len(summary) > 0 {
		job.ResultSummary = json.RawMessage(summary)
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if doneAt.Valid {
		job.CompletedAt = &doneAt.Time
	}
	return &job, nil
}

// MarkProcessing 任务开始执行
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE processing_jobs
		SET status = $2, started_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, "mark job processing", query, id, string(models.JobProcessing), at)
}

// UpdateProgress 写入进度
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, p models.Progress) error {
	var lastError any
	if p.LastError != "" {
		lastError = p.LastError
	}
	query := `
		UPDATE processing_jobs
		SET processed_metrics = $2,
			failed_metrics = $3,
			progress_percentage = $4,
			error_message = COALESCE($5, error_message)
		WHERE id = $1
	`
	return r.exec(ctx, "update job progress", query, id, p.Processed, p.Failed, p.Percentage(), lastError)
}

// Complete 任务完成，保存报告摘要
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, report *models.IngestReport, at time.Time) error {
	summary, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest report: %w", err)
	}
	query := `
		UPDATE processing_jobs
		SET status = $2,
			processed_metrics = $3,
			failed_metrics = $4,
			progress_percentage = 100,
			result_summary = $5,
			completed_at = $6
		WHERE id = $1
	`
	return r.exec(ctx, "complete job", query, id, string(models.JobCompleted),
		report.ProcessedCount, report.FailedCount, summary, at)
}

// Fail 任务失败
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	query := `
		UPDATE processing_jobs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1
	`
	return r.exec(ctx, "fail job", query, id, string(models.JobFailed), message, at)
}

func (r *JobRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to %s: %w", op, models.ErrJobNotFound)
	}
	return nil
}
