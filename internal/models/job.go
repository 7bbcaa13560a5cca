package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus 后台任务状态
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ProcessingJob processing_jobs 表记录
type ProcessingJob struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	RawIngestionID     uuid.UUID       `json:"raw_ingestion_id"`
	Status             JobStatus       `json:"status"`
	TotalMetrics       int             `json:"total_metrics"`
	ProcessedMetrics   int             `json:"processed_metrics"`
	FailedMetrics      int             `json:"failed_metrics"`
	ProgressPercentage float64         `json:"progress_percentage"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	ResultSummary      json.RawMessage `json:"result_summary,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// RawIngestion raw_ingestions 表记录，后台任务从这里读取原始上传
type RawIngestion struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Payload     []byte    `json:"-"`
	PayloadSize int       `json:"payload_size"`
	RecordCount int       `json:"record_count"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Progress 写入进度
type Progress struct {
	Processed int
	Failed    int
	Total     int
	LastError string
}

// Percentage 进度百分比（0-100）
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Processed+p.Failed) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
