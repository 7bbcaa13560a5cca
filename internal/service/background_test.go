package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
)

type memRaws struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.RawIngestion
	err  error
}

func (m *memRaws) Insert(_ context.Context, raw *models.RawIngestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[raw.ID] = raw
	return nil
}

func (m *memRaws) Get(_ context.Context, id uuid.UUID) (*models.RawIngestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	raw, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("raw ingestion %s: %w", id, models.ErrJobNotFound)
	}
	return raw, nil
}

type memJobs struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.ProcessingJob
	progress []models.Progress
}

func (m *memJobs) Create(_ context.Context, job *models.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) Get(_ context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) MarkProcessing(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.update(id, func(j *models.ProcessingJob) {
		j.Status = models.JobProcessing
		j.StartedAt = &at
	})
}

func (m *memJobs) UpdateProgress(_ context.Context, id uuid.UUID, p models.Progress) error {
	m.mu.Lock()
	m.progress = append(m.progress, p)
	m.mu.Unlock()
	return m.update(id, func(j *models.ProcessingJob) {
		j.ProcessedMetrics = p.Processed
		j.FailedMetrics = p.Failed
		j.ProgressPercentage = p.Percentage()
	})
}

func (m *memJobs) Complete(_ context.Context, id uuid.UUID, report *models.IngestReport, at time.Time) error {
	summary, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return m.update(id, func(j *models.ProcessingJob) {
		j.Status = models.JobCompleted
		j.ProcessedMetrics = report.ProcessedCount
		j.FailedMetrics = report.FailedCount
		j.ProgressPercentage = 100
		j.ResultSummary = summary
		j.CompletedAt = &at
	})
}

func (m *memJobs) Fail(_ context.Context, id uuid.UUID, message string, at time.Time) error {
	return m.update(id, func(j *models.ProcessingJob) {
		j.Status = models.JobFailed
		j.ErrorMessage = &message
		j.CompletedAt = &at
	})
}

func (m *memJobs) update(id uuid.UUID, fn func(j *models.ProcessingJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	fn(job)
	return nil
}

type memPublisher struct {
	published []uuid.UUID
	err       error
}

func (p *memPublisher) Publish(_ context.Context, job *models.ProcessingJob) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, job.ID)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*models.IngestReport
}

func (c *memCache) Put(_ context.Context, id uuid.UUID, r *models.IngestReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[id] = r
	return nil
}

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*models.IngestReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[id]
	if !ok {
		return nil, errors.New("miss")
	}
	return r, nil
}

type backgroundFixture struct {
	raws      *memRaws
	jobs      *memJobs
	publisher *memPublisher
	cache     *memCache
	bg        *BackgroundService
	ingest    *IngestService
}

func newBackgroundFixture(cfg *config.IngestConfig) *backgroundFixture {
	f := &backgroundFixture{
		raws:      &memRaws{rows: map[uuid.UUID]*models.RawIngestion{}},
		jobs:      &memJobs{jobs: map[uuid.UUID]*models.ProcessingJob{}},
		publisher: &memPublisher{},
		cache:     &memCache{reports: map[uuid.UUID]*models.IngestReport{}},
	}
	f.bg = NewBackgroundService(f.raws, f.jobs, f.publisher, f.cache, nil, zap.NewNop())
	f.ingest = newTestIngestService(cfg, f.bg)
	f.bg.Attach(f.ingest)
	return f
}

func TestBackground_EnqueueAndRun(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 2
	cfg.ProgressEveryChunks = 1
	f := newBackgroundFixture(cfg)
	ctx := context.Background()
	userID := uuid.New()

	report, err := f.ingest.Ingest(ctx, userID, []byte(mixedPayload))
	require.NoError(t, err)
	require.NotNil(t, report.JobID)
	jobID := *report.JobID

	require.Equal(t, []uuid.UUID{jobID}, f.publisher.published)
	job, err := f.bg.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 5, job.TotalMetrics)

	raw, err := f.raws.Get(ctx, job.RawIngestionID)
	require.NoError(t, err)
	assert.Equal(t, len(mixedPayload), raw.PayloadSize)

	require.NoError(t, f.bg.RunJob(ctx, jobID))

	job, err = f.bg.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 2, job.ProcessedMetrics)
	assert.Equal(t, 1, job.FailedMetrics)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.NotEmpty(t, f.jobs.progress)

	final, err := f.bg.Report(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeBackground, final.Mode)
	require.NotNil(t, final.JobID)
	assert.Equal(t, jobID, *final.JobID)
	assert.Equal(t, 2, final.ProcessedCount)

	// 重复投递的任务不再执行
	require.NoError(t, f.bg.RunJob(ctx, jobID))
}

func TestBackground_ReportFallsBackToSummary(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 0
	f := newBackgroundFixture(cfg)
	ctx := context.Background()

	report, err := f.ingest.Ingest(ctx, uuid.New(), heartRatePayload(2))
	require.NoError(t, err)
	jobID := *report.JobID

	_, err = f.bg.Report(ctx, jobID)
	assert.ErrorIs(t, err, ErrReportNotReady)

	require.NoError(t, f.bg.RunJob(ctx, jobID))
	delete(f.cache.reports, jobID)

	got, err := f.bg.Report(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ProcessedCount)
	assert.Contains(t, f.cache.reports, jobID)
}

func TestBackground_MissingRawFailsJob(t *testing.T) {
	f := newBackgroundFixture(config.DefaultIngestConfig())
	ctx := context.Background()

	job := &models.ProcessingJob{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		RawIngestionID: uuid.New(),
		Status:         models.JobPending,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.jobs.Create(ctx, job))

	err := f.bg.RunJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.ErrorIs(t, err, models.ErrJobFailed)

	got, err := f.bg.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
}

func TestBackground_TransientErrorLeavesJobUnfinished(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 0
	f := newBackgroundFixture(cfg)
	ctx := context.Background()

	report, err := f.ingest.Ingest(ctx, uuid.New(), heartRatePayload(2))
	require.NoError(t, err)
	jobID := *report.JobID

	f.raws.err = errors.New("connection refused")
	err = f.bg.RunJob(ctx, jobID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrJobFailed)

	job, err := f.bg.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.Status)

	// 重新投递后正常完成
	f.raws.err = nil
	require.NoError(t, f.bg.RunJob(ctx, jobID))
	job, err = f.bg.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
}

func TestBackground_CancelledBeforeStartIsRetried(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 0
	f := newBackgroundFixture(cfg)

	report, err := f.ingest.Ingest(context.Background(), uuid.New(), heartRatePayload(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.bg.RunJob(ctx, *report.JobID)
	require.ErrorIs(t, err, context.Canceled)

	job, err := f.bg.Job(context.Background(), *report.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
}

func TestBackground_PublishFailureMarksJobFailed(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 0
	f := newBackgroundFixture(cfg)
	f.publisher.err = errors.New("redis down")

	_, err := f.ingest.Ingest(context.Background(), uuid.New(), heartRatePayload(1))
	require.Error(t, err)

	require.Len(t, f.jobs.jobs, 1)
	for _, j := range f.jobs.jobs {
		assert.Equal(t, models.JobFailed, j.Status)
	}
}

func TestReportWorkbook(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)
	report, err := svc.Ingest(context.Background(), uuid.New(), []byte(mixedPayload))
	require.NoError(t, err)

	b, err := ReportWorkbook(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Rejected", "Diagnostics"}, f.GetSheetList())

	rejected, err := f.GetRows("Rejected")
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, rejectedHeader, rejected[0])
	assert.Equal(t, "1", rejected[1][0])
	assert.Equal(t, "heart_rate", rejected[1][2])
	assert.Equal(t, "out_of_range", rejected[1][3])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, summaryHeader, summary[0])
	assert.Equal(t, "heart_rate", summary[1][0])

	diagnostics, err := f.GetRows("Diagnostics")
	require.NoError(t, err)
	assert.Len(t, diagnostics, 1+len(report.Diagnostics))
}
