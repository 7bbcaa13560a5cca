package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/models"
)

func setupMockJobDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *JobRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewJobRepository(db, zap.NewNop())
}

func setupMockRawIngestionDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *RawIngestionRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewRawIngestionRepository(db, zap.NewNop())
}

func TestRawIngestionRepository_InsertAndGet(t *testing.T) {
	db, mock, repo := setupMockRawIngestionDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	raw := &models.RawIngestion{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Payload:     []byte(`{"data":{"metrics":[]}}`),
		PayloadSize: 23,
		RecordCount: 0,
		ReceivedAt:  now,
	}

	mock.ExpectExec(`INSERT INTO raw_ingestions`).
		WithArgs(raw.ID, raw.UserID, raw.Payload, raw.PayloadSize, raw.RecordCount, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(ctx, raw))

	rows := sqlmock.NewRows([]string{"id", "user_id", "payload", "payload_size", "record_count", "received_at"}).
		AddRow(raw.ID.String(), raw.UserID.String(), raw.Payload, 23, 0, now)
	mock.ExpectQuery(`SELECT (.+) FROM raw_ingestions`).
		WithArgs(raw.ID).
		WillReturnRows(rows)

	got, err := repo.Get(ctx, raw.ID)
	require.NoError(t, err)
	assert.Equal(t, raw.ID, got.ID)
	assert.Equal(t, raw.Payload, got.Payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawIngestionRepository_GetMissing(t *testing.T) {
	db, mock, repo := setupMockRawIngestionDB(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM raw_ingestions`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Create(t *testing.T) {
	db, mock, repo := setupMockJobDB(t)
	defer db.Close()

	job := &models.ProcessingJob{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		RawIngestionID: uuid.New(),
		Status:         models.JobPending,
		TotalMetrics:   12001,
		CreatedAt:      time.Now().UTC(),
	}
	mock.ExpectExec(`INSERT INTO processing_jobs`).
		WithArgs(job.ID, job.UserID, job.RawIngestionID, "pending", 12001, job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Get(t *testing.T) {
	db, mock, repo := setupMockJobDB(t)
	defer db.Close()

	id := uuid.New()
	created := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "raw_ingestion_id", "status", "total_metrics",
		"processed_metrics", "failed_metrics", "progress_percentage",
		"error_message", "result_summary", "created_at", "started_at", "completed_at",
	}).AddRow(
		id.String(), uuid.NewString(), uuid.NewString(), "processing", 200,
		50, 2, 26.0,
		"deadlock detected", nil, created, started, nil,
	)
	mock.ExpectQuery(`SELECT (.+) FROM processing_jobs`).
		WithArgs(id).
		WillReturnRows(rows)

	job, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.Status)
	assert.Equal(t, 50, job.ProcessedMetrics)
	assert.Equal(t, 2, job.FailedMetrics)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "deadlock detected", *job.ErrorMessage)
	assert.Nil(t, job.ResultSummary)
	require.NotNil(t, job.StartedAt)
	assert.True(t, started.Equal(*job.StartedAt))
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_GetMissing(t *testing.T) {
	db, mock, repo := setupMockJobDB(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM processing_jobs`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Lifecycle(t *testing.T) {
	db, mock, repo := setupMockJobDB(t)
	defer db.Close()

	ctx := context.Background()
	id := uuid.New()
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE processing_jobs`).
		WithArgs(id, "processing", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkProcessing(ctx, id, now))

	mock.ExpectExec(`UPDATE processing_jobs`).
		WithArgs(id, 40, 10, 50.0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateProgress(ctx, id, models.Progress{Processed: 40, Failed: 10, Total: 100}))

	report := models.NewIngestReport(models.ModeBackground)
	report.ProcessedCount = 90
	report.FailedCount = 10
	mock.ExpectExec(`UPDATE processing_jobs`).
		WithArgs(id, "completed", 90, 10, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Complete(ctx, id, report, now))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FailUnknownJob(t *testing.T) {
	db, mock, repo := setupMockJobDB(t)
	defer db.Close()

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE processing_jobs`).
		WithArgs(id, "failed", "payload vanished", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Fail(context.Background(), id, "payload vanished", now)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
