package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
	"wisefido-health-ingest/internal/repository"
	"wisefido-health-ingest/internal/transformer"
)

const mixedPayload = `{"data":{"metrics":[
	{"name":"heart_rate","units":"count/min","data":[
		{"qty":72,"date":"2024-01-15 14:30:00 -0800","source":"Apple Watch"},
		{"qty":400,"date":"2024-01-15 14:31:00 -0800","source":"Apple Watch"},
		{"qty":75,"date":"2024-01-15 14:30:00 -0800","source":"Apple Watch"}]},
	{"name":"mystery_metric","units":"count","data":[
		{"qty":1,"date":"2024-01-15 14:30:00 -0800"}]},
	{"name":"blood_glucose","units":"mg/dL","data":[
		{"qty":450,"date":"2024-01-15 09:00:00 -0800"}]}
]}}`

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls int
	job   *models.ProcessingJob
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, userID uuid.UUID, _ []byte, records int) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.job = &models.ProcessingJob{ID: uuid.New(), UserID: userID, Status: models.JobPending, TotalMetrics: records}
	return f.job, nil
}

func newTestIngestService(cfg *config.IngestConfig, bg JobEnqueuer) *IngestService {
	return newIngestServiceWithExecer(cfg, repository.DiscardExecer{}, bg)
}

func newIngestServiceWithExecer(cfg *config.IngestConfig, db repository.Execer, bg JobEnqueuer) *IngestService {
	logger := zap.NewNop()
	return NewIngestService(
		cfg,
		transformer.NewTranslator(cfg, logger),
		repository.NewBatchWriter(db, cfg, logger, nil),
		bg,
		nil,
		logger,
	)
}

func heartRatePayload(n int) []byte {
	var sb strings.Builder
	sb.WriteString(`{"data":{"metrics":[{"name":"heart_rate","units":"count/min","data":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"qty":%d,"date":"2024-01-15 14:%02d:00 +0000"}`, 60+i%40, i%60)
	}
	sb.WriteString(`]}]}}`)
	return []byte(sb.String())
}

func TestMeasure(t *testing.T) {
	size, err := Measure([]byte(mixedPayload))
	require.NoError(t, err)
	assert.Equal(t, 5, size.Records)
	assert.Equal(t, int64(len(mixedPayload)), size.Bytes)

	size, err = Measure([]byte(`{"data":{"metrics":[{"name":"x","data":[{},{}]}],"workouts":[{},{},{}]}}`))
	require.NoError(t, err)
	assert.Equal(t, 5, size.Records)

	_, err = Measure([]byte(`{"data":`))
	assert.ErrorIs(t, err, models.ErrInvalidPayload)

	_, err = Measure([]byte(`{"metrics":[]}`))
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
}

func TestIngest_MixedPayloadReport(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)

	report, err := svc.Ingest(context.Background(), uuid.New(), []byte(mixedPayload))
	require.NoError(t, err)

	assert.Equal(t, models.ModeInline, report.Mode)
	assert.Nil(t, report.JobID)
	assert.Equal(t, 2, report.ProcessedCount)
	assert.Equal(t, 1, report.FailedCount)

	hr := report.PerFamily[models.FamilyHeartRate]
	require.NotNil(t, hr)
	assert.Equal(t, 1, hr.Accepted)
	assert.Equal(t, 1, hr.Rejected)
	assert.Equal(t, 1, hr.DedupDropped)
	assert.Equal(t, 1, report.PerFamily[models.FamilyBloodGlucose].Accepted)

	require.Len(t, report.Rejected, 1)
	require.NotNil(t, report.Rejected[0].Index)
	assert.Equal(t, 1, *report.Rejected[0].Index)
	assert.Equal(t, models.KindOutOfRange, report.Rejected[0].ErrorKind)

	unknown := report.DiagnosticsOfKind(models.KindUnknownMetricName)
	require.Len(t, unknown, 1)
	assert.Equal(t, 3, unknown[0].Index)

	var warnings []models.ConversionDiagnostic
	for _, d := range report.Diagnostics {
		if d.Severity == models.SeverityWarning {
			warnings = append(warnings, d)
		}
	}
	require.Len(t, warnings, 1)
	assert.Equal(t, 4, warnings[0].Index)
	assert.Equal(t, models.FamilyBloodGlucose, warnings[0].Family)

	// 每个数据点恰好落在一处：写入、合并、拒绝或错误诊断
	accounted := report.ProcessedCount + report.FailedCount
	for _, st := range report.PerFamily {
		accounted += st.DedupDropped
	}
	for _, d := range report.ErrorDiagnostics() {
		accounted += d.PointCount
	}
	assert.Equal(t, 5, accounted)
}

func TestIngest_SizeGateBoundary(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.SyncThreshold = 3
	bg := &fakeEnqueuer{}
	svc := newTestIngestService(cfg, bg)
	userID := uuid.New()

	report, err := svc.Ingest(context.Background(), userID, heartRatePayload(3))
	require.NoError(t, err)
	assert.Equal(t, models.ModeInline, report.Mode)
	assert.Equal(t, 3, report.ProcessedCount)
	assert.Zero(t, bg.calls)

	report, err = svc.Ingest(context.Background(), userID, heartRatePayload(4))
	require.NoError(t, err)
	assert.Equal(t, models.ModeBackground, report.Mode)
	require.NotNil(t, report.JobID)
	assert.Equal(t, bg.job.ID, *report.JobID)
	assert.Equal(t, 4, bg.job.TotalMetrics)
	assert.Zero(t, report.ProcessedCount)
	assert.Equal(t, 1, bg.calls)
}

func TestIngest_ByteThreshold(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	body := heartRatePayload(2)
	cfg.SyncByteThreshold = int64(len(body)) - 1
	bg := &fakeEnqueuer{}
	svc := newTestIngestService(cfg, bg)

	report, err := svc.Ingest(context.Background(), uuid.New(), body)
	require.NoError(t, err)
	assert.Equal(t, models.ModeBackground, report.Mode)
	assert.Equal(t, 1, bg.calls)
}

func TestIngest_PayloadTooLarge(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.MaxPayloadBytes = 10
	svc := newTestIngestService(cfg, nil)

	_, err := svc.Ingest(context.Background(), uuid.New(), []byte(mixedPayload))
	assert.ErrorIs(t, err, models.ErrPayloadTooLarge)
}

func TestIngest_InvalidPayload(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)

	_, err := svc.Ingest(context.Background(), uuid.New(), []byte(`not json`))
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
}

type recordingSink struct {
	updates []models.Progress
}

func (s *recordingSink) Report(_ context.Context, p models.Progress) error {
	s.updates = append(s.updates, p)
	return nil
}

func TestProcess_ProgressIncludesValidationFailures(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)
	payload, err := DecodePayload([]byte(mixedPayload))
	require.NoError(t, err)

	sink := &recordingSink{}
	report, err := svc.Process(context.Background(), uuid.New(), payload, models.ModeBackground, sink)
	require.NoError(t, err)
	assert.Equal(t, models.ModeBackground, report.Mode)

	require.NotEmpty(t, sink.updates)
	last := sink.updates[len(sink.updates)-1]
	assert.Equal(t, 2, last.Processed)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, 3, last.Total)
	assert.Contains(t, last.LastError, "heart_rate")
}

const bloodPressurePair = `{"data":{"metrics":[
	{"name":"HKQuantityTypeIdentifierBloodPressureSystolic","data":[{"qty":120,"date":"2024-01-15 10:00:00Z"}]},
	{"name":"HKQuantityTypeIdentifierBloodPressureDiastolic","data":[{"qty":80,"date":"2024-01-15 10:00:00Z"}]}
]}}`

const respiratoryRatePayload = `{"data":{"metrics":[{"name":"HKQuantityTypeIdentifierRespiratoryRate","units":"count/min","data":[
	{"qty":14,"date":"2024-01-15 01:00:00 +0000"},
	{"qty":15,"date":"2024-01-15 02:00:00 +0000"},
	{"qty":16,"date":"2024-01-15 03:00:00 +0000"}]}]}}`

func TestIngest_BloodPressurePairReport(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)

	report, err := svc.Ingest(context.Background(), uuid.New(), []byte(bloodPressurePair))
	require.NoError(t, err)

	assert.Equal(t, 1, report.ProcessedCount)
	assert.Zero(t, report.FailedCount)
	assert.Empty(t, report.Diagnostics)
	bp := report.PerFamily[models.FamilyBloodPressure]
	require.NotNil(t, bp)
	assert.Equal(t, 1, bp.Accepted)
	assert.Equal(t, int64(1), bp.RowsAffected)
}

func TestIngest_UnpairedSystolicReport(t *testing.T) {
	svc := newTestIngestService(config.DefaultIngestConfig(), nil)

	report, err := svc.Ingest(context.Background(), uuid.New(), []byte(`{"data":{"metrics":[
		{"name":"HKQuantityTypeIdentifierBloodPressureSystolic","data":[{"qty":120,"date":"2024-01-15 10:00:00Z"}]}]}}`))
	require.NoError(t, err)

	assert.Zero(t, report.ProcessedCount)
	assert.Zero(t, report.FailedCount)
	assert.Empty(t, report.Rejected)

	unpaired := report.DiagnosticsOfKind(models.KindUnpairedBloodPressure)
	require.Len(t, unpaired, 1)
	assert.Equal(t, 0, unpaired[0].Index)
	assert.Equal(t, models.FamilyBloodPressure, unpaired[0].Family)
	assert.Contains(t, unpaired[0].Reason, "systolic")
}

func TestIngest_RespiratoryRateReport(t *testing.T) {
	t.Run("mapped", func(t *testing.T) {
		svc := newTestIngestService(config.DefaultIngestConfig(), nil)

		report, err := svc.Ingest(context.Background(), uuid.New(), []byte(respiratoryRatePayload))
		require.NoError(t, err)
		assert.Equal(t, 3, report.ProcessedCount)
		assert.Empty(t, report.DiagnosticsOfKind(models.KindUnknownMetricName))
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := config.DefaultIngestConfig()
		cfg.DisabledNames = []string{"HKQuantityTypeIdentifierRespiratoryRate"}
		svc := newTestIngestService(cfg, nil)

		report, err := svc.Ingest(context.Background(), uuid.New(), []byte(respiratoryRatePayload))
		require.NoError(t, err)
		assert.Zero(t, report.ProcessedCount)
		assert.Zero(t, report.FailedCount)

		unknown := report.DiagnosticsOfKind(models.KindUnknownMetricName)
		require.Len(t, unknown, 1)
		assert.Equal(t, "HKQuantityTypeIdentifierRespiratoryRate", unknown[0].StreamName)
		assert.Equal(t, 3, unknown[0].PointCount)
	})
}

// upsertTable 按 ON CONFLICT 键保存行；与 Postgres 一样，插入和更新都计入 rows_affected
type upsertTable struct {
	mu     sync.Mutex
	tables map[string]map[string]bool
}

func newUpsertTable() *upsertTable {
	return &upsertTable{tables: make(map[string]map[string]bool)}
}

func (u *upsertTable) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	table := between(query, "INSERT INTO ", " (")
	cols := strings.Split(between(query, " (", ") VALUES"), ", ")
	keys := strings.Split(between(query, "ON CONFLICT (", ") DO"), ", ")

	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	rows := u.tables[table]
	if rows == nil {
		rows = make(map[string]bool)
		u.tables[table] = rows
	}
	n := len(args) / len(cols)
	for r := 0; r < n; r++ {
		row := args[r*len(cols) : (r+1)*len(cols)]
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprint(row[pos[k]])
		}
		rows[strings.Join(parts, "|")] = true
	}
	return driver.RowsAffected(n), nil
}

func (u *upsertTable) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, rows := range u.tables {
		total += len(rows)
	}
	return total
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

func TestIngest_RepeatedUploadIsIdempotent(t *testing.T) {
	payloads := map[string][]byte{
		"heart_rate": heartRatePayload(30),
		"mixed":      []byte(mixedPayload),
		"bp_pair":    []byte(bloodPressurePair),
	}
	for name, body := range payloads {
		t.Run(name, func(t *testing.T) {
			table := newUpsertTable()
			svc := newIngestServiceWithExecer(config.DefaultIngestConfig(), table, nil)
			userID := uuid.New()

			first, err := svc.Ingest(context.Background(), userID, body)
			require.NoError(t, err)
			stored := table.count()
			assert.Equal(t, first.ProcessedCount, stored)

			second, err := svc.Ingest(context.Background(), userID, body)
			require.NoError(t, err)

			assert.Equal(t, stored, table.count())
			assert.Equal(t, first.ProcessedCount, second.ProcessedCount)
			assert.Equal(t, first.FailedCount, second.FailedCount)
			require.Equal(t, len(first.PerFamily), len(second.PerFamily))
			for f, st := range first.PerFamily {
				require.Contains(t, second.PerFamily, f)
				assert.Equal(t, st.RowsAffected, second.PerFamily[f].RowsAffected, "family %s", f)
				assert.Equal(t, st.DedupDropped, second.PerFamily[f].DedupDropped, "family %s", f)
			}
		})
	}
}
