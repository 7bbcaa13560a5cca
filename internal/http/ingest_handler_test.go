package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/models"
	"wisefido-health-ingest/internal/service"
)

type stubIngester struct {
	report *models.IngestReport
	err    error
	user   uuid.UUID
	body   string
}

func (s *stubIngester) Ingest(_ context.Context, userID uuid.UUID, body []byte) (*models.IngestReport, error) {
	s.user = userID
	s.body = string(body)
	return s.report, s.err
}

type stubJobs struct {
	job    *models.ProcessingJob
	report *models.IngestReport
	err    error
}

func (s *stubJobs) Job(context.Context, uuid.UUID) (*models.ProcessingJob, error) {
	return s.job, s.err
}

func (s *stubJobs) Report(context.Context, uuid.UUID) (*models.IngestReport, error) {
	return s.report, s.err
}

func newTestRouter(ing Ingester, jobs JobReader, maxBytes int64) *Router {
	r := NewRouter(zap.NewNop())
	r.RegisterIngestRoutes(NewIngestHandler(ing, jobs, maxBytes, zap.NewNop()))
	r.RegisterOpsRoutes(promhttp.Handler())
	return r
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestIngest_Inline(t *testing.T) {
	report := models.NewIngestReport(models.ModeInline)
	report.ProcessedCount = 3
	ing := &stubIngester{report: report}
	router := newTestRouter(ing, &stubJobs{}, 1<<20)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{"data":{}}`))
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	var got models.IngestReport
	require.NoError(t, json.Unmarshal(res.Result, &got))
	assert.Equal(t, 3, got.ProcessedCount)
	assert.Equal(t, userID, ing.user)
	assert.Equal(t, `{"data":{}}`, ing.body)
}

func TestIngest_BackgroundReturns202(t *testing.T) {
	report := models.NewIngestReport(models.ModeBackground)
	jobID := uuid.New()
	report.JobID = &jobID
	router := newTestRouter(&stubIngester{report: report}, &stubJobs{}, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{"data":{}}`))
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), jobID.String())
}

func TestIngest_BodyLimit(t *testing.T) {
	body := `{"data":{"metrics":[]}}`
	cases := []struct {
		name     string
		maxBytes int64
		want     int
	}{
		{"unlimited", 0, http.StatusOK},
		{"negative is unlimited", -1, http.StatusOK},
		{"exact limit", int64(len(body)), http.StatusOK},
		{"one byte over", int64(len(body)) - 1, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing := &stubIngester{report: models.NewIngestReport(models.ModeInline)}
			router := newTestRouter(ing, &stubJobs{}, tc.maxBytes)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body))
			req.Header.Set("X-User-ID", uuid.NewString())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, body, ing.body)
			} else {
				assert.Empty(t, ing.body)
			}
		})
	}
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		body   string
		err    error
		status int
	}{
		{"missing user", "", `{}`, nil, http.StatusBadRequest},
		{"invalid user", "alice", `{}`, nil, http.StatusBadRequest},
		{"invalid payload", uuid.NewString(), `{`, fmt.Errorf("%w: bad", models.ErrInvalidPayload), http.StatusBadRequest},
		{"too large", uuid.NewString(), strings.Repeat("x", 20), nil, http.StatusRequestEntityTooLarge},
		{"invariant", uuid.NewString(), `{}`, &models.InvariantError{Stage: "group", Message: "unknown family"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubIngester{err: tt.err, report: models.NewIngestReport(models.ModeInline)}, &stubJobs{}, 16)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(tt.body))
			if tt.user != "" {
				req.Header.Set("X-User-ID", tt.user)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, ResultError, decodeResult(t, rec).Code)
		})
	}
}

func TestGetJob(t *testing.T) {
	job := &models.ProcessingJob{ID: uuid.New(), Status: models.JobProcessing, TotalMetrics: 12000, ProcessedMetrics: 4000}
	router := newTestRouter(&stubIngester{}, &stubJobs{job: job}, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.ProcessingJob
	require.NoError(t, json.Unmarshal(decodeResult(t, rec).Result, &got))
	assert.Equal(t, models.JobProcessing, got.Status)
	assert.Equal(t, 4000, got.ProcessedMetrics)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := newTestRouter(&stubIngester{}, &stubJobs{err: models.ErrJobNotFound}, 1<<20)
	rec = httptest.NewRecorder()
	missing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportReport(t *testing.T) {
	report := models.NewIngestReport(models.ModeBackground)
	report.Family(models.FamilyActivity).Accepted = 10
	router := newTestRouter(&stubIngester{}, &stubJobs{report: report}, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+uuid.NewString()+"/report.xlsx", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	// xlsx 是 zip 包
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))

	notReady := newTestRouter(&stubIngester{}, &stubJobs{err: fmt.Errorf("%w: pending", service.ErrReportNotReady)}, 1<<20)
	rec = httptest.NewRecorder()
	notReady.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+uuid.NewString()+"/report.xlsx", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOpsRoutes(t *testing.T) {
	router := newTestRouter(&stubIngester{}, &stubJobs{}, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, decodeResult(t, rec).Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
