package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/models"
	"wisefido-health-ingest/internal/service"
)

// Ingester 上传入口
type Ingester interface {
	Ingest(ctx context.Context, userID uuid.UUID, body []byte) (*models.IngestReport, error)
}

// JobReader 后台任务查询
type JobReader interface {
	Job(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	Report(ctx context.Context, id uuid.UUID) (*models.IngestReport, error)
}

// IngestHandler 上传与任务接口
type IngestHandler struct {
	ingester Ingester
	jobs     JobReader
	maxBytes int64
	logger   *zap.Logger
}

func NewIngestHandler(ingester Ingester, jobs JobReader, maxBytes int64, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingester: ingester,
		jobs:     jobs,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Ingest POST /api/v1/ingest，用户来自 X-User-ID
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-User-ID")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("missing or invalid X-User-ID"))
		return
	}

	// maxBytes <= 0 不限制大小；否则多读一个字节以区分"恰好等于上限"和"超过上限"
	var src io.Reader = r.Body
	if h.maxBytes > 0 {
		src = io.LimitReader(r.Body, h.maxBytes+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to read request body"))
		return
	}
	if h.maxBytes > 0 && int64(len(body)) > h.maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, Fail(fmt.Sprintf("payload exceeds %d bytes", h.maxBytes)))
		return
	}

	report, err := h.ingester.Ingest(r.Context(), userID, body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if report.Mode == models.ModeBackground {
		writeJSON(w, http.StatusAccepted, Ok(report))
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

// GetJob GET /api/v1/ingest/jobs/{id}
func (h *IngestHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Job(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(job))
}

// ExportReport GET /api/v1/ingest/jobs/{id}/report.xlsx
func (h *IngestHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	report, err := h.jobs.Report(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	b, err := service.ReportWorkbook(report)
	if err != nil {
		h.logger.Error("Failed to build report workbook", zap.String("job_id", id.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build report"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ingest-report-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *IngestHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid job id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *IngestHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, models.ErrPayloadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, Fail(err.Error()))
	case errors.Is(err, models.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, Fail("job not found"))
	case errors.Is(err, service.ErrReportNotReady):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case models.IsInvariantViolation(err):
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
