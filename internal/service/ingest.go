package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"wisefido-health-ingest/common/sentry"
	"wisefido-health-ingest/internal/batch"
	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/metrics"
	"wisefido-health-ingest/internal/models"
	"wisefido-health-ingest/internal/repository"
	"wisefido-health-ingest/internal/transformer"
	"wisefido-health-ingest/internal/validator"
)

// Writer 分组记录的持久化（repository.BatchWriter）
type Writer interface {
	Write(ctx context.Context, g *models.GroupedMetrics, sink repository.ProgressSink) (*repository.WriteResult, error)
}

// JobEnqueuer 超过同步阈值的上传转入后台
type JobEnqueuer interface {
	Enqueue(ctx context.Context, userID uuid.UUID, body []byte, records int) (*models.ProcessingJob, error)
}

// PayloadSize 上传的记录数和字节数
type PayloadSize struct {
	Records int
	Bytes   int64
}

// IngestService 摄取流水线：转换 -> 校验 -> 分组 -> 去重 -> 分批写入 -> 报告
type IngestService struct {
	cfg        *config.IngestConfig
	translator *transformer.Translator
	writer     Writer
	background JobEnqueuer
	metrics    *metrics.Manager
	logger     *zap.Logger
}

// NewIngestService 创建摄取服务；background 为 nil 时所有上传都同步处理
func NewIngestService(
	cfg *config.IngestConfig,
	translator *transformer.Translator,
	writer Writer,
	background JobEnqueuer,
	m *metrics.Manager,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		cfg:        cfg,
		translator: translator,
		writer:     writer,
		background: background,
		metrics:    m,
		logger:     logger,
	}
}

// Measure 不完整解码，统计上传的数据点个数
func Measure(body []byte) (PayloadSize, error) {
	if !gjson.ValidBytes(body) {
		return PayloadSize{}, fmt.Errorf("%w: body is not valid JSON", models.ErrInvalidPayload)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return PayloadSize{}, fmt.Errorf("%w: missing data object", models.ErrInvalidPayload)
	}

	size := PayloadSize{Bytes: int64(len(body))}
	data.Get("metrics").ForEach(func(_, stream gjson.Result) bool {
		points := stream.Get("data")
		if points.IsArray() {
			size.Records += int(points.Get("#").Int())
		}
		return true
	})
	if workouts := data.Get("workouts"); workouts.IsArray() {
		size.Records += int(workouts.Get("#").Int())
	}
	return size, nil
}

// ShouldDefer 记录数或字节数超过阈值时走后台；恰好等于阈值仍同步处理
func (s *IngestService) ShouldDefer(size PayloadSize) bool {
	return size.Records > s.cfg.SyncThreshold ||
		(s.cfg.SyncByteThreshold > 0 && size.Bytes > s.cfg.SyncByteThreshold)
}

// Ingest 处理一次上传：小上传同步返回完整报告，大上传返回带 job_id 的后台报告
func (s *IngestService) Ingest(ctx context.Context, userID uuid.UUID, body []byte) (*models.IngestReport, error) {
	if s.cfg.MaxPayloadBytes > 0 && int64(len(body)) > s.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", models.ErrPayloadTooLarge, len(body), s.cfg.MaxPayloadBytes)
	}
	size, err := Measure(body)
	if err != nil {
		return nil, err
	}

	if s.background != nil && s.ShouldDefer(size) {
		job, err := s.background.Enqueue(ctx, userID, body, size.Records)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue ingest job: %w", err)
		}
		s.logger.Info("Upload deferred to background job",
			zap.String("user_id", userID.String()),
			zap.String("job_id", job.ID.String()),
			zap.Int("records", size.Records),
			zap.Int64("bytes", size.Bytes),
		)
		report := models.NewIngestReport(models.ModeBackground)
		report.JobID = &job.ID
		return report, nil
	}

	payload, err := DecodePayload(body)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, userID, payload, models.ModeInline, nil)
}

// DecodePayload 解码上传内容
func DecodePayload(body []byte) (*models.UploadPayload, error) {
	var payload models.UploadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return &payload, nil
}

// Process 运行完整流水线；只有内部不变量被破坏时返回错误
func (s *IngestService) Process(
	ctx context.Context,
	userID uuid.UUID,
	payload *models.UploadPayload,
	mode string,
	sink repository.ProgressSink,
) (*models.IngestReport, error) {
	started := time.Now()

	report, err := s.process(ctx, userID, payload, mode, sink)
	if err != nil {
		if models.IsInvariantViolation(err) {
			s.logger.Error("Ingest aborted",
				zap.String("user_id", userID.String()),
				zap.String("mode", mode),
				zap.Error(err),
			)
			sentry.CaptureException(err, map[string]string{"mode": mode})
		}
		return nil, err
	}

	elapsed := time.Since(started)
	report.ProcessingTimeMs = elapsed.Milliseconds()
	s.metrics.ObserveReport(report, elapsed)

	s.logger.Info("Ingest finished",
		zap.String("user_id", userID.String()),
		zap.String("mode", mode),
		zap.Int("processed", report.ProcessedCount),
		zap.Int("failed", report.FailedCount),
		zap.Int("diagnostics", len(report.Diagnostics)),
		zap.Int64("processing_time_ms", report.ProcessingTimeMs),
	)
	return report, nil
}

func (s *IngestService) process(
	ctx context.Context,
	userID uuid.UUID,
	payload *models.UploadPayload,
	mode string,
	sink repository.ProgressSink,
) (*models.IngestReport, error) {
	tr := s.translator.Translate(userID, payload)

	accepted, rejected, warnings, err := s.validate(tr.Metrics)
	if err != nil {
		return nil, err
	}

	grouped, err := batch.Group(accepted)
	if err != nil {
		return nil, err
	}
	deduped, dropped := batch.Deduplicate(grouped)

	if sink != nil && len(rejected) > 0 {
		sink = &offsetSink{sink: sink, failed: len(rejected), lastError: rejected[len(rejected)-1].Message}
	}
	written, err := s.writer.Write(ctx, deduped, sink)
	if err != nil {
		return nil, err
	}

	report := models.NewIngestReport(mode)
	for f, n := range dropped {
		if n > 0 {
			report.Family(f).DedupDropped = n
		}
	}
	for f, fr := range written.Families {
		st := report.Family(f)
		st.Accepted = fr.Written
		st.RowsAffected = fr.RowsAffected
	}

	stored := written.Written()
	totalDropped := 0
	for _, n := range dropped {
		totalDropped += n
	}
	if stored+len(written.Rejected)+totalDropped != len(accepted) {
		return nil, &models.InvariantError{
			Stage: "aggregate",
			Message: fmt.Sprintf("%d accepted records but %d written, %d rejected by storage, %d merged",
				len(accepted), stored, len(written.Rejected), totalDropped),
		}
	}

	rejected = append(rejected, written.Rejected...)
	sortRejected(rejected)
	for _, r := range rejected {
		if r.Family != "" {
			report.Family(r.Family).Rejected++
		}
	}
	report.Rejected = rejected

	diags := make([]models.ConversionDiagnostic, 0, len(tr.Diagnostics)+len(warnings)+len(written.Diagnostics))
	diags = append(diags, tr.Diagnostics...)
	diags = append(diags, warnings...)
	diags = append(diags, written.Diagnostics...)
	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Index < diags[j].Index })
	report.Diagnostics = diags

	report.ProcessedCount = stored
	report.FailedCount = len(rejected)
	return report, nil
}

// validate 拆分为通过/拒绝，并收集危急值提示
func (s *IngestService) validate(records []models.Metric) ([]models.Metric, []models.RejectedRecord, []models.ConversionDiagnostic, error) {
	accepted := make([]models.Metric, 0, len(records))
	rejected := []models.RejectedRecord{}
	var warnings []models.ConversionDiagnostic

	for _, m := range records {
		if err := validator.Validate(&s.cfg.Validation, m); err != nil {
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				return nil, nil, nil, err
			}
			rejected = append(rejected, models.NewRejection(m, ve.Kind, rejectionMessage(ve)))
			continue
		}
		for _, w := range validator.Warnings(&s.cfg.Validation, m) {
			warnings = append(warnings, models.ConversionDiagnostic{
				Index:    m.Common().SourceIndex,
				Family:   m.Kind(),
				Kind:     models.KindOutOfRange,
				Reason:   w,
				Severity: models.SeverityWarning,
			})
		}
		accepted = append(accepted, m)
	}
	return accepted, rejected, warnings, nil
}

func rejectionMessage(ve *models.ValidationError) string {
	if ve.Field == "" {
		return ve.Message
	}
	return ve.Field + ": " + ve.Message
}

// sortRejected 按数据点序号排序，无序号的排在最后
func sortRejected(rs []models.RejectedRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Index, rs[j].Index
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// offsetSink 在写入进度上叠加校验阶段的拒绝数
type offsetSink struct {
	sink      repository.ProgressSink
	failed    int
	lastError string
}

func (o *offsetSink) Report(ctx context.Context, p models.Progress) error {
	p.Failed += o.failed
	p.Total += o.failed
	if p.LastError == "" {
		p.LastError = o.lastError
	}
	return o.sink.Report(ctx, p)
}
