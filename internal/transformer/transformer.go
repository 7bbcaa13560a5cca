package transformer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
)

// Translator 将上传内容转换为规范化记录
// 单条数据点或单条流的错误只产生诊断，不会使整个上传失败。
type Translator struct {
	cfg    *config.IngestConfig
	logger *zap.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// Option Translator 可选项
type Option func(*Translator)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(t *Translator) { t.now = now }
}

// WithIDGenerator 替换记录 ID 生成器（测试用）
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(t *Translator) { t.newID = newID }
}

// NewTranslator 创建转换器
func NewTranslator(cfg *config.IngestConfig, logger *zap.Logger, opts ...Option) *Translator {
	t := &Translator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translation 转换结果
type Translation struct {
	Metrics     []models.Metric
	Diagnostics []models.ConversionDiagnostic
	// PointCount 上传中的数据点总数（metrics 各流数据点 + workouts 条目）
	PointCount int
}

// bpPoint 等待配对的血压半值
type bpPoint struct {
	half  bpHalf
	index int
	value float64
	base  models.RecordBase
	used  bool
}

// run 单次转换的状态
type run struct {
	t         *Translator
	userID    uuid.UUID
	createdAt time.Time
	index     int
	out       *Translation
	bp        []*bpPoint
}

// Translate 转换一次上传
func (t *Translator) Translate(userID uuid.UUID, payload *models.UploadPayload) *Translation {
	r := &run{
		t:         t,
		userID:    userID,
		createdAt: t.now().UTC(),
		out:       &Translation{},
	}
	if payload == nil {
		return r.out
	}

	for _, raw := range payload.Data.Metrics {
		r.translateStream(raw)
	}
	r.pairBloodPressure()
	for _, raw := range payload.Data.Workouts {
		r.translateWorkout(raw)
	}

	r.out.PointCount = r.index
	sort.SliceStable(r.out.Diagnostics, func(i, j int) bool {
		return r.out.Diagnostics[i].Index < r.out.Diagnostics[j].Index
	})

	t.logger.Debug("Payload translated",
		zap.String("user_id", userID.String()),
		zap.Int("points", r.out.PointCount),
		zap.Int("metrics", len(r.out.Metrics)),
		zap.Int("diagnostics", len(r.out.Diagnostics)),
	)
	return r.out
}

func (r *run) diag(d models.ConversionDiagnostic) {
	if d.Severity == "" {
		d.Severity = models.SeverityError
	}
	if d.PointCount == 0 && d.Severity == models.SeverityError {
		d.PointCount = 1
	}
	r.out.Diagnostics = append(r.out.Diagnostics, d)
}

func (r *run) translateStream(raw json.RawMessage) {
	start := r.index

	var stream models.MetricStream
	if err := json.Unmarshal(raw, &stream); err != nil || isNull(raw) {
		// 流结构错误：整条流跳过，诊断覆盖其全部数据点
		n := int(gjson.GetBytes(raw, "data.#").Int())
		r.index += n
		reason := "malformed metric stream"
		if err != nil {
			reason = fmt.Sprintf("malformed metric stream: %v", err)
		}
		r.out.Diagnostics = append(r.out.Diagnostics, models.ConversionDiagnostic{
			Index:      start,
			StreamName: gjson.GetBytes(raw, "name").String(),
			Kind:       models.KindParseError,
			Reason:     reason,
			PointCount: n,
			Severity:   models.SeverityError,
		})
		return
	}

	r.index += len(stream.Data)
	entry, ok := lookup(stream.Name, r.t.cfg.IsNameDisabled)
	if !ok {
		r.t.logger.Warn("Unknown metric stream skipped",
			zap.String("stream", stream.Name),
			zap.Int("points", len(stream.Data)),
		)
		r.out.Diagnostics = append(r.out.Diagnostics, models.ConversionDiagnostic{
			Index:      start,
			StreamName: stream.Name,
			Kind:       models.KindUnknownMetricName,
			Reason:     fmt.Sprintf("metric name %q is not mapped", stream.Name),
			PointCount: len(stream.Data),
			Severity:   models.SeverityError,
		})
		return
	}

	units := unitKey(stream.Units)
	for i, rawPoint := range stream.Data {
		r.translatePoint(start+i, stream.Name, units, entry, rawPoint)
	}
}

func (r *run) translatePoint(index int, name, units string, entry nameEntry, raw json.RawMessage) {
	fail := func(kind models.ErrorKind, reason string) {
		r.diag(models.ConversionDiagnostic{
			Index:      index,
			StreamName: name,
			Family:     entry.family,
			Kind:       kind,
			Reason:     reason,
		})
	}

	if isNull(raw) {
		fail(models.KindParseError, "data point is null")
		return
	}
	var point models.DataPoint
	if err := json.Unmarshal(raw, &point); err != nil {
		fail(models.KindParseError, fmt.Sprintf("malformed data point: %v", err))
		return
	}

	at, fallback, err := r.resolveTime(&point)
	if err != nil {
		fail(models.KindParseError, err.Error())
		return
	}
	if fallback {
		r.diag(models.ConversionDiagnostic{
			Index:      index,
			StreamName: name,
			Family:     entry.family,
			Kind:       models.KindParseError,
			Reason:     "data point has no timestamp, wall clock used",
			Severity:   models.SeverityWarning,
		})
	}

	base := models.RecordBase{
		ID:           r.t.newID(),
		UserID:       r.userID,
		RecordedAt:   at,
		SourceDevice: sourceOf(point.Source),
		CreatedAt:    r.createdAt,
		SourceIndex:  index,
	}

	if entry.half != notPaired {
		if point.Qty == nil {
			fail(models.KindMissingRequired, "qty is required")
			return
		}
		r.bp = append(r.bp, &bpPoint{half: entry.half, index: index, value: *point.Qty, base: base})
		return
	}

	m, err := entry.mapper(&pointContext{name: name, point: &point, units: units, base: base})
	if err != nil {
		var me *mapError
		if errors.As(err, &me) {
			fail(me.kind, me.reason)
		} else {
			fail(models.KindParseError, err.Error())
		}
		return
	}
	r.out.Metrics = append(r.out.Metrics, m)
}

// resolveTime 依次尝试 date、start、end；三者都未提供时使用当前时间
func (r *run) resolveTime(p *models.DataPoint) (time.Time, bool, error) {
	if !p.HasTimestampField() {
		return r.t.now().UTC(), true, nil
	}
	var tried []string
	for _, field := range []struct {
		name  string
		value *string
	}{{"date", p.Date}, {"start", p.Start}, {"end", p.End}} {
		if field.value == nil {
			continue
		}
		if at, err := models.ParseTimestamp(*field.value); err == nil {
			return at, false, nil
		}
		tried = append(tried, fmt.Sprintf("%s=%q", field.name, *field.value))
	}
	return time.Time{}, false, fmt.Errorf("unparseable timestamp (%s)", strings.Join(tried, ", "))
}

// pairBloodPressure 收缩压与舒张压按相同时刻配对，优先同一来源设备
func (r *run) pairBloodPressure() {
	if len(r.bp) == 0 {
		return
	}
	diastolic := make(map[int64][]*bpPoint)
	var systolic []*bpPoint
	for _, p := range r.bp {
		if p.half == systolicHalf {
			systolic = append(systolic, p)
			continue
		}
		at := models.StoredMicros(p.base.RecordedAt)
		diastolic[at] = append(diastolic[at], p)
	}

	for _, sys := range systolic {
		candidates := diastolic[models.StoredMicros(sys.base.RecordedAt)]
		var match *bpPoint
		for _, dia := range candidates {
			if dia.used {
				continue
			}
			if sameSource(sys.base.SourceDevice, dia.base.SourceDevice) {
				match = dia
				break
			}
			if match == nil {
				match = dia
			}
		}
		if match == nil {
			continue
		}
		sys.used, match.used = true, true

		base := sys.base
		if base.SourceDevice == nil {
			base.SourceDevice = match.base.SourceDevice
		}
		r.out.Metrics = append(r.out.Metrics, &models.BloodPressureMetric{
			RecordBase:     base,
			Systolic:       roundInt(sys.value),
			Diastolic:      roundInt(match.value),
			DiastolicIndex: match.index,
		})
	}

	for _, p := range r.bp {
		if p.used {
			continue
		}
		half := "systolic"
		if p.half == diastolicHalf {
			half = "diastolic"
		}
		r.diag(models.ConversionDiagnostic{
			Index:  p.index,
			Family: models.FamilyBloodPressure,
			Kind:   models.KindUnpairedBloodPressure,
			Reason: fmt.Sprintf("%s reading at %s has no matching half", half, p.base.RecordedAt.Format(time.RFC3339)),
		})
	}
	r.bp = nil
}

func (r *run) translateWorkout(raw json.RawMessage) {
	index := r.index
	r.index++

	base := models.RecordBase{
		ID:          r.t.newID(),
		UserID:      r.userID,
		CreatedAt:   r.createdAt,
		SourceIndex: index,
	}
	res := decodeWorkout(raw, base)
	if res.err != nil {
		r.diag(models.ConversionDiagnostic{
			Index:      index,
			StreamName: gjson.GetBytes(raw, "name").String(),
			Family:     models.FamilyWorkout,
			Kind:       res.err.kind,
			Reason:     res.err.reason,
		})
		return
	}
	r.out.Metrics = append(r.out.Metrics, res.metric)
}

func sourceOf(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func sameSource(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
