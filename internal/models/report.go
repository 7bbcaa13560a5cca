package models

import (
	"github.com/google/uuid"
)

// Severity 诊断级别：error 表示数据点未被转换，warning 仅作提示
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ConversionDiagnostic 转换/写入过程中的诊断信息
type ConversionDiagnostic struct {
	// Index 数据点在上传中的全局序号（workouts 接在 metrics 之后编号）
	Index      int       `json:"index"`
	StreamName string    `json:"stream_name,omitempty"`
	Family     Family    `json:"family,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
	// PointCount 诊断覆盖的数据点个数（未知流覆盖整条流）
	PointCount int      `json:"point_count"`
	Severity   Severity `json:"severity"`
}

// RejectedRecord 被校验器或存储层拒绝的记录
type RejectedRecord struct {
	Index *int `json:"index,omitempty"`
	// RelatedIndex 配对记录的另一半（血压舒张压）
	RelatedIndex *int      `json:"related_index,omitempty"`
	Family       Family    `json:"family,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind"`
	Message      string    `json:"message"`
}

// NewRejection 根据记录生成拒绝项
func NewRejection(m Metric, kind ErrorKind, message string) RejectedRecord {
	idx := m.Common().SourceIndex
	r := RejectedRecord{
		Index:     &idx,
		Family:    m.Kind(),
		ErrorKind: kind,
		Message:   message,
	}
	if bp, ok := m.(*BloodPressureMetric); ok {
		related := bp.DiastolicIndex
		r.RelatedIndex = &related
	}
	return r
}

// FamilyStats 单个家族的统计
type FamilyStats struct {
	Accepted     int   `json:"accepted"`
	Rejected     int   `json:"rejected"`
	DedupDropped int   `json:"dedup_dropped"`
	RowsAffected int64 `json:"rows_affected"`
}

const (
	ModeInline     = "inline"
	ModeBackground = "background"
)

// IngestReport 一次上传的处理结果
type IngestReport struct {
	ProcessedCount   int                     `json:"processed_count"`
	FailedCount      int                     `json:"failed_count"`
	PerFamily        map[Family]*FamilyStats `json:"per_family"`
	Diagnostics      []ConversionDiagnostic  `json:"diagnostics"`
	Rejected         []RejectedRecord        `json:"rejected"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Mode             string                  `json:"mode"`
	JobID            *uuid.UUID              `json:"job_id,omitempty"`
}

// NewIngestReport 创建空报告
func NewIngestReport(mode string) *IngestReport {
	return &IngestReport{
		PerFamily:   make(map[Family]*FamilyStats),
		Diagnostics: []ConversionDiagnostic{},
		Rejected:    []RejectedRecord{},
		Mode:        mode,
	}
}

// Family 获取（必要时创建）家族统计
func (r *IngestReport) Family(f Family) *FamilyStats {
	s, ok := r.PerFamily[f]
	if !ok {
		s = &FamilyStats{}
		r.PerFamily[f] = s
	}
	return s
}

// ErrorDiagnostics 只返回 error 级别的诊断
func (r *IngestReport) ErrorDiagnostics() []ConversionDiagnostic {
	var out []ConversionDiagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// DiagnosticsOfKind 按分类过滤诊断
func (r *IngestReport) DiagnosticsOfKind(kind ErrorKind) []ConversionDiagnostic {
	var out []ConversionDiagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
