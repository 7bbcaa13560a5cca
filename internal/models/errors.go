package models

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类（封闭集合）
type ErrorKind string

const (
	KindParseError            ErrorKind = "parse_error"
	KindUnknownMetricName     ErrorKind = "unknown_metric_name"
	KindOutOfRange            ErrorKind = "out_of_range"
	KindCrossFieldInvalid     ErrorKind = "cross_field_invalid"
	KindTemporalInvalid       ErrorKind = "temporal_invalid"
	KindEnumInvalid           ErrorKind = "enum_invalid"
	KindMissingRequired       ErrorKind = "missing_required"
	KindUnpairedBloodPressure ErrorKind = "unpaired_blood_pressure"
	KindStorageError          ErrorKind = "storage_error"
	KindInvariantViolated     ErrorKind = "internal_invariant_violated"
)

// AllErrorKinds 全部错误分类
var AllErrorKinds = []ErrorKind{
	KindParseError,
	KindUnknownMetricName,
	KindOutOfRange,
	KindCrossFieldInvalid,
	KindTemporalInvalid,
	KindEnumInvalid,
	KindMissingRequired,
	KindUnpairedBloodPressure,
	KindStorageError,
	KindInvariantViolated,
}

var (
	// ErrInvalidPayload 上传内容不是合法的 JSON 或缺少 data 字段
	ErrInvalidPayload = errors.New("invalid upload payload")
	// ErrPayloadTooLarge 超过允许的最大上传大小
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrJobNotFound 后台任务不存在
	ErrJobNotFound = errors.New("processing job not found")
	// ErrJobFailed 任务已被标记为 failed（终态，不再重试）
	ErrJobFailed = errors.New("processing job failed")
)

// ValidationError 校验失败原因
type ValidationError struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

// InvariantError 内部不变量被破坏，整个 ingest 终止
type InvariantError struct {
	Stage   string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", KindInvariantViolated, e.Stage, e.Message)
}

// IsInvariantViolation 判断错误链中是否存在 InvariantError
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
