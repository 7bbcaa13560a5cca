package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayouts 导出文件中出现的时间格式，按顺序尝试
var TimestampLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp 解析时间并统一转换为 UTC；无时区信息的格式按 UTC 处理
// 结果截断到微秒，与 Postgres timestamptz 的精度一致。
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// StoredMicros 时间在库中的表示（微秒），用于比较两个时刻是否落在同一行
func StoredMicros(t time.Time) int64 {
	return t.UTC().Truncate(time.Microsecond).UnixMicro()
}
