package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UploadPayload 移动端导出的上传内容
// metrics / workouts 保留原始 JSON，单条流格式错误只影响该条流。
type UploadPayload struct {
	Data PayloadData `json:"data"`
}

type PayloadData struct {
	Metrics  []json.RawMessage `json:"metrics"`
	Workouts []json.RawMessage `json:"workouts"`
}

// MetricStream 一条命名的指标流
type MetricStream struct {
	Name  string            `json:"name"`
	Units *string           `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// DataPoint 流中的一个数据点，未识别的键保存在 Extra
type DataPoint struct {
	Qty    *float64
	Value  *string
	Date   *string
	Start  *string
	End    *string
	Source *string
	Extra  map[string]json.RawMessage
}

func (p *DataPoint) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("data point is null")
	}

	var err error
	if p.Qty, err = takeNumber(fields, "qty"); err != nil {
		return err
	}
	if p.Value, err = takeScalar(fields, "value"); err != nil {
		return err
	}
	if p.Date, err = takeString(fields, "date"); err != nil {
		return err
	}
	if p.Start, err = takeString(fields, "start"); err != nil {
		return err
	}
	if p.End, err = takeString(fields, "end"); err != nil {
		return err
	}
	if p.Source, err = takeString(fields, "source"); err != nil {
		return err
	}
	p.Extra = fields
	return nil
}

// ExtraNumber 读取 Extra 中的数值字段
func (p *DataPoint) ExtraNumber(key string) (*float64, bool) {
	raw, ok := p.Extra[key]
	if !ok {
		return nil, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// ExtraString 读取 Extra 中的字符串字段
func (p *DataPoint) ExtraString(key string) (string, bool) {
	raw, ok := p.Extra[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// HasTimestampField 是否携带 date/start/end 中任意一个
func (p *DataPoint) HasTimestampField() bool {
	return p.Date != nil || p.Start != nil || p.End != nil
}

func takeNumber(fields map[string]json.RawMessage, key string) (*float64, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	delete(fields, key)
	if string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %q is not a number", key)
	}
	return &v, nil
}

func takeString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	delete(fields, key)
	if string(raw) == "null" {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %q is not a string", key)
	}
	return &v, nil
}

// takeScalar 字符串、数字、布尔统一转为字符串
func takeScalar(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	delete(fields, key)
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	var s string
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return nil, fmt.Errorf("field %q is not a scalar", key)
	}
	return &s, nil
}

// Quantity 带单位的数值
type Quantity struct {
	Qty   *float64 `json:"qty"`
	Units *string  `json:"units"`
}

// HeartRateSummary 运动心率汇总
type HeartRateSummary struct {
	Min *Quantity `json:"min"`
	Avg *Quantity `json:"avg"`
	Max *Quantity `json:"max"`
}

// WorkoutBlob workouts 数组中的一项
type WorkoutBlob struct {
	Name               *string           `json:"name"`
	Start              *string           `json:"start"`
	End                *string           `json:"end"`
	Source             *string           `json:"source"`
	ActiveEnergyBurned *Quantity         `json:"activeEnergyBurned"`
	TotalEnergy        *Quantity         `json:"totalEnergy"`
	Distance           *Quantity         `json:"distance"`
	HeartRate          *HeartRateSummary `json:"heartRate"`
	AvgHeartRate       *Quantity         `json:"avgHeartRate"`
	MaxHeartRate       *Quantity         `json:"maxHeartRate"`
	Route              json.RawMessage   `json:"route"`
}
