package transformer

import (
	"encoding/json"
	"strings"

	"wisefido-health-ingest/internal/models"
)

// workoutResult 单个运动条目的转换结果
type workoutResult struct {
	metric *models.WorkoutMetric
	err    *mapError
}

// decodeWorkout 转换 workouts 数组中的一项
func decodeWorkout(raw json.RawMessage, base models.RecordBase) workoutResult {
	var blob models.WorkoutBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return workoutResult{err: &mapError{kind: models.KindParseError, reason: "malformed workout: " + err.Error()}}
	}
	if blob.Start == nil {
		return workoutResult{err: missing("start")}
	}
	if blob.End == nil {
		return workoutResult{err: missing("end")}
	}
	start, err := models.ParseTimestamp(*blob.Start)
	if err != nil {
		return workoutResult{err: unparseable("start", *blob.Start)}
	}
	end, err := models.ParseTimestamp(*blob.End)
	if err != nil {
		return workoutResult{err: unparseable("end", *blob.End)}
	}

	workoutType := ""
	if blob.Name != nil {
		workoutType = models.WorkoutTypeFromSource(*blob.Name)
	}
	if workoutType == "" {
		workoutType = "other"
	}

	base.RecordedAt = start
	if base.SourceDevice == nil && blob.Source != nil {
		if s := strings.TrimSpace(*blob.Source); s != "" {
			base.SourceDevice = &s
		}
	}

	m := &models.WorkoutMetric{
		RecordBase:       base,
		WorkoutType:      workoutType,
		StartedAt:        start,
		EndedAt:          end,
		ActiveEnergyKcal: energyOf(blob.ActiveEnergyBurned),
		TotalEnergyKcal:  energyOf(blob.TotalEnergy),
		DistanceMeters:   distanceOf(blob.Distance),
		Route:            models.NewGPSRoute(blob.Route),
	}
	if blob.HeartRate != nil {
		m.AvgHeartRate = bpmOf(blob.HeartRate.Avg)
		m.MaxHeartRate = bpmOf(blob.HeartRate.Max)
	}
	if m.AvgHeartRate == nil {
		m.AvgHeartRate = bpmOf(blob.AvgHeartRate)
	}
	if m.MaxHeartRate == nil {
		m.MaxHeartRate = bpmOf(blob.MaxHeartRate)
	}
	return workoutResult{metric: m}
}

func energyOf(q *models.Quantity) *float64 {
	if q == nil || q.Qty == nil {
		return nil
	}
	return ptr(toKcal(*q.Qty, unitKey(q.Units)))
}

func distanceOf(q *models.Quantity) *float64 {
	if q == nil || q.Qty == nil {
		return nil
	}
	return ptr(toMeters(*q.Qty, unitKey(q.Units)))
}

func bpmOf(q *models.Quantity) *int {
	if q == nil || q.Qty == nil {
		return nil
	}
	return intPtr(*q.Qty)
}

// mapWorkoutPoint 以指标流形式上报的运动：start/end 为区间，value 为运动名称
func mapWorkoutPoint(pc *pointContext) (models.Metric, error) {
	start, end, err := pc.interval()
	if err != nil {
		return nil, err
	}
	workoutType := models.WorkoutTypeFromSource(pc.value())
	if workoutType == "" {
		workoutType = "other"
	}
	base := pc.base
	base.RecordedAt = start
	m := &models.WorkoutMetric{
		RecordBase:  base,
		WorkoutType: workoutType,
		StartedAt:   start,
		EndedAt:     end,
	}
	if v := pc.extraNumber("activeEnergy"); v != nil {
		m.ActiveEnergyKcal = ptr(*v)
	}
	if v := pc.extraNumber("distance"); v != nil {
		m.DistanceMeters = ptr(toMeters(*v, pc.units))
	}
	if pc.point.Qty != nil && m.ActiveEnergyKcal == nil {
		m.ActiveEnergyKcal = ptr(toKcal(*pc.point.Qty, pc.units))
	}
	return m, nil
}

