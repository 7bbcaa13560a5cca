// Package validator 按家族校验规范化记录的取值范围和字段间约束
package validator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
)

// Validate 校验单条记录，失败返回 *models.ValidationError
// 所有规则都是区间检查或与区间无关的字段间检查，放宽区间不会拒绝更多记录。
func Validate(cfg *config.ValidationConfig, m models.Metric) error {
	base := m.Common()
	if base.RecordedAt.IsZero() {
		return temporal("recorded_at", "recorded_at is missing")
	}
	if base.RecordedAt.Location() != time.UTC {
		return temporal("recorded_at", "recorded_at is not UTC")
	}

	switch r := m.(type) {
	case *models.HeartRateMetric:
		return heartRate(cfg, r)
	case *models.BloodPressureMetric:
		return bloodPressure(cfg, r)
	case *models.SleepMetric:
		return sleep(cfg, r)
	case *models.ActivityMetric:
		return activity(cfg, r)
	case *models.BodyMeasurementMetric:
		return bodyMeasurement(cfg, r)
	case *models.TemperatureMetric:
		return temperature(cfg, r)
	case *models.BloodGlucoseMetric:
		return bloodGlucose(cfg, r)
	case *models.MetabolicMetric:
		return metabolic(cfg, r)
	case *models.RespiratoryMetric:
		return respiratory(cfg, r)
	case *models.NutritionMetric:
		return nutrition(cfg, r)
	case *models.WorkoutMetric:
		return workout(cfg, r)
	case *models.EnvironmentalMetric:
		return environmental(cfg, r)
	case *models.AudioExposureMetric:
		return audioExposure(cfg, r)
	case *models.SafetyEventMetric:
		return safetyEvent(cfg, r)
	case *models.MindfulnessMetric:
		return mindfulness(cfg, r)
	case *models.MentalHealthMetric:
		return mentalHealth(r)
	case *models.MenstrualMetric:
		return menstrual(cfg, r)
	case *models.FertilityMetric:
		return fertility(cfg, r)
	case *models.SymptomMetric:
		return symptom(r)
	case *models.HygieneMetric:
		return hygiene(cfg, r)
	}
	return &models.InvariantError{Stage: "validate", Message: fmt.Sprintf("no validation rules for %T", m)}
}

// Warnings 不拒绝记录的危急值提示
func Warnings(cfg *config.ValidationConfig, m models.Metric) []string {
	var out []string
	switch r := m.(type) {
	case *models.BloodGlucoseMetric:
		if r.BloodGlucoseMgDl < cfg.GlucoseCriticalLow {
			out = append(out, fmt.Sprintf("critical low blood glucose %.1f mg/dL", r.BloodGlucoseMgDl))
		} else if r.BloodGlucoseMgDl > cfg.GlucoseCriticalHigh {
			out = append(out, fmt.Sprintf("critical high blood glucose %.1f mg/dL", r.BloodGlucoseMgDl))
		}
	case *models.RespiratoryMetric:
		if r.OxygenSaturation != nil && *r.OxygenSaturation < cfg.OxygenSaturationCrit {
			out = append(out, fmt.Sprintf("critical oxygen saturation %.1f%%", *r.OxygenSaturation))
		}
	case *models.TemperatureMetric:
		if r.BodyTemperature != nil && *r.BodyTemperature >= cfg.FeverThreshold {
			out = append(out, fmt.Sprintf("fever body temperature %.1f°C", *r.BodyTemperature))
		}
	}
	return out
}

func newErr(kind models.ErrorKind, field, format string, args ...any) error {
	return &models.ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func temporal(field, msg string) error {
	return newErr(models.KindTemporalInvalid, field, "%s", msg)
}

func required(field string) error {
	return newErr(models.KindMissingRequired, field, "%s is required", field)
}

func inRange(field string, v, min, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < min || v > max {
		return newErr(models.KindOutOfRange, field, "%s %v outside [%v, %v]", field, v, min, max)
	}
	return nil
}

func optRange(field string, v *float64, min, max float64) error {
	if v == nil {
		return nil
	}
	return inRange(field, *v, min, max)
}

func optIntRange(field string, v *int, min, max int) error {
	if v == nil {
		return nil
	}
	return inRange(field, float64(*v), float64(min), float64(max))
}

func enum(field, v string, set []string) error {
	if !models.InEnum(v, set) {
		return newErr(models.KindEnumInvalid, field, "%s %q is not one of %s", field, v, strings.Join(set, ", "))
	}
	return nil
}

func optEnum(field string, v *string, set []string) error {
	if v == nil {
		return nil
	}
	return enum(field, *v, set)
}

// first 返回第一个非 nil 错误
func first(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
