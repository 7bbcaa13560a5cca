// Package batch 将通过校验的记录按家族分组并去重
package batch

import (
	"fmt"
	"reflect"

	"wisefido-health-ingest/internal/models"
)

// Group 按家族分组，保持每个家族内的输入顺序
// 每种记录类型必须有对应分支；落入 default 说明新增了类型但未接入分组。
func Group(metrics []models.Metric) (*models.GroupedMetrics, error) {
	g := &models.GroupedMetrics{}
	for i, m := range metrics {
		switch r := m.(type) {
		case *models.HeartRateMetric:
			g.HeartRate = append(g.HeartRate, r)
		case *models.BloodPressureMetric:
			g.BloodPressure = append(g.BloodPressure, r)
		case *models.SleepMetric:
			g.Sleep = append(g.Sleep, r)
		case *models.ActivityMetric:
			g.Activity = append(g.Activity, r)
		case *models.BodyMeasurementMetric:
			g.BodyMeasurement = append(g.BodyMeasurement, r)
		case *models.TemperatureMetric:
			g.Temperature = append(g.Temperature, r)
		case *models.BloodGlucoseMetric:
			g.BloodGlucose = append(g.BloodGlucose, r)
		case *models.MetabolicMetric:
			g.Metabolic = append(g.Metabolic, r)
		case *models.RespiratoryMetric:
			g.Respiratory = append(g.Respiratory, r)
		case *models.NutritionMetric:
			g.Nutrition = append(g.Nutrition, r)
		case *models.WorkoutMetric:
			g.Workout = append(g.Workout, r)
		case *models.EnvironmentalMetric:
			g.Environmental = append(g.Environmental, r)
		case *models.AudioExposureMetric:
			g.AudioExposure = append(g.AudioExposure, r)
		case *models.SafetyEventMetric:
			g.SafetyEvent = append(g.SafetyEvent, r)
		case *models.MindfulnessMetric:
			g.Mindfulness = append(g.Mindfulness, r)
		case *models.MentalHealthMetric:
			g.MentalHealth = append(g.MentalHealth, r)
		case *models.MenstrualMetric:
			g.Menstrual = append(g.Menstrual, r)
		case *models.FertilityMetric:
			g.Fertility = append(g.Fertility, r)
		case *models.SymptomMetric:
			g.Symptom = append(g.Symptom, r)
		case *models.HygieneMetric:
			g.Hygiene = append(g.Hygiene, r)
		default:
			return nil, &models.InvariantError{
				Stage:   "group",
				Message: fmt.Sprintf("record %d of type %T has no bundle field", i, m),
			}
		}
	}
	return g, nil
}

// VerifyGrouping 启动自检：每个家族构造一条记录，分组后必须恰好落在对应字段
func VerifyGrouping() error {
	fields := reflect.TypeOf(models.GroupedMetrics{}).NumField()
	if fields != len(models.AllFamilies) {
		return &models.InvariantError{
			Stage:   "group",
			Message: fmt.Sprintf("bundle has %d fields for %d families", fields, len(models.AllFamilies)),
		}
	}

	for _, f := range models.AllFamilies {
		m := models.NewMetric(f)
		if m == nil {
			return &models.InvariantError{Stage: "group", Message: fmt.Sprintf("family %q has no record type", f)}
		}
		if m.Kind() != f {
			return &models.InvariantError{Stage: "group", Message: fmt.Sprintf("record for %q reports kind %q", f, m.Kind())}
		}
		g, err := Group([]models.Metric{m})
		if err != nil {
			return err
		}
		for _, other := range models.AllFamilies {
			want := 0
			if other == f {
				want = 1
			}
			if g.Len(other) != want {
				return &models.InvariantError{
					Stage:   "group",
					Message: fmt.Sprintf("record of family %q landed in %q", f, other),
				}
			}
		}
	}
	return nil
}
