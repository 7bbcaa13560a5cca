package repository

import (
	"fmt"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
)

// Column 表列定义
type Column struct {
	Name     string
	Nullable bool
	// Key 属于唯一键（ON CONFLICT 目标列）
	Key bool
}

// TableSpec 家族对应的表结构
type TableSpec struct {
	Family  models.Family
	Table   string
	Columns []Column
	values  func(m models.Metric) []any
}

// KeyColumns 唯一键列
func (s *TableSpec) KeyColumns() []string {
	var keys []string
	for _, c := range s.Columns {
		if c.Key {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// Row 按列顺序返回一行参数
func (s *TableSpec) Row(m models.Metric) []any {
	b := m.Common()
	row := make([]any, 0, len(s.Columns))
	row = append(row, b.ID, b.UserID, b.RecordedAt, optString(b.SourceDevice), b.CreatedAt)
	return append(row, s.values(m)...)
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nonNull(name string) Column  { return Column{Name: name} }
func nullable(name string) Column { return Column{Name: name, Nullable: true} }
func keyCol(name string) Column   { return Column{Name: name, Key: true} }

// commonColumns id, user_id, recorded_at, source_device, created_at
func commonColumns(recordedAtKey bool) []Column {
	return []Column{
		nonNull("id"),
		keyCol("user_id"),
		{Name: "recorded_at", Key: recordedAtKey},
		nullable("source_device"),
		nonNull("created_at"),
	}
}

func newSpec(f models.Family, table string, recordedAtKey bool, cols []Column, values func(m models.Metric) []any) *TableSpec {
	return &TableSpec{
		Family:  f,
		Table:   table,
		Columns: append(commonColumns(recordedAtKey), cols...),
		values:  values,
	}
}

var tableSpecs = map[models.Family]*TableSpec{
	models.FamilyHeartRate: newSpec(models.FamilyHeartRate, "heart_rate_metrics", true,
		[]Column{nullable("heart_rate"), nullable("resting_heart_rate"), nullable("heart_rate_variability"),
			nullable("walking_heart_rate_average"), nullable("heart_rate_recovery"), nullable("context")},
		func(m models.Metric) []any {
			r := m.(*models.HeartRateMetric)
			return []any{optInt(r.HeartRate), optInt(r.RestingHeartRate), optFloat(r.HeartRateVariability),
				optInt(r.WalkingHeartRateAverage), optInt(r.HeartRateRecovery), optString(r.Context)}
		}),

	models.FamilyBloodPressure: newSpec(models.FamilyBloodPressure, "blood_pressure_metrics", true,
		[]Column{nonNull("systolic"), nonNull("diastolic"), nullable("pulse")},
		func(m models.Metric) []any {
			r := m.(*models.BloodPressureMetric)
			return []any{int64(r.Systolic), int64(r.Diastolic), optInt(r.Pulse)}
		}),

	models.FamilySleep: newSpec(models.FamilySleep, "sleep_metrics", false,
		[]Column{keyCol("sleep_start"), keyCol("sleep_end"), nonNull("duration_minutes"),
			nullable("deep_sleep_minutes"), nullable("rem_sleep_minutes"), nullable("light_sleep_minutes"),
			nullable("awake_minutes"), nullable("efficiency")},
		func(m models.Metric) []any {
			r := m.(*models.SleepMetric)
			return []any{r.SleepStart, r.SleepEnd, int64(r.DurationMinutes),
				optInt(r.DeepSleepMinutes), optInt(r.RemSleepMinutes), optInt(r.LightSleepMinutes),
				optInt(r.AwakeMinutes), optFloat(r.Efficiency)}
		}),

	models.FamilyActivity: newSpec(models.FamilyActivity, "activity_metrics", true,
		[]Column{nullable("step_count"), nullable("distance_meters"), nullable("active_energy_kcal"),
			nullable("basal_energy_kcal"), nullable("flights_climbed"), nullable("exercise_time_minutes"),
			nullable("stand_time_minutes")},
		func(m models.Metric) []any {
			r := m.(*models.ActivityMetric)
			return []any{optInt(r.StepCount), optFloat(r.DistanceMeters), optFloat(r.ActiveEnergyKcal),
				optFloat(r.BasalEnergyKcal), optInt(r.FlightsClimbed), optInt(r.ExerciseTimeMinutes),
				optInt(r.StandTimeMinutes)}
		}),

	models.FamilyBodyMeasurement: newSpec(models.FamilyBodyMeasurement, "body_measurements", true,
		[]Column{nullable("body_weight_kg"), nullable("body_mass_index"), nullable("body_fat_percentage"),
			nullable("lean_body_mass_kg"), nullable("height_cm"), nullable("waist_circumference_cm")},
		func(m models.Metric) []any {
			r := m.(*models.BodyMeasurementMetric)
			return []any{optFloat(r.BodyWeightKg), optFloat(r.BodyMassIndex), optFloat(r.BodyFatPercentage),
				optFloat(r.LeanBodyMassKg), optFloat(r.HeightCm), optFloat(r.WaistCircumferenceCm)}
		}),

	models.FamilyTemperature: newSpec(models.FamilyTemperature, "temperature_metrics", true,
		[]Column{nullable("body_temperature"), nullable("basal_body_temperature"), nullable("apple_sleeping_wrist_temperature"),
			nullable("water_temperature"), nullable("temperature_source")},
		func(m models.Metric) []any {
			r := m.(*models.TemperatureMetric)
			return []any{optFloat(r.BodyTemperature), optFloat(r.BasalBodyTemperature), optFloat(r.WristTemperature),
				optFloat(r.WaterTemperature), optString(r.TemperatureSource)}
		}),

	models.FamilyBloodGlucose: newSpec(models.FamilyBloodGlucose, "blood_glucose_metrics", true,
		[]Column{nonNull("blood_glucose_mg_dl"), nullable("measurement_context"), nullable("medication_taken"),
			nullable("insulin_delivery_units"), keyCol("glucose_source")},
		func(m models.Metric) []any {
			r := m.(*models.BloodGlucoseMetric)
			return []any{r.BloodGlucoseMgDl, optString(r.MeasurementContext), optBool(r.MedicationTaken),
				optFloat(r.InsulinDeliveryUnits), r.GlucoseSource}
		}),

	models.FamilyMetabolic: newSpec(models.FamilyMetabolic, "metabolic_metrics", true,
		[]Column{nullable("blood_alcohol_content"), nullable("insulin_delivery_units"), nullable("delivery_method")},
		func(m models.Metric) []any {
			r := m.(*models.MetabolicMetric)
			return []any{optFloat(r.BloodAlcoholContent), optFloat(r.InsulinDeliveryUnits), optString(r.DeliveryMethod)}
		}),

	models.FamilyRespiratory: newSpec(models.FamilyRespiratory, "respiratory_metrics", true,
		[]Column{nullable("respiratory_rate"), nullable("oxygen_saturation"), nullable("forced_vital_capacity"),
			nullable("forced_expiratory_volume_1"), nullable("peak_expiratory_flow_rate"), nullable("inhaler_usage")},
		func(m models.Metric) []any {
			r := m.(*models.RespiratoryMetric)
			return []any{optFloat(r.RespiratoryRate), optFloat(r.OxygenSaturation), optFloat(r.ForcedVitalCapacity),
				optFloat(r.ForcedExpiratoryVolume1), optFloat(r.PeakExpiratoryFlowRate), optInt(r.InhalerUsage)}
		}),

	models.FamilyNutrition: newSpec(models.FamilyNutrition, "nutrition_metrics", true,
		[]Column{nullable("dietary_energy_consumed"), nullable("dietary_carbohydrates"), nullable("dietary_protein"),
			nullable("dietary_fat_total"), nullable("dietary_fiber"), nullable("dietary_sugar"),
			nullable("dietary_sodium"), nullable("dietary_caffeine"), nullable("dietary_water"), nullable("meal_type")},
		func(m models.Metric) []any {
			r := m.(*models.NutritionMetric)
			return []any{optFloat(r.EnergyKcal), optFloat(r.CarbohydratesG), optFloat(r.ProteinG),
				optFloat(r.FatTotalG), optFloat(r.FiberG), optFloat(r.SugarG),
				optFloat(r.SodiumMg), optFloat(r.CaffeineMg), optFloat(r.WaterMl), optString(r.MealType)}
		}),

	models.FamilyWorkout: newSpec(models.FamilyWorkout, "workouts", false,
		[]Column{keyCol("workout_type"), keyCol("started_at"), nonNull("ended_at"),
			nullable("total_energy_kcal"), nullable("active_energy_kcal"), nullable("distance_meters"),
			nullable("avg_heart_rate"), nullable("max_heart_rate"), nullable("route_points")},
		func(m models.Metric) []any {
			r := m.(*models.WorkoutMetric)
			var route any
			if raw := r.Route.Raw(); raw != nil {
				route = string(raw)
			}
			return []any{r.WorkoutType, r.StartedAt, r.EndedAt,
				optFloat(r.TotalEnergyKcal), optFloat(r.ActiveEnergyKcal), optFloat(r.DistanceMeters),
				optInt(r.AvgHeartRate), optInt(r.MaxHeartRate), route}
		}),

	models.FamilyEnvironmental: newSpec(models.FamilyEnvironmental, "environmental_metrics", true,
		[]Column{nullable("uv_index"), nullable("uv_exposure_minutes"), nullable("time_in_daylight_minutes"),
			nullable("ambient_temperature_celsius"), nullable("humidity_percent"), nullable("air_pressure_hpa"),
			nullable("altitude_meters")},
		func(m models.Metric) []any {
			r := m.(*models.EnvironmentalMetric)
			return []any{optFloat(r.UVIndex), optInt(r.UVExposureMinutes), optInt(r.TimeInDaylightMinutes),
				optFloat(r.AmbientTemperatureCelsius), optFloat(r.HumidityPercent), optFloat(r.AirPressureHpa),
				optFloat(r.AltitudeMeters)}
		}),

	models.FamilyAudioExposure: newSpec(models.FamilyAudioExposure, "audio_exposure_metrics", true,
		[]Column{nullable("environmental_audio_exposure_db"), nullable("headphone_audio_exposure_db"),
			nullable("exposure_duration_minutes"), nullable("audio_exposure_event")},
		func(m models.Metric) []any {
			r := m.(*models.AudioExposureMetric)
			return []any{optFloat(r.EnvironmentalAudioExposureDb), optFloat(r.HeadphoneAudioExposureDb),
				optFloat(r.ExposureDurationMinutes), optBool(r.AudioExposureEvent)}
		}),

	models.FamilySafetyEvent: newSpec(models.FamilySafetyEvent, "safety_event_metrics", true,
		[]Column{nonNull("event_type"), nullable("severity_level"), nullable("emergency_contacts_notified"),
			nullable("location_latitude"), nullable("location_longitude")},
		func(m models.Metric) []any {
			r := m.(*models.SafetyEventMetric)
			return []any{r.EventType, optInt(r.SeverityLevel), optBool(r.EmergencyContactsNotified),
				optFloat(r.LocationLatitude), optFloat(r.LocationLongitude)}
		}),

	models.FamilyMindfulness: newSpec(models.FamilyMindfulness, "mindfulness_metrics", true,
		[]Column{keyCol("meditation_type"), nullable("session_duration_minutes"), nullable("stress_level_before"),
			nullable("stress_level_after"), nullable("focus_rating")},
		func(m models.Metric) []any {
			r := m.(*models.MindfulnessMetric)
			return []any{r.MeditationType, optFloat(r.SessionDurationMinutes), optInt(r.StressLevelBefore),
				optInt(r.StressLevelAfter), optInt(r.FocusRating)}
		}),

	models.FamilyMentalHealth: newSpec(models.FamilyMentalHealth, "mental_health_metrics", true,
		[]Column{nullable("state_of_mind_valence"), nullable("mood_rating"), nullable("anxiety_level"),
			nullable("stress_level"), nullable("energy_level"), nullable("notes")},
		func(m models.Metric) []any {
			r := m.(*models.MentalHealthMetric)
			return []any{optFloat(r.StateOfMindValence), optInt(r.MoodRating), optInt(r.AnxietyLevel),
				optInt(r.StressLevel), optInt(r.EnergyLevel), optString(r.Notes)}
		}),

	models.FamilyMenstrual: newSpec(models.FamilyMenstrual, "menstrual_health", true,
		[]Column{nonNull("menstrual_flow"), nonNull("spotting"), nullable("cycle_day"), nullable("cramps_severity")},
		func(m models.Metric) []any {
			r := m.(*models.MenstrualMetric)
			return []any{r.MenstrualFlow, r.Spotting, optInt(r.CycleDay), optInt(r.CrampsSeverity)}
		}),

	models.FamilyFertility: newSpec(models.FamilyFertility, "fertility_tracking", true,
		[]Column{nullable("cervical_mucus_quality"), nullable("ovulation_test_result"), nullable("pregnancy_test_result"),
			nullable("sexual_activity"), nullable("lh_level"), nullable("basal_body_temperature")},
		func(m models.Metric) []any {
			r := m.(*models.FertilityMetric)
			return []any{optString(r.CervicalMucusQuality), optString(r.OvulationTestResult), optString(r.PregnancyTestResult),
				optBool(r.SexualActivity), optFloat(r.LHLevel), optFloat(r.BasalBodyTemperature)}
		}),

	models.FamilySymptom: newSpec(models.FamilySymptom, "symptoms", true,
		[]Column{keyCol("symptom_type"), nonNull("severity"), nullable("duration_minutes"), nullable("notes")},
		func(m models.Metric) []any {
			r := m.(*models.SymptomMetric)
			return []any{r.SymptomType, r.Severity, optInt(r.DurationMinutes), optString(r.Notes)}
		}),

	models.FamilyHygiene: newSpec(models.FamilyHygiene, "hygiene_events", true,
		[]Column{keyCol("event_type"), nullable("duration_seconds"), nullable("quality_rating")},
		func(m models.Metric) []any {
			r := m.(*models.HygieneMetric)
			return []any{r.EventType, optInt(r.DurationSeconds), optInt(r.QualityRating)}
		}),
}

// SpecFor 返回家族的表结构
func SpecFor(f models.Family) (*TableSpec, bool) {
	s, ok := tableSpecs[f]
	return s, ok
}

// ChunkSize 家族的单批行数
func ChunkSize(cfg *config.IngestConfig, f models.Family) int {
	s, ok := tableSpecs[f]
	if !ok {
		return 0
	}
	return cfg.ChunkSizeFor(f, len(s.Columns))
}

// VerifyChunkSizes 启动自检：每个家族都有表结构，且按参数上限推导出的批大小不小于 1
func VerifyChunkSizes(cfg *config.IngestConfig) error {
	for _, f := range models.AllFamilies {
		s, ok := tableSpecs[f]
		if !ok {
			return &models.InvariantError{Stage: "writer", Message: fmt.Sprintf("family %q has no table spec", f)}
		}
		if got := len(s.Row(models.NewMetric(f))); got != len(s.Columns) {
			return &models.InvariantError{
				Stage:   "writer",
				Message: fmt.Sprintf("table %s has %d columns but rows carry %d values", s.Table, len(s.Columns), got),
			}
		}
		if ChunkSize(cfg, f) < 1 {
			return fmt.Errorf("%w: %s with %d columns exceeds %d parameters per statement",
				config.ErrInvalidConfig, f, len(s.Columns), cfg.SafeParams())
		}
	}
	return nil
}
