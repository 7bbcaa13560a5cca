package validator

import (
	"fmt"
	"math"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/models"
)

func heartRate(cfg *config.ValidationConfig, r *models.HeartRateMetric) error {
	if n := models.PopulatedOptionalFields(r); n == 0 || (n == 1 && r.Context != nil) {
		return required("heart_rate")
	}
	lo, hi := cfg.HeartRateMin, cfg.HeartRateMax
	return first(
		optIntRange("heart_rate", r.HeartRate, lo, hi),
		optIntRange("resting_heart_rate", r.RestingHeartRate, lo, hi),
		optIntRange("walking_heart_rate_average", r.WalkingHeartRateAverage, lo, hi),
		optRange("heart_rate_variability", r.HeartRateVariability, 0, cfg.HRVMaxMs),
		optIntRange("heart_rate_recovery", r.HeartRateRecovery, 0, hi),
		optEnum("context", r.Context, models.ActivityContexts),
	)
}

func bloodPressure(cfg *config.ValidationConfig, r *models.BloodPressureMetric) error {
	if err := first(
		inRange("systolic", float64(r.Systolic), float64(cfg.SystolicMin), float64(cfg.SystolicMax)),
		inRange("diastolic", float64(r.Diastolic), float64(cfg.DiastolicMin), float64(cfg.DiastolicMax)),
		optIntRange("pulse", r.Pulse, cfg.HeartRateMin, cfg.HeartRateMax),
	); err != nil {
		return err
	}
	if r.Systolic <= r.Diastolic {
		return newErr(models.KindCrossFieldInvalid, "systolic", "systolic %d must exceed diastolic %d", r.Systolic, r.Diastolic)
	}
	return nil
}

func sleep(cfg *config.ValidationConfig, r *models.SleepMetric) error {
	if !r.SleepEnd.After(r.SleepStart) {
		return temporal("sleep_end", "sleep_end must be after sleep_start")
	}
	tol := float64(cfg.SleepToleranceMinutes)
	span := r.SleepEnd.Sub(r.SleepStart).Minutes()
	if math.Abs(float64(r.DurationMinutes)-span) > tol {
		return newErr(models.KindCrossFieldInvalid, "duration_minutes",
			"duration %d min differs from sleep window %.0f min by more than %v", r.DurationMinutes, span, tol)
	}

	for _, c := range []struct {
		field string
		v     *int
	}{
		{"deep_sleep_minutes", r.DeepSleepMinutes},
		{"rem_sleep_minutes", r.RemSleepMinutes},
		{"light_sleep_minutes", r.LightSleepMinutes},
		{"awake_minutes", r.AwakeMinutes},
	} {
		if c.v != nil && *c.v < 0 {
			return newErr(models.KindOutOfRange, c.field, "%s must not be negative", c.field)
		}
	}
	components := 0
	for _, v := range []*int{r.DeepSleepMinutes, r.RemSleepMinutes, r.AwakeMinutes} {
		if v != nil {
			components += *v
		}
	}
	if float64(components) > float64(r.DurationMinutes)+tol {
		return newErr(models.KindCrossFieldInvalid, "duration_minutes",
			"sleep components %d min exceed duration %d min", components, r.DurationMinutes)
	}
	return optRange("efficiency", r.Efficiency, 0, 100)
}

func activity(cfg *config.ValidationConfig, r *models.ActivityMetric) error {
	if models.PopulatedOptionalFields(r) == 0 {
		return required("activity")
	}
	return first(
		optIntRange("step_count", r.StepCount, 0, cfg.StepCountMax),
		optRange("distance_meters", r.DistanceMeters, 0, cfg.DistanceMaxKm*1000),
		optRange("active_energy_kcal", r.ActiveEnergyKcal, 0, cfg.CaloriesMax),
		optRange("basal_energy_kcal", r.BasalEnergyKcal, 0, cfg.CaloriesMax),
		optIntRange("flights_climbed", r.FlightsClimbed, 0, cfg.FlightsClimbedMax),
		optIntRange("exercise_time_minutes", r.ExerciseTimeMinutes, 0, 1440),
		optIntRange("stand_time_minutes", r.StandTimeMinutes, 0, 1440),
	)
}

func bodyMeasurement(cfg *config.ValidationConfig, r *models.BodyMeasurementMetric) error {
	if models.PopulatedOptionalFields(r) == 0 {
		return required("body_measurement")
	}
	return first(
		optRange("body_weight_kg", r.BodyWeightKg, cfg.BodyWeightMinKg, cfg.BodyWeightMaxKg),
		optRange("body_mass_index", r.BodyMassIndex, cfg.BMIMin, cfg.BMIMax),
		optRange("body_fat_percentage", r.BodyFatPercentage, cfg.BodyFatMinPercent, cfg.BodyFatMaxPercent),
		optRange("lean_body_mass_kg", r.LeanBodyMassKg, 0, cfg.BodyWeightMaxKg),
		optRange("height_cm", r.HeightCm, cfg.HeightMinCm, cfg.HeightMaxCm),
		optRange("waist_circumference_cm", r.WaistCircumferenceCm, 0, cfg.HeightMaxCm),
	)
}

func temperature(cfg *config.ValidationConfig, r *models.TemperatureMetric) error {
	if r.BodyTemperature == nil && r.BasalBodyTemperature == nil && r.WristTemperature == nil && r.WaterTemperature == nil {
		return required("temperature")
	}
	return first(
		optRange("body_temperature", r.BodyTemperature, cfg.BodyTemperatureMin, cfg.BodyTemperatureMax),
		optRange("basal_body_temperature", r.BasalBodyTemperature, cfg.BasalTemperatureMin, cfg.BasalTemperatureMax),
		optRange("wrist_temperature", r.WristTemperature, cfg.WristTemperatureMin, cfg.WristTemperatureMax),
		optRange("water_temperature", r.WaterTemperature, cfg.WaterTemperatureMin, cfg.WaterTemperatureMax),
	)
}

func bloodGlucose(cfg *config.ValidationConfig, r *models.BloodGlucoseMetric) error {
	if r.GlucoseSource == "" {
		return required("glucose_source")
	}
	return first(
		inRange("blood_glucose_mg_dl", r.BloodGlucoseMgDl, cfg.GlucoseMin, cfg.GlucoseMax),
		optRange("insulin_delivery_units", r.InsulinDeliveryUnits, 0, cfg.InsulinMaxUnits),
		optEnum("measurement_context", r.MeasurementContext, models.GlucoseMeasurementContexts),
	)
}

func metabolic(cfg *config.ValidationConfig, r *models.MetabolicMetric) error {
	if r.BloodAlcoholContent == nil && r.InsulinDeliveryUnits == nil {
		return required("metabolic")
	}
	return first(
		optRange("blood_alcohol_content", r.BloodAlcoholContent, 0, cfg.BloodAlcoholMax),
		optRange("insulin_delivery_units", r.InsulinDeliveryUnits, 0, cfg.InsulinMaxUnits),
		optEnum("delivery_method", r.DeliveryMethod, models.InsulinDeliveryMethods),
	)
}

func respiratory(cfg *config.ValidationConfig, r *models.RespiratoryMetric) error {
	if models.PopulatedOptionalFields(r) == 0 {
		return required("respiratory")
	}
	return first(
		optRange("respiratory_rate", r.RespiratoryRate, cfg.RespiratoryRateMin, cfg.RespiratoryRateMax),
		optRange("oxygen_saturation", r.OxygenSaturation, cfg.OxygenSaturationMin, cfg.OxygenSaturationMax),
		optRange("forced_vital_capacity", r.ForcedVitalCapacity, 1, 8),
		optRange("forced_expiratory_volume_1", r.ForcedExpiratoryVolume1, 0.5, 6),
		optRange("peak_expiratory_flow_rate", r.PeakExpiratoryFlowRate, 50, cfg.PeakFlowMax),
		optIntRange("inhaler_usage", r.InhalerUsage, 0, cfg.InhalerUsageMax),
	)
}

func nutrition(cfg *config.ValidationConfig, r *models.NutritionMetric) error {
	nonNeg := func(field string, v *float64) error { return optRange(field, v, 0, math.MaxFloat64) }
	if n := models.PopulatedOptionalFields(r); n == 0 || (n == 1 && r.MealType != nil) {
		return required("nutrition")
	}
	return first(
		optRange("energy_kcal", r.EnergyKcal, 0, cfg.CaloriesMax),
		nonNeg("carbohydrates_g", r.CarbohydratesG),
		nonNeg("protein_g", r.ProteinG),
		nonNeg("fat_total_g", r.FatTotalG),
		nonNeg("fiber_g", r.FiberG),
		nonNeg("sugar_g", r.SugarG),
		nonNeg("sodium_mg", r.SodiumMg),
		nonNeg("caffeine_mg", r.CaffeineMg),
		optRange("water_ml", r.WaterMl, 0, cfg.WaterIntakeMaxMl),
		optEnum("meal_type", r.MealType, models.MealTypes),
	)
}

func workout(cfg *config.ValidationConfig, r *models.WorkoutMetric) error {
	if r.WorkoutType == "" {
		return required("workout_type")
	}
	if !r.EndedAt.After(r.StartedAt) {
		return temporal("ended_at", "ended_at must be after started_at")
	}
	if hours := r.Duration().Hours(); hours > cfg.WorkoutMaxHours {
		return temporal("ended_at", fmt.Sprintf("workout lasts %.1f h, limit %v h", hours, cfg.WorkoutMaxHours))
	}
	if err := first(
		optRange("total_energy_kcal", r.TotalEnergyKcal, 0, cfg.CaloriesMax),
		optRange("active_energy_kcal", r.ActiveEnergyKcal, 0, cfg.CaloriesMax),
		optRange("distance_meters", r.DistanceMeters, 0, cfg.DistanceMaxKm*1000),
		optIntRange("avg_heart_rate", r.AvgHeartRate, cfg.WorkoutHeartRateMin, cfg.WorkoutHeartRateMax),
		optIntRange("max_heart_rate", r.MaxHeartRate, cfg.WorkoutHeartRateMin, cfg.WorkoutHeartRateMax),
	); err != nil {
		return err
	}
	return route(cfg, r)
}

// route 逐点检查轨迹，不一次性解码整个数组
func route(cfg *config.ValidationConfig, r *models.WorkoutMetric) error {
	i := 0
	for p, err := range r.Route.Points() {
		if err != nil {
			return newErr(models.KindCrossFieldInvalid, "route", "%v", err)
		}
		if err := first(
			inRange("route.latitude", p.Latitude, cfg.LatitudeMin, cfg.LatitudeMax),
			inRange("route.longitude", p.Longitude, cfg.LongitudeMin, cfg.LongitudeMax),
		); err != nil {
			return err
		}
		if p.Timestamp.Before(r.StartedAt) || p.Timestamp.After(r.EndedAt) {
			return temporal("route.timestamp", fmt.Sprintf("route point %d is outside the workout window", i))
		}
		i++
	}
	return nil
}

func environmental(cfg *config.ValidationConfig, r *models.EnvironmentalMetric) error {
	if models.PopulatedOptionalFields(r) == 0 {
		return required("environmental")
	}
	return first(
		optRange("uv_index", r.UVIndex, 0, cfg.UVIndexMax),
		optIntRange("uv_exposure_minutes", r.UVExposureMinutes, 0, 1440),
		optIntRange("time_in_daylight_minutes", r.TimeInDaylightMinutes, 0, 1440),
		optRange("ambient_temperature_celsius", r.AmbientTemperatureCelsius, -90, 60),
		optRange("humidity_percent", r.HumidityPercent, 0, 100),
		optRange("air_pressure_hpa", r.AirPressureHpa, cfg.AirPressureMinHpa, cfg.AirPressureMaxHpa),
		optRange("altitude_meters", r.AltitudeMeters, -500, 9000),
	)
}

func audioExposure(cfg *config.ValidationConfig, r *models.AudioExposureMetric) error {
	if r.EnvironmentalAudioExposureDb == nil && r.HeadphoneAudioExposureDb == nil && r.AudioExposureEvent == nil {
		return required("audio_exposure")
	}
	return first(
		optRange("environmental_audio_exposure_db", r.EnvironmentalAudioExposureDb, 0, cfg.AudioExposureMaxDb),
		optRange("headphone_audio_exposure_db", r.HeadphoneAudioExposureDb, 0, cfg.AudioExposureMaxDb),
		optRange("exposure_duration_minutes", r.ExposureDurationMinutes, 0, 1440),
	)
}

func safetyEvent(cfg *config.ValidationConfig, r *models.SafetyEventMetric) error {
	return first(
		enum("event_type", r.EventType, models.SafetyEventTypes),
		optIntRange("severity_level", r.SeverityLevel, 1, 5),
		optRange("location_latitude", r.LocationLatitude, cfg.LatitudeMin, cfg.LatitudeMax),
		optRange("location_longitude", r.LocationLongitude, cfg.LongitudeMin, cfg.LongitudeMax),
	)
}

func mindfulness(cfg *config.ValidationConfig, r *models.MindfulnessMetric) error {
	if r.MeditationType == "" {
		return required("meditation_type")
	}
	if r.SessionDurationMinutes != nil && *r.SessionDurationMinutes <= 0 {
		return newErr(models.KindOutOfRange, "session_duration_minutes", "session_duration_minutes must be positive")
	}
	return first(
		optRange("session_duration_minutes", r.SessionDurationMinutes, 0, cfg.MindfulnessMaxMinutes),
		optIntRange("stress_level_before", r.StressLevelBefore, 1, 10),
		optIntRange("stress_level_after", r.StressLevelAfter, 1, 10),
		optIntRange("focus_rating", r.FocusRating, 1, 10),
	)
}

func mentalHealth(r *models.MentalHealthMetric) error {
	return first(
		optRange("state_of_mind_valence", r.StateOfMindValence, -1, 1),
		optIntRange("mood_rating", r.MoodRating, 1, 10),
		optIntRange("anxiety_level", r.AnxietyLevel, 1, 10),
		optIntRange("stress_level", r.StressLevel, 1, 10),
		optIntRange("energy_level", r.EnergyLevel, 1, 10),
	)
}

func menstrual(cfg *config.ValidationConfig, r *models.MenstrualMetric) error {
	return first(
		enum("menstrual_flow", r.MenstrualFlow, models.MenstrualFlows),
		optIntRange("cycle_day", r.CycleDay, cfg.MenstrualCycleDayMin, cfg.MenstrualCycleDayMax),
		optIntRange("cramps_severity", r.CrampsSeverity, 0, cfg.CrampsSeverityMax),
	)
}

func fertility(cfg *config.ValidationConfig, r *models.FertilityMetric) error {
	if models.PopulatedOptionalFields(r) == 0 {
		return required("fertility")
	}
	return first(
		optEnum("cervical_mucus_quality", r.CervicalMucusQuality, models.CervicalMucusQualities),
		optEnum("ovulation_test_result", r.OvulationTestResult, models.OvulationTestResults),
		optEnum("pregnancy_test_result", r.PregnancyTestResult, models.PregnancyTestResults),
		optRange("lh_level", r.LHLevel, 0, cfg.LHLevelMax),
		optRange("basal_body_temperature", r.BasalBodyTemperature, cfg.BasalTemperatureMin, cfg.BasalTemperatureMax),
	)
}

func symptom(r *models.SymptomMetric) error {
	if r.SymptomType == "" {
		return required("symptom_type")
	}
	return first(
		enum("severity", r.Severity, models.SymptomSeverities),
		optIntRange("duration_minutes", r.DurationMinutes, 0, math.MaxInt32),
	)
}

func hygiene(cfg *config.ValidationConfig, r *models.HygieneMetric) error {
	return first(
		enum("event_type", r.EventType, models.HygieneEventTypes),
		optIntRange("duration_seconds", r.DurationSeconds, 0, cfg.HygieneMaxSeconds),
		optIntRange("quality_rating", r.QualityRating, 1, 5),
	)
}
