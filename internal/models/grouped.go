package models

// GroupedMetrics 按家族分组的记录，每个家族一个有序切片。
// 字段与 Family 一一对应，batch.VerifyGrouping 在启动时校验。
type GroupedMetrics struct {
	HeartRate       []*HeartRateMetric
	BloodPressure   []*BloodPressureMetric
	Sleep           []*SleepMetric
	Activity        []*ActivityMetric
	BodyMeasurement []*BodyMeasurementMetric
	Temperature     []*TemperatureMetric
	BloodGlucose    []*BloodGlucoseMetric
	Metabolic       []*MetabolicMetric
	Respiratory     []*RespiratoryMetric
	Nutrition       []*NutritionMetric
	Workout         []*WorkoutMetric
	Environmental   []*EnvironmentalMetric
	AudioExposure   []*AudioExposureMetric
	SafetyEvent     []*SafetyEventMetric
	Mindfulness     []*MindfulnessMetric
	MentalHealth    []*MentalHealthMetric
	Menstrual       []*MenstrualMetric
	Fertility       []*FertilityMetric
	Symptom         []*SymptomMetric
	Hygiene         []*HygieneMetric
}

// Records 返回某个家族的记录；未知家族返回 nil
func (g *GroupedMetrics) Records(f Family) []Metric {
	switch f {
	case FamilyHeartRate:
		return toMetrics(g.HeartRate)
	case FamilyBloodPressure:
		return toMetrics(g.BloodPressure)
	case FamilySleep:
		return toMetrics(g.Sleep)
	case FamilyActivity:
		return toMetrics(g.Activity)
	case FamilyBodyMeasurement:
		return toMetrics(g.BodyMeasurement)
	case FamilyTemperature:
		return toMetrics(g.Temperature)
	case FamilyBloodGlucose:
		return toMetrics(g.BloodGlucose)
	case FamilyMetabolic:
		return toMetrics(g.Metabolic)
	case FamilyRespiratory:
		return toMetrics(g.Respiratory)
	case FamilyNutrition:
		return toMetrics(g.Nutrition)
	case FamilyWorkout:
		return toMetrics(g.Workout)
	case FamilyEnvironmental:
		return toMetrics(g.Environmental)
	case FamilyAudioExposure:
		return toMetrics(g.AudioExposure)
	case FamilySafetyEvent:
		return toMetrics(g.SafetyEvent)
	case FamilyMindfulness:
		return toMetrics(g.Mindfulness)
	case FamilyMentalHealth:
		return toMetrics(g.MentalHealth)
	case FamilyMenstrual:
		return toMetrics(g.Menstrual)
	case FamilyFertility:
		return toMetrics(g.Fertility)
	case FamilySymptom:
		return toMetrics(g.Symptom)
	case FamilyHygiene:
		return toMetrics(g.Hygiene)
	}
	return nil
}

// Len 某个家族的记录数
func (g *GroupedMetrics) Len(f Family) int {
	return len(g.Records(f))
}

// Total 全部记录数
func (g *GroupedMetrics) Total() int {
	n := 0
	for _, f := range AllFamilies {
		n += g.Len(f)
	}
	return n
}

func toMetrics[T Metric](in []T) []Metric {
	if len(in) == 0 {
		return nil
	}
	out := make([]Metric, len(in))
	for i, m := range in {
		out[i] = m
	}
	return out
}
