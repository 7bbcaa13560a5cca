package models

// Family 指标家族（也作为 metric_kind 在诊断和监控中使用）
type Family string

const (
	FamilyHeartRate       Family = "heart_rate"
	FamilyBloodPressure   Family = "blood_pressure"
	FamilySleep           Family = "sleep"
	FamilyActivity        Family = "activity"
	FamilyBodyMeasurement Family = "body_measurement"
	FamilyTemperature     Family = "temperature"
	FamilyBloodGlucose    Family = "blood_glucose"
	FamilyMetabolic       Family = "metabolic"
	FamilyRespiratory     Family = "respiratory"
	FamilyNutrition       Family = "nutrition"
	FamilyWorkout         Family = "workout"
	FamilyEnvironmental   Family = "environmental"
	FamilyAudioExposure   Family = "audio_exposure"
	FamilySafetyEvent     Family = "safety_event"
	FamilyMindfulness     Family = "mindfulness"
	FamilyMentalHealth    Family = "mental_health"
	FamilyMenstrual       Family = "menstrual"
	FamilyFertility       Family = "fertility"
	FamilySymptom         Family = "symptom"
	FamilyHygiene         Family = "hygiene"
)

// AllFamilies 全部家族，顺序即报告和写入调度的顺序
var AllFamilies = []Family{
	FamilyHeartRate,
	FamilyBloodPressure,
	FamilySleep,
	FamilyActivity,
	FamilyBodyMeasurement,
	FamilyTemperature,
	FamilyBloodGlucose,
	FamilyMetabolic,
	FamilyRespiratory,
	FamilyNutrition,
	FamilyWorkout,
	FamilyEnvironmental,
	FamilyAudioExposure,
	FamilySafetyEvent,
	FamilyMindfulness,
	FamilyMentalHealth,
	FamilyMenstrual,
	FamilyFertility,
	FamilySymptom,
	FamilyHygiene,
}

func (f Family) String() string { return string(f) }

// Valid 是否为已知家族
func (f Family) Valid() bool {
	for _, known := range AllFamilies {
		if f == known {
			return true
		}
	}
	return false
}
