package transformer

import (
	"fmt"
	"sort"

	"wisefido-health-ingest/internal/models"
)

type bpHalf int

const (
	notPaired bpHalf = iota
	systolicHalf
	diastolicHalf
)

// nameEntry 规范名称表中的一项
type nameEntry struct {
	family models.Family
	mapper fieldMapper
	half   bpHalf
}

const (
	hkQuantity = "HKQuantityTypeIdentifier"
	hkCategory = "HKCategoryTypeIdentifier"
	hkData     = "HKDataTypeIdentifier"
)

// canonicalNames 导出文件中的流名称 -> 家族与字段映射
// 同时收录 HealthKit 长名称和旧版短名称。
var canonicalNames = map[string]nameEntry{}

func register(family models.Family, mapper fieldMapper, names ...string) {
	for _, name := range names {
		if _, dup := canonicalNames[name]; dup {
			panic(fmt.Sprintf("duplicate canonical name %q", name))
		}
		canonicalNames[name] = nameEntry{family: family, mapper: mapper}
	}
}

func registerHalf(half bpHalf, names ...string) {
	for _, name := range names {
		canonicalNames[name] = nameEntry{family: models.FamilyBloodPressure, half: half}
	}
}

func init() {
	// heart rate
	register(models.FamilyHeartRate, mapHeartRate, hkQuantity+"HeartRate", "heart_rate")
	register(models.FamilyHeartRate, mapResting, hkQuantity+"RestingHeartRate", "resting_heart_rate")
	register(models.FamilyHeartRate, mapWalkingHR, hkQuantity+"WalkingHeartRateAverage", "walking_heart_rate")
	register(models.FamilyHeartRate, mapHRV, hkQuantity+"HeartRateVariabilitySDNN", "heart_rate_variability")
	register(models.FamilyHeartRate, mapHRRecover, hkQuantity+"HeartRateRecoveryOneMinute", "heart_rate_recovery")

	// blood pressure
	registerHalf(systolicHalf, hkQuantity+"BloodPressureSystolic", "blood_pressure_systolic")
	registerHalf(diastolicHalf, hkQuantity+"BloodPressureDiastolic", "blood_pressure_diastolic")
	register(models.FamilyBloodPressure, mapBloodPressure, hkData+"BloodPressure", "blood_pressure")

	// sleep
	register(models.FamilySleep, mapSleep, hkCategory+"SleepAnalysis", "sleep_analysis")

	// activity
	register(models.FamilyActivity, mapSteps, hkQuantity+"StepCount", "steps", "step_count")
	register(models.FamilyActivity, mapDistance,
		hkQuantity+"DistanceWalkingRunning", "walking_running_distance",
		hkQuantity+"DistanceCycling", "cycling_distance",
		hkQuantity+"DistanceSwimming", "swimming_distance")
	register(models.FamilyActivity, mapActiveEn, hkQuantity+"ActiveEnergyBurned", "active_energy")
	register(models.FamilyActivity, mapBasalEn, hkQuantity+"BasalEnergyBurned", "basal_energy_burned")
	register(models.FamilyActivity, mapFlights, hkQuantity+"FlightsClimbed", "flights_climbed")
	register(models.FamilyActivity, mapExercise, hkQuantity+"AppleExerciseTime", "apple_exercise_time")
	register(models.FamilyActivity, mapStand, hkQuantity+"AppleStandTime", "apple_stand_time")

	// body measurement
	register(models.FamilyBodyMeasurement, mapBodyMass, hkQuantity+"BodyMass", "weight_body_mass", "body_mass")
	register(models.FamilyBodyMeasurement, mapBMI, hkQuantity+"BodyMassIndex", "body_mass_index")
	register(models.FamilyBodyMeasurement, mapBodyFat, hkQuantity+"BodyFatPercentage", "body_fat_percentage")
	register(models.FamilyBodyMeasurement, mapLeanMass, hkQuantity+"LeanBodyMass", "lean_body_mass")
	register(models.FamilyBodyMeasurement, mapHeight, hkQuantity+"Height", "height")
	register(models.FamilyBodyMeasurement, mapWaist, hkQuantity+"WaistCircumference", "waist_circumference")

	// temperature
	register(models.FamilyTemperature, mapBodyTemp, hkQuantity+"BodyTemperature", "body_temperature")
	register(models.FamilyTemperature, mapBasalTemp, hkQuantity+"BasalBodyTemperature", "basal_body_temperature")
	register(models.FamilyTemperature, mapWristTemp, hkQuantity+"AppleSleepingWristTemperature", "apple_sleeping_wrist_temperature")
	register(models.FamilyTemperature, mapWaterTemp, hkQuantity+"WaterTemperature", "underwater_temperature")

	// blood glucose / metabolic
	register(models.FamilyBloodGlucose, mapBloodGlucose, hkQuantity+"BloodGlucose", "blood_glucose")
	register(models.FamilyMetabolic, mapBloodAlcohol, hkQuantity+"BloodAlcoholContent", "blood_alcohol_content")
	register(models.FamilyMetabolic, mapInsulin, hkQuantity+"InsulinDelivery", "insulin_delivery")

	// respiratory
	register(models.FamilyRespiratory, mapRespRate, hkQuantity+"RespiratoryRate", "respiratory_rate")
	register(models.FamilyRespiratory, mapSpO2, hkQuantity+"OxygenSaturation", "blood_oxygen_saturation", "oxygen_saturation")
	register(models.FamilyRespiratory, mapFVC, hkQuantity+"ForcedVitalCapacity", "forced_vital_capacity")
	register(models.FamilyRespiratory, mapFEV1, hkQuantity+"ForcedExpiratoryVolume1", "forced_expiratory_volume_1")
	register(models.FamilyRespiratory, mapPEF, hkQuantity+"PeakExpiratoryFlowRate", "peak_expiratory_flow_rate")
	register(models.FamilyRespiratory, mapInhaler, hkQuantity+"InhalerUsage", "inhaler_usage")

	// nutrition
	register(models.FamilyNutrition, mapDietEnergy, hkQuantity+"DietaryEnergyConsumed", "dietary_energy")
	register(models.FamilyNutrition, mapDietCarbs, hkQuantity+"DietaryCarbohydrates", "carbohydrates")
	register(models.FamilyNutrition, mapDietProtein, hkQuantity+"DietaryProtein", "protein")
	register(models.FamilyNutrition, mapDietFat, hkQuantity+"DietaryFatTotal", "total_fat")
	register(models.FamilyNutrition, mapDietFiber, hkQuantity+"DietaryFiber", "fiber")
	register(models.FamilyNutrition, mapDietSugar, hkQuantity+"DietarySugar", "dietary_sugar")
	register(models.FamilyNutrition, mapDietSodium, hkQuantity+"DietarySodium", "sodium")
	register(models.FamilyNutrition, mapDietCaff, hkQuantity+"DietaryCaffeine", "caffeine")
	register(models.FamilyNutrition, mapDietWater, hkQuantity+"DietaryWater", "dietary_water")

	// environmental
	register(models.FamilyEnvironmental, mapUVExposure, hkQuantity+"UVExposure", "uv_exposure")
	register(models.FamilyEnvironmental, mapDaylight, hkQuantity+"TimeInDaylight", "time_in_daylight")
	register(models.FamilyEnvironmental, mapAmbientTemp, "ambient_temperature")
	register(models.FamilyEnvironmental, mapAltitude, "altitude")

	// audio exposure
	register(models.FamilyAudioExposure, mapEnvAudio, hkQuantity+"EnvironmentalAudioExposure", "environmental_audio_exposure")
	register(models.FamilyAudioExposure, mapPhoneAudio, hkQuantity+"HeadphoneAudioExposure", "headphone_audio_exposure")
	register(models.FamilyAudioExposure, mapAudioEvent, hkCategory+"AudioExposureEvent", "audio_exposure_event")

	// safety events
	register(models.FamilySafetyEvent, safetyEvent("fall_detected"), hkQuantity+"NumberOfTimesFallen", "number_of_times_fallen")
	register(models.FamilySafetyEvent, safetyEvent("emergency_sos"), "emergency_sos")

	// mindfulness / mental health
	register(models.FamilyMindfulness, mapMindful, hkCategory+"MindfulSession", "mindful_minutes")
	register(models.FamilyMentalHealth, mapStateOfMind, "HKStateOfMind", "state_of_mind")

	// reproductive health
	register(models.FamilyMenstrual, mapMenstrualFlow, hkCategory+"MenstrualFlow", "menstrual_flow")
	register(models.FamilyMenstrual, mapSpotting, hkCategory+"IntermenstrualBleeding", "spotting")
	register(models.FamilyFertility, mapCervicalMucus, hkCategory+"CervicalMucusQuality", "cervical_mucus_quality")
	register(models.FamilyFertility, mapOvulation, hkCategory+"OvulationTestResult", "ovulation_test_result")
	register(models.FamilyFertility, mapPregnancy, hkCategory+"PregnancyTestResult", "pregnancy_test_result")
	register(models.FamilyFertility, mapSexualActivity, hkCategory+"SexualActivity", "sexual_activity")
	register(models.FamilyFertility, mapLH, "luteinizing_hormone")

	// symptoms
	for _, s := range []struct{ hk, short string }{
		{"Headache", "headache"},
		{"Nausea", "nausea"},
		{"Fatigue", "fatigue"},
		{"Fever", "fever"},
		{"Coughing", "coughing"},
		{"Dizziness", "dizziness"},
		{"ShortnessOfBreath", "shortness_of_breath"},
		{"AbdominalCramps", "abdominal_cramps"},
		{"ChestTightnessOrPain", "chest_tightness_or_pain"},
		{"SoreThroat", "sore_throat"},
	} {
		register(models.FamilySymptom, symptom(s.short), hkCategory+s.hk, s.short)
	}
	register(models.FamilySymptom, symptom(""), "symptom")

	// workouts 通常来自 workouts 数组，也接受以流形式上报的运动区间
	register(models.FamilyWorkout, mapWorkoutPoint, "HKWorkoutTypeIdentifier", "workout")

	// hygiene
	register(models.FamilyHygiene, hygiene("handwashing"), hkCategory+"HandwashingEvent", "handwashing")
	register(models.FamilyHygiene, hygiene("toothbrushing"), hkCategory+"ToothbrushingEvent", "toothbrushing")
}

// lookup 查找流名称；disabled 中的名称按未知处理
func lookup(name string, disabled func(string) bool) (nameEntry, bool) {
	if disabled != nil && disabled(name) {
		return nameEntry{}, false
	}
	e, ok := canonicalNames[name]
	return e, ok
}

// CanonicalNames 返回全部已识别的流名称（排序后）
func CanonicalNames() []string {
	names := make([]string, 0, len(canonicalNames))
	for name := range canonicalNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FamilyOf 返回流名称对应的家族
func FamilyOf(name string) (models.Family, bool) {
	e, ok := canonicalNames[name]
	return e.family, ok
}

// VerifyNameTable 启动自检：每个家族至少有一个规范名称，每个名称指向已知家族
func VerifyNameTable() error {
	covered := make(map[models.Family]bool, len(models.AllFamilies))
	for name, e := range canonicalNames {
		if !e.family.Valid() {
			return &models.InvariantError{Stage: "name_table", Message: fmt.Sprintf("name %q maps to unknown family %q", name, e.family)}
		}
		if e.mapper == nil && e.half == notPaired {
			return &models.InvariantError{Stage: "name_table", Message: fmt.Sprintf("name %q has no field mapper", name)}
		}
		covered[e.family] = true
	}
	for _, f := range models.AllFamilies {
		if !covered[f] {
			return &models.InvariantError{Stage: "name_table", Message: fmt.Sprintf("family %q has no canonical name", f)}
		}
	}
	return nil
}
