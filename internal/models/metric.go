package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metric 规范化后的健康记录（20 个家族的封闭联合类型）
// 只有本包内的记录结构体可以实现该接口。
type Metric interface {
	// Kind 记录所属家族
	Kind() Family
	// Common 公共字段
	Common() RecordBase
	// Key 家族唯一键（与存储层 ON CONFLICT 列一致）
	Key() string

	sealed()
}

// RecordBase 所有家族共有的字段
type RecordBase struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	RecordedAt   time.Time `json:"recorded_at"`
	SourceDevice *string   `json:"source_device,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// SourceIndex 生成该记录的数据点在上传中的全局序号（不落库）
	SourceIndex int `json:"-"`
}

func (b RecordBase) Common() RecordBase { return b }

func (RecordBase) sealed() {}

// HasSource source_device 非空
func (b RecordBase) HasSource() bool {
	return b.SourceDevice != nil && strings.TrimSpace(*b.SourceDevice) != ""
}

func keyOf(userID uuid.UUID, at time.Time, extra ...string) string {
	var sb strings.Builder
	sb.WriteString(userID.String())
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(StoredMicros(at), 10))
	for _, e := range extra {
		sb.WriteByte('|')
		sb.WriteString(e)
	}
	return sb.String()
}

// HeartRateMetric 心率
type HeartRateMetric struct {
	RecordBase
	HeartRate               *int     `json:"heart_rate,omitempty"`
	RestingHeartRate        *int     `json:"resting_heart_rate,omitempty"`
	HeartRateVariability    *float64 `json:"heart_rate_variability,omitempty"`
	WalkingHeartRateAverage *int     `json:"walking_heart_rate_average,omitempty"`
	HeartRateRecovery       *int     `json:"heart_rate_recovery_one_minute,omitempty"`
	Context                 *string  `json:"context,omitempty"`
}

func (m *HeartRateMetric) Kind() Family { return FamilyHeartRate }
func (m *HeartRateMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// BloodPressureMetric 血压（由收缩压、舒张压两条流配对生成）
type BloodPressureMetric struct {
	RecordBase
	Systolic  int  `json:"systolic"`
	Diastolic int  `json:"diastolic"`
	Pulse     *int `json:"pulse,omitempty"`

	// DiastolicIndex 舒张压数据点的全局序号
	DiastolicIndex int `json:"-"`
}

func (m *BloodPressureMetric) Kind() Family { return FamilyBloodPressure }
func (m *BloodPressureMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// SleepMetric 睡眠
type SleepMetric struct {
	RecordBase
	SleepStart        time.Time `json:"sleep_start"`
	SleepEnd          time.Time `json:"sleep_end"`
	DurationMinutes   int       `json:"duration_minutes"`
	DeepSleepMinutes  *int      `json:"deep_sleep_minutes,omitempty"`
	RemSleepMinutes   *int      `json:"rem_sleep_minutes,omitempty"`
	LightSleepMinutes *int      `json:"light_sleep_minutes,omitempty"`
	AwakeMinutes      *int      `json:"awake_minutes,omitempty"`
	Efficiency        *float64  `json:"efficiency,omitempty"`
}

func (m *SleepMetric) Kind() Family { return FamilySleep }
func (m *SleepMetric) Key() string {
	return keyOf(m.UserID, m.SleepStart, strconv.FormatInt(StoredMicros(m.SleepEnd), 10))
}

// ActivityMetric 活动
type ActivityMetric struct {
	RecordBase
	StepCount           *int     `json:"step_count,omitempty"`
	DistanceMeters      *float64 `json:"distance_meters,omitempty"`
	ActiveEnergyKcal    *float64 `json:"active_energy_burned_kcal,omitempty"`
	BasalEnergyKcal     *float64 `json:"basal_energy_burned_kcal,omitempty"`
	FlightsClimbed      *int     `json:"flights_climbed,omitempty"`
	ExerciseTimeMinutes *int     `json:"exercise_time_minutes,omitempty"`
	StandTimeMinutes    *int     `json:"stand_time_minutes,omitempty"`
}

func (m *ActivityMetric) Kind() Family { return FamilyActivity }
func (m *ActivityMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// BodyMeasurementMetric 身体测量
type BodyMeasurementMetric struct {
	RecordBase
	BodyWeightKg         *float64 `json:"body_weight_kg,omitempty"`
	BodyMassIndex        *float64 `json:"body_mass_index,omitempty"`
	BodyFatPercentage    *float64 `json:"body_fat_percentage,omitempty"`
	LeanBodyMassKg       *float64 `json:"lean_body_mass_kg,omitempty"`
	HeightCm             *float64 `json:"height_cm,omitempty"`
	WaistCircumferenceCm *float64 `json:"waist_circumference_cm,omitempty"`
}

func (m *BodyMeasurementMetric) Kind() Family { return FamilyBodyMeasurement }
func (m *BodyMeasurementMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// TemperatureMetric 体温/环境水温（摄氏度）
type TemperatureMetric struct {
	RecordBase
	BodyTemperature      *float64 `json:"body_temperature,omitempty"`
	BasalBodyTemperature *float64 `json:"basal_body_temperature,omitempty"`
	WristTemperature     *float64 `json:"apple_sleeping_wrist_temperature,omitempty"`
	WaterTemperature     *float64 `json:"water_temperature,omitempty"`
	TemperatureSource    *string  `json:"temperature_source,omitempty"`
}

func (m *TemperatureMetric) Kind() Family { return FamilyTemperature }
func (m *TemperatureMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// BloodGlucoseMetric 血糖（mg/dL）
type BloodGlucoseMetric struct {
	RecordBase
	BloodGlucoseMgDl     float64  `json:"blood_glucose_mg_dl"`
	MeasurementContext   *string  `json:"measurement_context,omitempty"`
	MedicationTaken      *bool    `json:"medication_taken,omitempty"`
	InsulinDeliveryUnits *float64 `json:"insulin_delivery_units,omitempty"`
	// GlucoseSource 同一时刻多来源区分字段，缺省为 "unknown"
	GlucoseSource string `json:"glucose_source"`
}

func (m *BloodGlucoseMetric) Kind() Family { return FamilyBloodGlucose }
func (m *BloodGlucoseMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt, m.GlucoseSource) }

// MetabolicMetric 代谢
type MetabolicMetric struct {
	RecordBase
	BloodAlcoholContent  *float64 `json:"blood_alcohol_content,omitempty"`
	InsulinDeliveryUnits *float64 `json:"insulin_delivery_units,omitempty"`
	DeliveryMethod       *string  `json:"delivery_method,omitempty"`
}

func (m *MetabolicMetric) Kind() Family { return FamilyMetabolic }
func (m *MetabolicMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// RespiratoryMetric 呼吸
type RespiratoryMetric struct {
	RecordBase
	RespiratoryRate         *float64 `json:"respiratory_rate,omitempty"`
	OxygenSaturation        *float64 `json:"oxygen_saturation,omitempty"`
	ForcedVitalCapacity     *float64 `json:"forced_vital_capacity,omitempty"`
	ForcedExpiratoryVolume1 *float64 `json:"forced_expiratory_volume_1,omitempty"`
	PeakExpiratoryFlowRate  *float64 `json:"peak_expiratory_flow_rate,omitempty"`
	InhalerUsage            *int     `json:"inhaler_usage,omitempty"`
}

func (m *RespiratoryMetric) Kind() Family { return FamilyRespiratory }
func (m *RespiratoryMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// NutritionMetric 营养摄入
type NutritionMetric struct {
	RecordBase
	EnergyKcal     *float64 `json:"dietary_energy_consumed,omitempty"`
	CarbohydratesG *float64 `json:"dietary_carbohydrates,omitempty"`
	ProteinG       *float64 `json:"dietary_protein,omitempty"`
	FatTotalG      *float64 `json:"dietary_fat_total,omitempty"`
	FiberG         *float64 `json:"dietary_fiber,omitempty"`
	SugarG         *float64 `json:"dietary_sugar,omitempty"`
	SodiumMg       *float64 `json:"dietary_sodium,omitempty"`
	CaffeineMg     *float64 `json:"dietary_caffeine,omitempty"`
	WaterMl        *float64 `json:"dietary_water,omitempty"`
	MealType       *string  `json:"meal_type,omitempty"`
}

func (m *NutritionMetric) Kind() Family { return FamilyNutrition }
func (m *NutritionMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// WorkoutMetric 运动（RecordedAt 与 StartedAt 相同）
type WorkoutMetric struct {
	RecordBase
	WorkoutType      string    `json:"workout_type"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	TotalEnergyKcal  *float64  `json:"total_energy_kcal,omitempty"`
	ActiveEnergyKcal *float64  `json:"active_energy_kcal,omitempty"`
	DistanceMeters   *float64  `json:"distance_meters,omitempty"`
	AvgHeartRate     *int      `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int      `json:"max_heart_rate,omitempty"`
	Route            *GPSRoute `json:"route,omitempty"`
}

func (m *WorkoutMetric) Kind() Family { return FamilyWorkout }
func (m *WorkoutMetric) Key() string  { return keyOf(m.UserID, m.StartedAt, m.WorkoutType) }

// Duration 运动时长
func (m *WorkoutMetric) Duration() time.Duration { return m.EndedAt.Sub(m.StartedAt) }

// EnvironmentalMetric 环境
type EnvironmentalMetric struct {
	RecordBase
	UVIndex                   *float64 `json:"uv_index,omitempty"`
	UVExposureMinutes         *int     `json:"uv_exposure_minutes,omitempty"`
	TimeInDaylightMinutes     *int     `json:"time_in_daylight_minutes,omitempty"`
	AmbientTemperatureCelsius *float64 `json:"ambient_temperature_celsius,omitempty"`
	HumidityPercent           *float64 `json:"humidity_percent,omitempty"`
	AirPressureHpa            *float64 `json:"air_pressure_hpa,omitempty"`
	AltitudeMeters            *float64 `json:"altitude_meters,omitempty"`
}

func (m *EnvironmentalMetric) Kind() Family { return FamilyEnvironmental }
func (m *EnvironmentalMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// AudioExposureMetric 噪声暴露（dB）
type AudioExposureMetric struct {
	RecordBase
	EnvironmentalAudioExposureDb *float64 `json:"environmental_audio_exposure_db,omitempty"`
	HeadphoneAudioExposureDb     *float64 `json:"headphone_audio_exposure_db,omitempty"`
	ExposureDurationMinutes      *float64 `json:"exposure_duration_minutes,omitempty"`
	AudioExposureEvent           *bool    `json:"audio_exposure_event,omitempty"`
}

func (m *AudioExposureMetric) Kind() Family { return FamilyAudioExposure }
func (m *AudioExposureMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// SafetyEventMetric 安全事件（摔倒检测、紧急呼叫等）
type SafetyEventMetric struct {
	RecordBase
	EventType                 string   `json:"event_type"`
	SeverityLevel             *int     `json:"severity_level,omitempty"`
	EmergencyContactsNotified *bool    `json:"emergency_contacts_notified,omitempty"`
	LocationLatitude          *float64 `json:"location_latitude,omitempty"`
	LocationLongitude         *float64 `json:"location_longitude,omitempty"`
}

func (m *SafetyEventMetric) Kind() Family { return FamilySafetyEvent }
func (m *SafetyEventMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// MindfulnessMetric 正念
type MindfulnessMetric struct {
	RecordBase
	MeditationType         string   `json:"meditation_type"`
	SessionDurationMinutes *float64 `json:"session_duration_minutes,omitempty"`
	StressLevelBefore      *int     `json:"stress_level_before,omitempty"`
	StressLevelAfter       *int     `json:"stress_level_after,omitempty"`
	FocusRating            *int     `json:"focus_rating,omitempty"`
}

func (m *MindfulnessMetric) Kind() Family { return FamilyMindfulness }
func (m *MindfulnessMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt, m.MeditationType) }

// MentalHealthMetric 心理状态
type MentalHealthMetric struct {
	RecordBase
	StateOfMindValence *float64 `json:"state_of_mind_valence,omitempty"`
	MoodRating         *int     `json:"mood_rating,omitempty"`
	AnxietyLevel       *int     `json:"anxiety_level,omitempty"`
	StressLevel        *int     `json:"stress_level,omitempty"`
	EnergyLevel        *int     `json:"energy_level,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
}

func (m *MentalHealthMetric) Kind() Family { return FamilyMentalHealth }
func (m *MentalHealthMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// MenstrualMetric 经期
type MenstrualMetric struct {
	RecordBase
	MenstrualFlow  string `json:"menstrual_flow"`
	Spotting       bool   `json:"spotting"`
	CycleDay       *int   `json:"cycle_day,omitempty"`
	CrampsSeverity *int   `json:"cramps_severity,omitempty"`
}

func (m *MenstrualMetric) Kind() Family { return FamilyMenstrual }
func (m *MenstrualMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// FertilityMetric 生育追踪
type FertilityMetric struct {
	RecordBase
	CervicalMucusQuality *string  `json:"cervical_mucus_quality,omitempty"`
	OvulationTestResult  *string  `json:"ovulation_test_result,omitempty"`
	PregnancyTestResult  *string  `json:"pregnancy_test_result,omitempty"`
	SexualActivity       *bool    `json:"sexual_activity,omitempty"`
	LHLevel              *float64 `json:"lh_level,omitempty"`
	BasalBodyTemperature *float64 `json:"basal_body_temperature,omitempty"`
}

func (m *FertilityMetric) Kind() Family { return FamilyFertility }
func (m *FertilityMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt) }

// SymptomMetric 症状
type SymptomMetric struct {
	RecordBase
	SymptomType     string  `json:"symptom_type"`
	Severity        string  `json:"severity"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

func (m *SymptomMetric) Kind() Family { return FamilySymptom }
func (m *SymptomMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt, m.SymptomType) }

// HygieneMetric 卫生事件（洗手、刷牙）
type HygieneMetric struct {
	RecordBase
	EventType       string `json:"event_type"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	QualityRating   *int   `json:"quality_rating,omitempty"`
}

func (m *HygieneMetric) Kind() Family { return FamilyHygiene }
func (m *HygieneMetric) Key() string  { return keyOf(m.UserID, m.RecordedAt, m.EventType) }

// NewMetric 按家族构造空记录，switch 覆盖全部家族，未知家族返回 nil
func NewMetric(f Family) Metric {
	switch f {
	case FamilyHeartRate:
		return &HeartRateMetric{}
	case FamilyBloodPressure:
		return &BloodPressureMetric{}
	case FamilySleep:
		return &SleepMetric{}
	case FamilyActivity:
		return &ActivityMetric{}
	case FamilyBodyMeasurement:
		return &BodyMeasurementMetric{}
	case FamilyTemperature:
		return &TemperatureMetric{}
	case FamilyBloodGlucose:
		return &BloodGlucoseMetric{}
	case FamilyMetabolic:
		return &MetabolicMetric{}
	case FamilyRespiratory:
		return &RespiratoryMetric{}
	case FamilyNutrition:
		return &NutritionMetric{}
	case FamilyWorkout:
		return &WorkoutMetric{}
	case FamilyEnvironmental:
		return &EnvironmentalMetric{}
	case FamilyAudioExposure:
		return &AudioExposureMetric{}
	case FamilySafetyEvent:
		return &SafetyEventMetric{}
	case FamilyMindfulness:
		return &MindfulnessMetric{}
	case FamilyMentalHealth:
		return &MentalHealthMetric{}
	case FamilyMenstrual:
		return &MenstrualMetric{}
	case FamilyFertility:
		return &FertilityMetric{}
	case FamilySymptom:
		return &SymptomMetric{}
	case FamilyHygiene:
		return &HygieneMetric{}
	}
	return nil
}
