package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"wisefido-health-ingest/internal/models"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid ingest config")

// ValidationConfig 各家族的数值范围和容差
type ValidationConfig struct {
	HeartRateMin int     `koanf:"heart_rate_min"`
	HeartRateMax int     `koanf:"heart_rate_max"`
	HRVMaxMs     float64 `koanf:"hrv_max_ms"`

	SystolicMin  int `koanf:"systolic_min"`
	SystolicMax  int `koanf:"systolic_max"`
	DiastolicMin int `koanf:"diastolic_min"`
	DiastolicMax int `koanf:"diastolic_max"`

	SleepToleranceMinutes int `koanf:"sleep_tolerance_minutes"`

	StepCountMax      int     `koanf:"step_count_max"`
	DistanceMaxKm     float64 `koanf:"distance_max_km"`
	CaloriesMax       float64 `koanf:"calories_max"`
	FlightsClimbedMax int     `koanf:"flights_climbed_max"`

	WorkoutHeartRateMin int     `koanf:"workout_heart_rate_min"`
	WorkoutHeartRateMax int     `koanf:"workout_heart_rate_max"`
	WorkoutMaxHours     float64 `koanf:"workout_max_hours"`

	LatitudeMin  float64 `koanf:"latitude_min"`
	LatitudeMax  float64 `koanf:"latitude_max"`
	LongitudeMin float64 `koanf:"longitude_min"`
	LongitudeMax float64 `koanf:"longitude_max"`

	BodyWeightMinKg   float64 `koanf:"body_weight_min_kg"`
	BodyWeightMaxKg   float64 `koanf:"body_weight_max_kg"`
	BMIMin            float64 `koanf:"bmi_min"`
	BMIMax            float64 `koanf:"bmi_max"`
	BodyFatMinPercent float64 `koanf:"body_fat_min_percent"`
	BodyFatMaxPercent float64 `koanf:"body_fat_max_percent"`
	HeightMinCm       float64 `koanf:"height_min_cm"`
	HeightMaxCm       float64 `koanf:"height_max_cm"`

	BodyTemperatureMin  float64 `koanf:"body_temperature_min"`
	BodyTemperatureMax  float64 `koanf:"body_temperature_max"`
	BasalTemperatureMin float64 `koanf:"basal_temperature_min"`
	BasalTemperatureMax float64 `koanf:"basal_temperature_max"`
	WristTemperatureMin float64 `koanf:"wrist_temperature_min"`
	WristTemperatureMax float64 `koanf:"wrist_temperature_max"`
	WaterTemperatureMin float64 `koanf:"water_temperature_min"`
	WaterTemperatureMax float64 `koanf:"water_temperature_max"`
	FeverThreshold      float64 `koanf:"fever_threshold"`

	GlucoseMin          float64 `koanf:"glucose_min"`
	GlucoseMax          float64 `koanf:"glucose_max"`
	GlucoseCriticalLow  float64 `koanf:"glucose_critical_low"`
	GlucoseCriticalHigh float64 `koanf:"glucose_critical_high"`
	InsulinMaxUnits     float64 `koanf:"insulin_max_units"`
	BloodAlcoholMax     float64 `koanf:"blood_alcohol_max"`

	RespiratoryRateMin   float64 `koanf:"respiratory_rate_min"`
	RespiratoryRateMax   float64 `koanf:"respiratory_rate_max"`
	OxygenSaturationMin  float64 `koanf:"oxygen_saturation_min"`
	OxygenSaturationMax  float64 `koanf:"oxygen_saturation_max"`
	OxygenSaturationCrit float64 `koanf:"oxygen_saturation_critical"`
	InhalerUsageMax      int     `koanf:"inhaler_usage_max"`
	PeakFlowMax          float64 `koanf:"peak_flow_max"`

	WaterIntakeMaxMl float64 `koanf:"water_intake_max_ml"`

	UVIndexMax         float64 `koanf:"uv_index_max"`
	AirPressureMinHpa  float64 `koanf:"air_pressure_min_hpa"`
	AirPressureMaxHpa  float64 `koanf:"air_pressure_max_hpa"`
	AudioExposureMaxDb float64 `koanf:"audio_exposure_max_db"`

	MenstrualCycleDayMin int     `koanf:"menstrual_cycle_day_min"`
	MenstrualCycleDayMax int     `koanf:"menstrual_cycle_day_max"`
	CrampsSeverityMax    int     `koanf:"cramps_severity_max"`
	LHLevelMax           float64 `koanf:"lh_level_max"`

	MindfulnessMaxMinutes float64 `koanf:"mindfulness_max_minutes"`
	HygieneMaxSeconds     int     `koanf:"hygiene_max_seconds"`
}

// DefaultValidationConfig 默认校验范围
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		HeartRateMin: 15,
		HeartRateMax: 300,
		HRVMaxMs:     500,

		SystolicMin:  50,
		SystolicMax:  250,
		DiastolicMin: 30,
		DiastolicMax: 150,

		SleepToleranceMinutes: 60,

		StepCountMax:      200000,
		DistanceMaxKm:     500,
		CaloriesMax:       20000,
		FlightsClimbedMax: 10000,

		WorkoutHeartRateMin: 15,
		WorkoutHeartRateMax: 300,
		WorkoutMaxHours:     24,

		LatitudeMin:  -90,
		LatitudeMax:  90,
		LongitudeMin: -180,
		LongitudeMax: 180,

		BodyWeightMinKg:   20,
		BodyWeightMaxKg:   500,
		BMIMin:            10,
		BMIMax:            60,
		BodyFatMinPercent: 3,
		BodyFatMaxPercent: 50,
		HeightMinCm:       50,
		HeightMaxCm:       250,

		BodyTemperatureMin:  30,
		BodyTemperatureMax:  45,
		BasalTemperatureMin: 35,
		BasalTemperatureMax: 39,
		WristTemperatureMin: 30,
		WristTemperatureMax: 45,
		WaterTemperatureMin: 0,
		WaterTemperatureMax: 100,
		FeverThreshold:      38,

		GlucoseMin:          30,
		GlucoseMax:          600,
		GlucoseCriticalLow:  70,
		GlucoseCriticalHigh: 400,
		InsulinMaxUnits:     100,
		BloodAlcoholMax:     0.5,

		RespiratoryRateMin:   5,
		RespiratoryRateMax:   60,
		OxygenSaturationMin:  70,
		OxygenSaturationMax:  100,
		OxygenSaturationCrit: 90,
		InhalerUsageMax:      50,
		PeakFlowMax:          800,

		WaterIntakeMaxMl: 20000,

		UVIndexMax:         20,
		AirPressureMinHpa:  800,
		AirPressureMaxHpa:  1100,
		AudioExposureMaxDb: 140,

		MenstrualCycleDayMin: 1,
		MenstrualCycleDayMax: 45,
		CrampsSeverityMax:    10,
		LHLevelMax:           100,

		MindfulnessMaxMinutes: 1440,
		HygieneMaxSeconds:     3600,
	}
}

// Validate 检查范围上下限是否自洽
func (v *ValidationConfig) Validate() error {
	pairs := []struct {
		name     string
		min, max float64
	}{
		{"heart_rate", float64(v.HeartRateMin), float64(v.HeartRateMax)},
		{"systolic", float64(v.SystolicMin), float64(v.SystolicMax)},
		{"diastolic", float64(v.DiastolicMin), float64(v.DiastolicMax)},
		{"workout_heart_rate", float64(v.WorkoutHeartRateMin), float64(v.WorkoutHeartRateMax)},
		{"latitude", v.LatitudeMin, v.LatitudeMax},
		{"longitude", v.LongitudeMin, v.LongitudeMax},
		{"body_weight", v.BodyWeightMinKg, v.BodyWeightMaxKg},
		{"bmi", v.BMIMin, v.BMIMax},
		{"body_fat", v.BodyFatMinPercent, v.BodyFatMaxPercent},
		{"height", v.HeightMinCm, v.HeightMaxCm},
		{"body_temperature", v.BodyTemperatureMin, v.BodyTemperatureMax},
		{"basal_temperature", v.BasalTemperatureMin, v.BasalTemperatureMax},
		{"wrist_temperature", v.WristTemperatureMin, v.WristTemperatureMax},
		{"water_temperature", v.WaterTemperatureMin, v.WaterTemperatureMax},
		{"glucose", v.GlucoseMin, v.GlucoseMax},
		{"respiratory_rate", v.RespiratoryRateMin, v.RespiratoryRateMax},
		{"oxygen_saturation", v.OxygenSaturationMin, v.OxygenSaturationMax},
		{"air_pressure", v.AirPressureMinHpa, v.AirPressureMaxHpa},
		{"menstrual_cycle_day", float64(v.MenstrualCycleDayMin), float64(v.MenstrualCycleDayMax)},
	}
	for _, p := range pairs {
		if p.min > p.max {
			return fmt.Errorf("%w: validation.%s min %v exceeds max %v", ErrInvalidConfig, p.name, p.min, p.max)
		}
	}
	if v.SleepToleranceMinutes < 0 {
		return fmt.Errorf("%w: validation.sleep_tolerance_minutes must not be negative", ErrInvalidConfig)
	}
	if v.WorkoutMaxHours <= 0 {
		return fmt.Errorf("%w: validation.workout_max_hours must be positive", ErrInvalidConfig)
	}
	return nil
}

// IngestConfig 摄取流水线配置，进程启动时加载一次，之后只读
type IngestConfig struct {
	Validation ValidationConfig `koanf:"validation"`

	// ChunkSize 每个家族期望的单批行数，0 或缺省表示只受参数上限约束
	ChunkSize    map[models.Family]int `koanf:"chunk_size"`
	ParamCeiling int                   `koanf:"param_ceiling"`
	ParamSafety  float64               `koanf:"param_safety"`

	MaxParallelFamilies int   `koanf:"max_parallel_families"`
	SyncThreshold       int   `koanf:"sync_threshold"`
	SyncByteThreshold   int64 `koanf:"sync_byte_threshold"`
	MaxPayloadBytes     int64 `koanf:"max_payload_bytes"` // 0 表示不限制

	RetryOnStorageError bool `koanf:"retry_on_storage_error"`
	StorageErrorMaxLen  int  `koanf:"storage_error_max_len"`

	ProgressEveryChunks int           `koanf:"progress_every_chunks"`
	ProgressInterval    time.Duration `koanf:"progress_interval"`

	// DisabledNames 部署时不接收的流名称，按未知名称处理
	DisabledNames []string `koanf:"disabled_names"`
}

// DefaultIngestConfig 默认配置
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Validation:          DefaultValidationConfig(),
		ChunkSize:           map[models.Family]int{},
		ParamCeiling:        65535,
		ParamSafety:         0.8,
		MaxParallelFamilies: 5,
		SyncThreshold:       10000,
		SyncByteThreshold:   10 << 20,
		MaxPayloadBytes:     200 << 20,
		RetryOnStorageError: true,
		StorageErrorMaxLen:  256,
		ProgressEveryChunks: 10,
		ProgressInterval:    5 * time.Second,
	}
}

// SafeParams 单条语句可用的参数个数 ⌊PARAM_CEILING × SAFETY⌋
func (c *IngestConfig) SafeParams() int {
	return int(math.Floor(float64(c.ParamCeiling)*c.ParamSafety + 1e-9))
}

// ChunkSizeFor 计算家族的单批行数：min(chunk_size[f], ⌊safe_params / columns⌋)
func (c *IngestConfig) ChunkSizeFor(f models.Family, columns int) int {
	if columns <= 0 {
		return 0
	}
	derived := c.SafeParams() / columns
	if want, ok := c.ChunkSize[f]; ok && want > 0 && want < derived {
		return want
	}
	return derived
}

// IsNameDisabled 流名称是否被部署配置禁用
func (c *IngestConfig) IsNameDisabled(name string) bool {
	for _, n := range c.DisabledNames {
		if n == name {
			return true
		}
	}
	return false
}

// Validate 校验配置
func (c *IngestConfig) Validate() error {
	if c.ParamCeiling <= 0 {
		return fmt.Errorf("%w: param_ceiling must be positive", ErrInvalidConfig)
	}
	if c.ParamSafety <= 0 || c.ParamSafety > 1 {
		return fmt.Errorf("%w: param_safety must be in (0, 1], got %v", ErrInvalidConfig, c.ParamSafety)
	}
	if c.MaxParallelFamilies < 1 {
		return fmt.Errorf("%w: max_parallel_families must be at least 1", ErrInvalidConfig)
	}
	if c.SyncThreshold < 0 || c.SyncByteThreshold < 0 {
		return fmt.Errorf("%w: sync thresholds must not be negative", ErrInvalidConfig)
	}
	if c.StorageErrorMaxLen <= 0 {
		return fmt.Errorf("%w: storage_error_max_len must be positive", ErrInvalidConfig)
	}
	for f, size := range c.ChunkSize {
		if !f.Valid() {
			return fmt.Errorf("%w: chunk_size has unknown family %q", ErrInvalidConfig, f)
		}
		if size < 0 {
			return fmt.Errorf("%w: chunk_size.%s must not be negative", ErrInvalidConfig, f)
		}
	}
	return c.Validation.Validate()
}
