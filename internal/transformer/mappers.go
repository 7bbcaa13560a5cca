package transformer

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"wisefido-health-ingest/internal/models"
)

// pointContext 字段映射的输入：一个数据点及其公共字段
type pointContext struct {
	name  string
	point *models.DataPoint
	units string
	base  models.RecordBase
}

// fieldMapper 从数据点提取家族字段
type fieldMapper func(pc *pointContext) (models.Metric, error)

// mapError 单个数据点无法转换
type mapError struct {
	kind   models.ErrorKind
	reason string
}

func (e *mapError) Error() string { return e.reason }

func missing(field string) *mapError {
	return &mapError{kind: models.KindMissingRequired, reason: fmt.Sprintf("%s is required", field)}
}

func unparseable(field, value string) *mapError {
	return &mapError{kind: models.KindParseError, reason: fmt.Sprintf("cannot parse %s %q", field, value)}
}

// qty 读取数值，qty 缺失时依次尝试 Extra 中的备选键（如心率的 Avg）
func (pc *pointContext) qty(fallbacks ...string) (float64, error) {
	if pc.point.Qty != nil {
		return *pc.point.Qty, nil
	}
	for _, key := range fallbacks {
		if v, ok := pc.point.ExtraNumber(key); ok {
			return *v, nil
		}
	}
	return 0, missing("qty")
}

func (pc *pointContext) value() string {
	if pc.point.Value == nil {
		return ""
	}
	return *pc.point.Value
}

func (pc *pointContext) extraString(key string) *string {
	if v, ok := pc.point.ExtraString(key); ok && v != "" {
		return &v
	}
	return nil
}

func (pc *pointContext) extraNumber(key string) *float64 {
	v, _ := pc.point.ExtraNumber(key)
	return v
}

// interval 数据点的 start/end 区间
func (pc *pointContext) interval() (time.Time, time.Time, error) {
	if pc.point.Start == nil {
		return time.Time{}, time.Time{}, missing("start")
	}
	if pc.point.End == nil {
		return time.Time{}, time.Time{}, missing("end")
	}
	start, err := models.ParseTimestamp(*pc.point.Start)
	if err != nil {
		return time.Time{}, time.Time{}, unparseable("start", *pc.point.Start)
	}
	end, err := models.ParseTimestamp(*pc.point.End)
	if err != nil {
		return time.Time{}, time.Time{}, unparseable("end", *pc.point.End)
	}
	return start, end, nil
}

func ptr[T any](v T) *T { return &v }

func intPtr(v float64) *int { return ptr(roundInt(v)) }

// snake CamelCase -> snake_case
func snake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return models.Normalize(sb.String())
}

// categoryValue 去掉 HealthKit 分类值前缀，例如
// HKCategoryValueSeverityModerate -> moderate
func categoryValue(v, prefix string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "HKCategoryValue")
	v = strings.TrimPrefix(v, prefix)
	if v == "" {
		return ""
	}
	if strings.ContainsAny(v, " _-") || strings.ToLower(v) == v {
		return models.Normalize(v)
	}
	return snake(v)
}

// ---- heart rate ----

func heartRateField(set func(m *models.HeartRateMetric, v float64), fallbacks ...string) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty(fallbacks...)
		if err != nil {
			return nil, err
		}
		m := &models.HeartRateMetric{RecordBase: pc.base}
		set(m, v)
		if c := pc.extraString("context"); c != nil {
			m.Context = ptr(models.Normalize(*c))
		}
		return m, nil
	}
}

var (
	mapHeartRate = heartRateField(func(m *models.HeartRateMetric, v float64) { m.HeartRate = intPtr(v) }, "Avg", "avg")
	mapResting   = heartRateField(func(m *models.HeartRateMetric, v float64) { m.RestingHeartRate = intPtr(v) })
	mapWalkingHR = heartRateField(func(m *models.HeartRateMetric, v float64) { m.WalkingHeartRateAverage = intPtr(v) })
	mapHRV       = heartRateField(func(m *models.HeartRateMetric, v float64) { m.HeartRateVariability = ptr(v) })
	mapHRRecover = heartRateField(func(m *models.HeartRateMetric, v float64) { m.HeartRateRecovery = intPtr(v) })
)

// ---- blood pressure (combined stream) ----

func mapBloodPressure(pc *pointContext) (models.Metric, error) {
	sys := pc.extraNumber("systolic")
	dia := pc.extraNumber("diastolic")
	if sys == nil {
		return nil, missing("systolic")
	}
	if dia == nil {
		return nil, missing("diastolic")
	}
	m := &models.BloodPressureMetric{
		RecordBase:     pc.base,
		Systolic:       roundInt(*sys),
		Diastolic:      roundInt(*dia),
		DiastolicIndex: pc.base.SourceIndex,
	}
	if pulse := pc.extraNumber("pulse"); pulse != nil {
		m.Pulse = intPtr(*pulse)
	}
	return m, nil
}

// ---- sleep ----

var sleepStageFields = map[string]string{
	"deep":   "deep",
	"rem":    "rem",
	"core":   "light",
	"light":  "light",
	"asleep": "light",
	"awake":  "awake",
}

func mapSleep(pc *pointContext) (models.Metric, error) {
	start, end, err := sleepBounds(pc)
	if err != nil {
		return nil, err
	}
	m := &models.SleepMetric{
		RecordBase:      pc.base,
		SleepStart:      start,
		SleepEnd:        end,
		DurationMinutes: roundInt(end.Sub(start).Minutes()),
	}

	// 汇总格式：deep/rem/core/awake 以小时为单位
	stageUnits := pc.units
	if stageUnits == "" {
		stageUnits = "hr"
	}
	stage := func(key string) *int {
		if v := pc.extraNumber(key); v != nil {
			return intPtr(toMinutes(*v, stageUnits))
		}
		return nil
	}
	m.DeepSleepMinutes = stage("deep")
	m.RemSleepMinutes = stage("rem")
	m.LightSleepMinutes = stage("core")
	if m.LightSleepMinutes == nil {
		m.LightSleepMinutes = stage("light")
	}
	m.AwakeMinutes = stage("awake")

	// 单阶段格式：value 为阶段名称，区间即该阶段时长
	if v := categoryValue(pc.value(), "SleepAnalysis"); v != "" {
		v = strings.TrimPrefix(v, "asleep_")
		switch sleepStageFields[v] {
		case "deep":
			m.DeepSleepMinutes = ptr(m.DurationMinutes)
		case "rem":
			m.RemSleepMinutes = ptr(m.DurationMinutes)
		case "light":
			m.LightSleepMinutes = ptr(m.DurationMinutes)
		case "awake":
			m.AwakeMinutes = ptr(m.DurationMinutes)
		}
	}

	if eff := pc.extraNumber("efficiency"); eff != nil {
		m.Efficiency = ptr(toPercent(*eff))
	} else if m.DurationMinutes > 0 {
		asleep := 0
		known := false
		for _, p := range []*int{m.DeepSleepMinutes, m.RemSleepMinutes, m.LightSleepMinutes} {
			if p != nil {
				asleep += *p
				known = true
			}
		}
		if total := pc.extraNumber("totalSleep"); total != nil {
			asleep = roundInt(toMinutes(*total, stageUnits))
			known = true
		}
		if known {
			eff := math.Min(100, float64(asleep)/float64(m.DurationMinutes)*100)
			m.Efficiency = ptr(math.Round(eff*100) / 100)
		}
	}
	return m, nil
}

func sleepBounds(pc *pointContext) (time.Time, time.Time, error) {
	if pc.point.Start != nil && pc.point.End != nil {
		return pc.interval()
	}
	for _, pair := range [][2]string{{"sleepStart", "sleepEnd"}, {"inBedStart", "inBedEnd"}} {
		s, okS := pc.point.ExtraString(pair[0])
		e, okE := pc.point.ExtraString(pair[1])
		if !okS || !okE {
			continue
		}
		start, err := models.ParseTimestamp(s)
		if err != nil {
			return time.Time{}, time.Time{}, unparseable(pair[0], s)
		}
		end, err := models.ParseTimestamp(e)
		if err != nil {
			return time.Time{}, time.Time{}, unparseable(pair[1], e)
		}
		return start, end, nil
	}
	return time.Time{}, time.Time{}, missing("sleep start/end")
}

// ---- activity ----

func activityField(set func(m *models.ActivityMetric, v float64, units string)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty()
		if err != nil {
			return nil, err
		}
		m := &models.ActivityMetric{RecordBase: pc.base}
		set(m, v, pc.units)
		return m, nil
	}
}

var (
	mapSteps    = activityField(func(m *models.ActivityMetric, v float64, _ string) { m.StepCount = intPtr(v) })
	mapDistance = activityField(func(m *models.ActivityMetric, v float64, u string) { m.DistanceMeters = ptr(toMeters(v, u)) })
	mapActiveEn = activityField(func(m *models.ActivityMetric, v float64, u string) { m.ActiveEnergyKcal = ptr(toKcal(v, u)) })
	mapBasalEn  = activityField(func(m *models.ActivityMetric, v float64, u string) { m.BasalEnergyKcal = ptr(toKcal(v, u)) })
	mapFlights  = activityField(func(m *models.ActivityMetric, v float64, _ string) { m.FlightsClimbed = intPtr(v) })
	mapExercise = activityField(func(m *models.ActivityMetric, v float64, u string) { m.ExerciseTimeMinutes = intPtr(toMinutes(v, u)) })
	mapStand    = activityField(func(m *models.ActivityMetric, v float64, u string) { m.StandTimeMinutes = intPtr(toMinutes(v, u)) })
)

// ---- body measurement ----

func bodyField(set func(m *models.BodyMeasurementMetric, v float64, units string)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty()
		if err != nil {
			return nil, err
		}
		m := &models.BodyMeasurementMetric{RecordBase: pc.base}
		set(m, v, pc.units)
		return m, nil
	}
}

var (
	mapBodyMass = bodyField(func(m *models.BodyMeasurementMetric, v float64, u string) { m.BodyWeightKg = ptr(toKg(v, u)) })
	mapBMI      = bodyField(func(m *models.BodyMeasurementMetric, v float64, _ string) { m.BodyMassIndex = ptr(v) })
	mapBodyFat  = bodyField(func(m *models.BodyMeasurementMetric, v float64, _ string) { m.BodyFatPercentage = ptr(toPercent(v)) })
	mapLeanMass = bodyField(func(m *models.BodyMeasurementMetric, v float64, u string) { m.LeanBodyMassKg = ptr(toKg(v, u)) })
	mapHeight   = bodyField(func(m *models.BodyMeasurementMetric, v float64, u string) { m.HeightCm = ptr(toCm(v, u)) })
	mapWaist    = bodyField(func(m *models.BodyMeasurementMetric, v float64, u string) { m.WaistCircumferenceCm = ptr(toCm(v, u)) })
)

// ---- temperature ----

func temperatureField(source string, set func(m *models.TemperatureMetric, v float64)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty()
		if err != nil {
			return nil, err
		}
		m := &models.TemperatureMetric{RecordBase: pc.base, TemperatureSource: ptr(source)}
		set(m, toCelsius(v, pc.units))
		return m, nil
	}
}

var (
	mapBodyTemp  = temperatureField("body", func(m *models.TemperatureMetric, v float64) { m.BodyTemperature = ptr(v) })
	mapBasalTemp = temperatureField("basal", func(m *models.TemperatureMetric, v float64) { m.BasalBodyTemperature = ptr(v) })
	mapWristTemp = temperatureField("wrist", func(m *models.TemperatureMetric, v float64) { m.WristTemperature = ptr(v) })
	mapWaterTemp = temperatureField("water", func(m *models.TemperatureMetric, v float64) { m.WaterTemperature = ptr(v) })
)

// ---- blood glucose / metabolic ----

func mapBloodGlucose(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	m := &models.BloodGlucoseMetric{
		RecordBase:       pc.base,
		BloodGlucoseMgDl: toMgDl(v, pc.units),
		GlucoseSource:    "unknown",
	}
	if pc.base.HasSource() {
		m.GlucoseSource = *pc.base.SourceDevice
	}
	if c := pc.extraString("context"); c != nil {
		m.MeasurementContext = ptr(models.Normalize(*c))
	}
	if raw, ok := pc.point.Extra["medication_taken"]; ok {
		taken := string(raw) == "true"
		m.MedicationTaken = &taken
	}
	m.InsulinDeliveryUnits = pc.extraNumber("insulin_units")
	return m, nil
}

func mapBloodAlcohol(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	// 导出值为百分比时转为比例
	if pc.units == "%" {
		v = v / 100
	}
	return &models.MetabolicMetric{RecordBase: pc.base, BloodAlcoholContent: ptr(v)}, nil
}

func mapInsulin(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	m := &models.MetabolicMetric{RecordBase: pc.base, InsulinDeliveryUnits: ptr(v)}
	if method := pc.extraString("delivery_method"); method != nil {
		m.DeliveryMethod = ptr(models.Normalize(*method))
	}
	return m, nil
}

// ---- respiratory ----

func respiratoryField(set func(m *models.RespiratoryMetric, v float64, units string)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty()
		if err != nil {
			return nil, err
		}
		m := &models.RespiratoryMetric{RecordBase: pc.base}
		set(m, v, pc.units)
		return m, nil
	}
}

var (
	mapRespRate = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.RespiratoryRate = ptr(v) })
	mapSpO2     = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.OxygenSaturation = ptr(toPercent(v)) })
	mapFVC      = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.ForcedVitalCapacity = ptr(v) })
	mapFEV1     = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.ForcedExpiratoryVolume1 = ptr(v) })
	mapPEF      = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.PeakExpiratoryFlowRate = ptr(v) })
	mapInhaler  = respiratoryField(func(m *models.RespiratoryMetric, v float64, _ string) { m.InhalerUsage = intPtr(v) })
)

// ---- nutrition ----

func nutritionField(set func(m *models.NutritionMetric, v float64, units string)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty()
		if err != nil {
			return nil, err
		}
		m := &models.NutritionMetric{RecordBase: pc.base}
		set(m, v, pc.units)
		if meal := pc.extraString("meal_type"); meal != nil {
			m.MealType = ptr(models.Normalize(*meal))
		}
		return m, nil
	}
}

func toMg(v float64, units string) float64 {
	switch units {
	case "g":
		return v * 1000
	case "mcg", "µg":
		return v / 1000
	}
	return v
}

var (
	mapDietEnergy  = nutritionField(func(m *models.NutritionMetric, v float64, u string) { m.EnergyKcal = ptr(toKcal(v, u)) })
	mapDietCarbs   = nutritionField(func(m *models.NutritionMetric, v float64, _ string) { m.CarbohydratesG = ptr(v) })
	mapDietProtein = nutritionField(func(m *models.NutritionMetric, v float64, _ string) { m.ProteinG = ptr(v) })
	mapDietFat     = nutritionField(func(m *models.NutritionMetric, v float64, _ string) { m.FatTotalG = ptr(v) })
	mapDietFiber   = nutritionField(func(m *models.NutritionMetric, v float64, _ string) { m.FiberG = ptr(v) })
	mapDietSugar   = nutritionField(func(m *models.NutritionMetric, v float64, _ string) { m.SugarG = ptr(v) })
	mapDietSodium  = nutritionField(func(m *models.NutritionMetric, v float64, u string) { m.SodiumMg = ptr(toMg(v, u)) })
	mapDietCaff    = nutritionField(func(m *models.NutritionMetric, v float64, u string) { m.CaffeineMg = ptr(toMg(v, u)) })
	mapDietWater   = nutritionField(func(m *models.NutritionMetric, v float64, u string) { m.WaterMl = ptr(toMl(v, u)) })
)

// ---- environmental / audio ----

func mapUVExposure(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	m := &models.EnvironmentalMetric{RecordBase: pc.base}
	if pc.units == "min" {
		m.UVExposureMinutes = intPtr(v)
	} else {
		m.UVIndex = ptr(v)
	}
	return m, nil
}

func mapDaylight(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	return &models.EnvironmentalMetric{RecordBase: pc.base, TimeInDaylightMinutes: intPtr(toMinutes(v, pc.units))}, nil
}

func mapAmbientTemp(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	m := &models.EnvironmentalMetric{RecordBase: pc.base, AmbientTemperatureCelsius: ptr(toCelsius(v, pc.units))}
	m.HumidityPercent = pc.extraNumber("humidity")
	m.AirPressureHpa = pc.extraNumber("pressure")
	return m, nil
}

func mapAltitude(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	return &models.EnvironmentalMetric{RecordBase: pc.base, AltitudeMeters: ptr(toMeters(v, pc.units))}, nil
}

func audioField(set func(m *models.AudioExposureMetric, v float64)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v, err := pc.qty("Avg", "avg")
		if err != nil {
			return nil, err
		}
		m := &models.AudioExposureMetric{RecordBase: pc.base}
		set(m, v)
		if pc.point.Start != nil && pc.point.End != nil {
			if start, end, err := pc.interval(); err == nil && end.After(start) {
				m.ExposureDurationMinutes = ptr(end.Sub(start).Minutes())
			}
		}
		return m, nil
	}
}

var (
	mapEnvAudio   = audioField(func(m *models.AudioExposureMetric, v float64) { m.EnvironmentalAudioExposureDb = ptr(v) })
	mapPhoneAudio = audioField(func(m *models.AudioExposureMetric, v float64) { m.HeadphoneAudioExposureDb = ptr(v) })
)

func mapAudioEvent(pc *pointContext) (models.Metric, error) {
	m := &models.AudioExposureMetric{RecordBase: pc.base, AudioExposureEvent: ptr(true)}
	if v, err := pc.qty(); err == nil {
		m.EnvironmentalAudioExposureDb = ptr(v)
	}
	return m, nil
}

// ---- safety ----

func safetyEvent(eventType string) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		m := &models.SafetyEventMetric{RecordBase: pc.base, EventType: eventType}
		if sev := pc.extraNumber("severity"); sev != nil {
			m.SeverityLevel = intPtr(*sev)
		}
		if raw, ok := pc.point.Extra["emergency_contacts_notified"]; ok {
			notified := string(raw) == "true"
			m.EmergencyContactsNotified = &notified
		}
		m.LocationLatitude = pc.extraNumber("latitude")
		m.LocationLongitude = pc.extraNumber("longitude")
		return m, nil
	}
}

// ---- mindfulness / mental health ----

func mapMindful(pc *pointContext) (models.Metric, error) {
	m := &models.MindfulnessMetric{RecordBase: pc.base, MeditationType: "mindfulness"}
	if t := pc.extraString("meditation_type"); t != nil {
		m.MeditationType = models.Normalize(*t)
	}
	if pc.point.Qty != nil {
		m.SessionDurationMinutes = ptr(toMinutes(*pc.point.Qty, pc.units))
	} else if pc.point.Start != nil && pc.point.End != nil {
		start, end, err := pc.interval()
		if err != nil {
			return nil, err
		}
		m.SessionDurationMinutes = ptr(end.Sub(start).Minutes())
	} else {
		return nil, missing("qty or start/end")
	}
	if v := pc.extraNumber("stress_before"); v != nil {
		m.StressLevelBefore = intPtr(*v)
	}
	if v := pc.extraNumber("stress_after"); v != nil {
		m.StressLevelAfter = intPtr(*v)
	}
	if v := pc.extraNumber("focus_rating"); v != nil {
		m.FocusRating = intPtr(*v)
	}
	return m, nil
}

func mapStateOfMind(pc *pointContext) (models.Metric, error) {
	m := &models.MentalHealthMetric{RecordBase: pc.base}
	if v, err := pc.qty("valence"); err == nil {
		m.StateOfMindValence = ptr(v)
	}
	for key, dst := range map[string]**int{
		"mood_rating":   &m.MoodRating,
		"anxiety_level": &m.AnxietyLevel,
		"stress_level":  &m.StressLevel,
		"energy_level":  &m.EnergyLevel,
	} {
		if v := pc.extraNumber(key); v != nil {
			*dst = intPtr(*v)
		}
	}
	m.Notes = pc.extraString("notes")
	if models.PopulatedOptionalFields(m) == 0 {
		return nil, missing("valence or rating")
	}
	return m, nil
}

// ---- reproductive health ----

func mapMenstrualFlow(pc *pointContext) (models.Metric, error) {
	flow := categoryValue(pc.value(), "MenstrualFlow")
	if flow == "" {
		flow = "unspecified"
	}
	m := &models.MenstrualMetric{RecordBase: pc.base, MenstrualFlow: flow}
	if v := pc.extraNumber("cycle_day"); v != nil {
		m.CycleDay = intPtr(*v)
	}
	if v := pc.extraNumber("cramps_severity"); v != nil {
		m.CrampsSeverity = intPtr(*v)
	}
	return m, nil
}

func mapSpotting(pc *pointContext) (models.Metric, error) {
	return &models.MenstrualMetric{RecordBase: pc.base, MenstrualFlow: "none", Spotting: true}, nil
}

var ovulationAliases = map[string]string{
	"luteinizing_hormone_surge": "positive",
	"estrogen_surge":            "high",
	"indeterminate":             "not_tested",
}

func fertilityCategory(prefix string, set func(m *models.FertilityMetric, v string)) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		v := categoryValue(pc.value(), prefix)
		if v == "" {
			return nil, missing("value")
		}
		if alias, ok := ovulationAliases[v]; ok && prefix == "OvulationTestResult" {
			v = alias
		}
		m := &models.FertilityMetric{RecordBase: pc.base}
		set(m, v)
		return m, nil
	}
}

var (
	mapCervicalMucus = fertilityCategory("CervicalMucusQuality", func(m *models.FertilityMetric, v string) { m.CervicalMucusQuality = ptr(v) })
	mapOvulation     = fertilityCategory("OvulationTestResult", func(m *models.FertilityMetric, v string) { m.OvulationTestResult = ptr(v) })
	mapPregnancy     = fertilityCategory("PregnancyTestResult", func(m *models.FertilityMetric, v string) { m.PregnancyTestResult = ptr(v) })
)

func mapSexualActivity(pc *pointContext) (models.Metric, error) {
	return &models.FertilityMetric{RecordBase: pc.base, SexualActivity: ptr(true)}, nil
}

func mapLH(pc *pointContext) (models.Metric, error) {
	v, err := pc.qty()
	if err != nil {
		return nil, err
	}
	return &models.FertilityMetric{RecordBase: pc.base, LHLevel: ptr(v)}, nil
}

// ---- symptoms ----

var symptomSeverityAliases = map[string]string{
	"not_present": "none",
	"present":     "mild",
	"unspecified": "mild",
}

func symptom(symptomType string) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		st := symptomType
		if st == "" {
			t := pc.extraString("symptom_type")
			if t == nil {
				return nil, missing("symptom_type")
			}
			st = models.Normalize(*t)
		}
		sev := categoryValue(pc.value(), "Severity")
		if alias, ok := symptomSeverityAliases[sev]; ok {
			sev = alias
		}
		if sev == "" {
			sev = "mild"
		}
		m := &models.SymptomMetric{RecordBase: pc.base, SymptomType: st, Severity: sev}
		if pc.point.Start != nil && pc.point.End != nil {
			start, end, err := pc.interval()
			if err != nil {
				return nil, err
			}
			m.DurationMinutes = ptr(roundInt(end.Sub(start).Minutes()))
		}
		m.Notes = pc.extraString("notes")
		return m, nil
	}
}

// ---- hygiene ----

func hygiene(eventType string) fieldMapper {
	return func(pc *pointContext) (models.Metric, error) {
		m := &models.HygieneMetric{RecordBase: pc.base, EventType: eventType}
		if pc.point.Qty != nil {
			m.DurationSeconds = intPtr(*pc.point.Qty)
		} else if pc.point.Start != nil && pc.point.End != nil {
			start, end, err := pc.interval()
			if err != nil {
				return nil, err
			}
			m.DurationSeconds = ptr(roundInt(end.Sub(start).Seconds()))
		}
		if v := pc.extraNumber("quality_rating"); v != nil {
			m.QualityRating = intPtr(*v)
		}
		return m, nil
	}
}
