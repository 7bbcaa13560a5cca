package models

import "strings"

// 心率测量场景
var ActivityContexts = []string{
	"resting", "walking", "running", "cycling", "exercise", "sleeping",
	"sedentary", "active", "post_meal", "stressed", "recovery",
}

// 血糖测量场景
var GlucoseMeasurementContexts = []string{
	"fasting", "pre_meal", "post_meal", "random", "bedtime", "pre_workout", "post_workout",
}

// 胰岛素给药方式
var InsulinDeliveryMethods = []string{"pump", "pen", "syringe", "inhaler", "patch"}

// 餐次
var MealTypes = []string{"breakfast", "lunch", "dinner", "snack"}

// 经期流量
var MenstrualFlows = []string{"none", "light", "medium", "heavy", "unspecified"}

var CervicalMucusQualities = []string{"dry", "sticky", "creamy", "watery", "egg_white"}

var OvulationTestResults = []string{"not_tested", "negative", "positive", "peak", "high"}

var PregnancyTestResults = []string{"not_tested", "negative", "positive", "indeterminate"}

// 症状严重程度
var SymptomSeverities = []string{"none", "mild", "moderate", "severe", "critical"}

// 卫生事件类型
var HygieneEventTypes = []string{"handwashing", "toothbrushing"}

// 安全事件类型
var SafetyEventTypes = []string{"fall_detected", "emergency_sos", "hard_fall", "crash_detected"}

// Normalize 统一枚举值写法：小写、空格和连字符转下划线
func Normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "-", "_")
	return strings.ReplaceAll(v, " ", "_")
}

// InEnum 判断值是否在枚举集合中
func InEnum(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// WorkoutTypeFromSource 将导出文件中的运动名称映射为存储用的运动类型
func WorkoutTypeFromSource(name string) string {
	n := Normalize(name)
	n = strings.TrimPrefix(n, "hkworkoutactivitytype")
	switch {
	case n == "":
		return ""
	case strings.Contains(n, "run"):
		return "running"
	case strings.Contains(n, "walk"):
		return "walking"
	case strings.Contains(n, "cycl"), strings.Contains(n, "bik"):
		return "cycling"
	case strings.Contains(n, "swim"):
		return "swimming"
	case strings.Contains(n, "hik"):
		return "hiking"
	case strings.Contains(n, "yoga"):
		return "yoga"
	case strings.Contains(n, "row"):
		return "rowing"
	case strings.Contains(n, "strength"), strings.Contains(n, "weight"):
		return "strength_training"
	case strings.Contains(n, "hiit"), strings.Contains(n, "high_intensity"):
		return "hiit"
	case strings.Contains(n, "elliptical"):
		return "elliptical"
	case strings.Contains(n, "danc"):
		return "dance"
	case strings.Contains(n, "pilates"):
		return "pilates"
	case strings.Contains(n, "tennis"), strings.Contains(n, "basketball"), strings.Contains(n, "soccer"),
		strings.Contains(n, "football"), strings.Contains(n, "golf"):
		return "sports"
	default:
		return "other"
	}
}
