package transformer

import (
	"math"
	"strings"
)

const mgDlPerMmolL = 18.0182

func unitKey(units *string) string {
	if units == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*units))
}

// toMgDl 血糖统一为 mg/dL
func toMgDl(v float64, units string) float64 {
	if strings.Contains(units, "mmol") {
		return v * mgDlPerMmolL
	}
	return v
}

// toCelsius 温度统一为摄氏度
func toCelsius(v float64, units string) float64 {
	switch units {
	case "degf", "°f", "f", "fahrenheit":
		return (v - 32) * 5 / 9
	}
	return v
}

// toMeters 距离统一为米，未标注单位时按米处理
func toMeters(v float64, units string) float64 {
	switch units {
	case "km":
		return v * 1000
	case "mi", "mile", "miles":
		return v * 1609.344
	case "yd", "yard", "yards":
		return v * 0.9144
	case "ft":
		return v * 0.3048
	}
	return v
}

// toKcal 能量统一为千卡
func toKcal(v float64, units string) float64 {
	if units == "kj" {
		return v / 4.184
	}
	return v
}

// toKg 质量统一为千克
func toKg(v float64, units string) float64 {
	switch units {
	case "lb", "lbs":
		return v * 0.45359237
	case "g":
		return v / 1000
	case "st":
		return v * 6.35029318
	}
	return v
}

// toCm 长度统一为厘米
func toCm(v float64, units string) float64 {
	switch units {
	case "in":
		return v * 2.54
	case "ft":
		return v * 30.48
	case "m":
		return v * 100
	}
	return v
}

// toMinutes 时长统一为分钟
func toMinutes(v float64, units string) float64 {
	switch units {
	case "hr", "h", "hours":
		return v * 60
	case "s", "sec", "seconds":
		return v / 60
	}
	return v
}

// toMl 液体统一为毫升
func toMl(v float64, units string) float64 {
	switch units {
	case "l":
		return v * 1000
	case "fl_oz_us", "fl oz", "oz":
		return v * 29.5735
	case "cup_us":
		return v * 236.588
	}
	return v
}

// toPercent 0-1 的比例转换为百分比
func toPercent(v float64) float64 {
	if v > 0 && v <= 1 {
		return v * 100
	}
	return v
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
