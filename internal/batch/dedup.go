package batch

import (
	"wisefido-health-ingest/internal/models"
)

// Deduplicate 按家族唯一键去重，返回去重后的分组和每个家族丢弃的条数
// 输出顺序为每个键首次出现的顺序；胜出记录的空字段用落选记录补齐。
func Deduplicate(g *models.GroupedMetrics) (*models.GroupedMetrics, map[models.Family]int) {
	dropped := make(map[models.Family]int)
	out := &models.GroupedMetrics{
		HeartRate:       dedupFamily(g.HeartRate, dropped),
		BloodPressure:   dedupFamily(g.BloodPressure, dropped),
		Sleep:           dedupFamily(g.Sleep, dropped),
		Activity:        dedupFamily(g.Activity, dropped),
		BodyMeasurement: dedupFamily(g.BodyMeasurement, dropped),
		Temperature:     dedupFamily(g.Temperature, dropped),
		BloodGlucose:    dedupFamily(g.BloodGlucose, dropped),
		Metabolic:       dedupFamily(g.Metabolic, dropped),
		Respiratory:     dedupFamily(g.Respiratory, dropped),
		Nutrition:       dedupFamily(g.Nutrition, dropped),
		Workout:         dedupFamily(g.Workout, dropped),
		Environmental:   dedupFamily(g.Environmental, dropped),
		AudioExposure:   dedupFamily(g.AudioExposure, dropped),
		SafetyEvent:     dedupFamily(g.SafetyEvent, dropped),
		Mindfulness:     dedupFamily(g.Mindfulness, dropped),
		MentalHealth:    dedupFamily(g.MentalHealth, dropped),
		Menstrual:       dedupFamily(g.Menstrual, dropped),
		Fertility:       dedupFamily(g.Fertility, dropped),
		Symptom:         dedupFamily(g.Symptom, dropped),
		Hygiene:         dedupFamily(g.Hygiene, dropped),
	}
	return out, dropped
}

type candidate[T models.Metric] struct {
	winner T
	merged []T
}

func dedupFamily[T models.Metric](in []T, dropped map[models.Family]int) []T {
	if len(in) == 0 {
		return nil
	}
	index := make(map[string]int, len(in))
	groups := make([]*candidate[T], 0, len(in))
	for _, m := range in {
		key := m.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(groups)
			groups = append(groups, &candidate[T]{winner: m})
			continue
		}
		dropped[m.Kind()]++
		c := groups[i]
		if prefer(m, c.winner) {
			c.merged = append(c.merged, c.winner)
			c.winner = m
		} else {
			c.merged = append(c.merged, m)
		}
	}
	if len(groups) == len(in) {
		return in
	}

	out := make([]T, len(groups))
	for i, c := range groups {
		w := c.winner
		for _, loser := range c.merged {
			w = models.MergeMissing(w, loser).(T)
		}
		out[i] = w
	}
	return out
}

// prefer 判断 a 是否优先于 b：
// 有来源设备 > 可选字段更多 > created_at 更晚 > ID 字典序更大
func prefer(a, b models.Metric) bool {
	ab, bb := a.Common(), b.Common()
	if as, bs := ab.HasSource(), bb.HasSource(); as != bs {
		return as
	}
	if an, bn := models.PopulatedOptionalFields(a), models.PopulatedOptionalFields(b); an != bn {
		return an > bn
	}
	if !ab.CreatedAt.Equal(bb.CreatedAt) {
		return ab.CreatedAt.After(bb.CreatedAt)
	}
	return ab.ID.String() > bb.ID.String()
}
