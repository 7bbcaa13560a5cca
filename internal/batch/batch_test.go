package batch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-health-ingest/internal/models"
)

var (
	owner = uuid.MustParse("11111111-2222-3333-4444-555555555555")
	t0    = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
)

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

func hr(id string, bpm int, src *string, idx int) *models.HeartRateMetric {
	return &models.HeartRateMetric{
		RecordBase: models.RecordBase{
			ID:           uuid.MustParse(id),
			UserID:       owner,
			RecordedAt:   t0,
			SourceDevice: src,
			CreatedAt:    t0,
			SourceIndex:  idx,
		},
		HeartRate: ip(bpm),
	}
}

func TestVerifyGrouping(t *testing.T) {
	require.NoError(t, VerifyGrouping())
}

func TestGroup_PreservesOrderPerFamily(t *testing.T) {
	a := hr("00000000-0000-0000-0000-000000000001", 70, nil, 0)
	b := &models.ActivityMetric{RecordBase: models.RecordBase{UserID: owner, RecordedAt: t0}, StepCount: ip(10)}
	c := hr("00000000-0000-0000-0000-000000000002", 71, nil, 2)

	g, err := Group([]models.Metric{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []*models.HeartRateMetric{a, c}, g.HeartRate)
	assert.Equal(t, []*models.ActivityMetric{b}, g.Activity)
	assert.Equal(t, 3, g.Total())
}

func TestGroup_EveryFamilyHasExactlyOneField(t *testing.T) {
	var all []models.Metric
	for _, f := range models.AllFamilies {
		all = append(all, models.NewMetric(f))
	}
	g, err := Group(all)
	require.NoError(t, err)
	for _, f := range models.AllFamilies {
		recs := g.Records(f)
		require.Len(t, recs, 1, f)
		assert.Equal(t, f, recs[0].Kind())
	}
}

func TestDeduplicate_ThreeSameInstant(t *testing.T) {
	g := &models.GroupedMetrics{HeartRate: []*models.HeartRateMetric{
		hr("00000000-0000-0000-0000-000000000001", 72, nil, 0),
		hr("00000000-0000-0000-0000-000000000002", 73, nil, 1),
		hr("00000000-0000-0000-0000-000000000003", 72, nil, 2),
	}}

	out, dropped := Deduplicate(g)
	require.Len(t, out.HeartRate, 1)
	assert.Equal(t, 2, dropped[models.FamilyHeartRate])
	// 其他条件相同时 ID 字典序最大者胜出
	assert.Equal(t, "00000000-0000-0000-0000-000000000003", out.HeartRate[0].ID.String())
	assert.Equal(t, 72, *out.HeartRate[0].HeartRate)

	again, droppedAgain := Deduplicate(out)
	assert.Equal(t, out.HeartRate, again.HeartRate)
	assert.Zero(t, droppedAgain[models.FamilyHeartRate])
}

func TestDeduplicate_TieBreakOrder(t *testing.T) {
	withSource := hr("00000000-0000-0000-0000-000000000001", 60, sp("Apple Watch"), 0)
	richer := hr("00000000-0000-0000-0000-000000000009", 61, nil, 1)
	richer.RestingHeartRate = ip(55)

	out, _ := Deduplicate(&models.GroupedMetrics{HeartRate: []*models.HeartRateMetric{richer, withSource}})
	require.Len(t, out.HeartRate, 1)
	assert.Equal(t, withSource.ID, out.HeartRate[0].ID)

	older := hr("00000000-0000-0000-0000-000000000009", 62, nil, 0)
	newer := hr("00000000-0000-0000-0000-000000000001", 63, nil, 1)
	newer.CreatedAt = t0.Add(time.Second)
	out, _ = Deduplicate(&models.GroupedMetrics{HeartRate: []*models.HeartRateMetric{older, newer}})
	assert.Equal(t, newer.ID, out.HeartRate[0].ID)
}

func TestDeduplicate_BackfillsMissingFields(t *testing.T) {
	a := &models.BodyMeasurementMetric{
		RecordBase:   models.RecordBase{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), UserID: owner, RecordedAt: t0, SourceDevice: sp("Scale")},
		BodyWeightKg: fp(70),
	}
	b := &models.BodyMeasurementMetric{
		RecordBase:        models.RecordBase{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), UserID: owner, RecordedAt: t0},
		BodyFatPercentage: fp(18),
	}

	out, dropped := Deduplicate(&models.GroupedMetrics{BodyMeasurement: []*models.BodyMeasurementMetric{a, b}})
	require.Len(t, out.BodyMeasurement, 1)
	assert.Equal(t, 1, dropped[models.FamilyBodyMeasurement])

	w := out.BodyMeasurement[0]
	assert.Equal(t, a.ID, w.ID)
	assert.Equal(t, 70.0, *w.BodyWeightKg)
	assert.Equal(t, 18.0, *w.BodyFatPercentage)
	assert.Nil(t, a.BodyFatPercentage, "input records must not be mutated")
}

func TestDeduplicate_KeepsFirstOccurrenceOrder(t *testing.T) {
	mk := func(id string, at time.Time) *models.ActivityMetric {
		return &models.ActivityMetric{
			RecordBase: models.RecordBase{ID: uuid.MustParse(id), UserID: owner, RecordedAt: at},
			StepCount:  ip(1),
		}
	}
	t1 := t0.Add(time.Minute)
	in := []*models.ActivityMetric{
		mk("00000000-0000-0000-0000-000000000001", t1),
		mk("00000000-0000-0000-0000-000000000002", t0),
		mk("00000000-0000-0000-0000-000000000003", t1),
	}
	out, dropped := Deduplicate(&models.GroupedMetrics{Activity: in})
	require.Len(t, out.Activity, 2)
	assert.Equal(t, t1, out.Activity[0].RecordedAt)
	assert.Equal(t, t0, out.Activity[1].RecordedAt)
	assert.Equal(t, 1, dropped[models.FamilyActivity])
}

func TestDeduplicate_DiscriminatorKeepsDistinct(t *testing.T) {
	in := []*models.SymptomMetric{
		{RecordBase: models.RecordBase{ID: uuid.New(), UserID: owner, RecordedAt: t0}, SymptomType: "headache", Severity: "mild"},
		{RecordBase: models.RecordBase{ID: uuid.New(), UserID: owner, RecordedAt: t0}, SymptomType: "nausea", Severity: "mild"},
	}
	out, dropped := Deduplicate(&models.GroupedMetrics{Symptom: in})
	assert.Len(t, out.Symptom, 2)
	assert.Zero(t, dropped[models.FamilySymptom])
}
