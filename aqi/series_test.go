package aqi

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedComposer() Composer {
	return Composer{Now: func() time.Time {
		return time.Date(2024, 3, 31, 22, 15, 0, 0, time.UTC)
	}}
}

func TestCompose_EmptyHistoryNoForecast(t *testing.T) {
	series := Compose(nil, nil)
	assert.Empty(t, series.Points)
	assert.False(t, series.HasForecast)

	stats := ComputeStats(series)
	assert.Equal(t, Unavailable, stats.Average)
	assert.Equal(t, Unavailable, stats.Min)
	assert.Equal(t, Unavailable, stats.Max)
	assert.Equal(t, Unavailable, stats.Latest)
	assert.Equal(t, "--", stats.Average.String())
}

func TestCompose_WithForecast(t *testing.T) {
	history := []Sample{
		{Date: "2024-01-01", AQI: 40},
		{Date: "2024-01-02", AQI: 60},
	}
	series := fixedComposer().Compose(history, &ForecastPoint{PredictedAQI: 55.4, ForecastDate: "2030-12-31"})

	require.Len(t, series.Points, 3)
	last := series.Points[2]
	assert.Equal(t, 55.0, last.Value)
	assert.True(t, last.Forecast)
	assert.Equal(t, "2024-04-01", last.Date)
	assert.Equal(t, Moderate, last.Category)
	assert.Equal(t, "#FFFF00", last.Color)

	stats := ComputeStats(series)
	assertReading(t, 50, stats.Average)
	assertReading(t, 40, stats.Min)
	assertReading(t, 60, stats.Max)
	assertReading(t, 60, stats.Latest)
}

func TestCompose_ForecastOnly(t *testing.T) {
	series := Compose(nil, &ForecastPoint{PredictedAQI: 12})
	require.Len(t, series.Points, 1)
	assert.Empty(t, series.History())

	stats := ComputeStats(series)
	assert.False(t, stats.Average.Valid())
	assert.False(t, stats.Latest.Valid())
}

func TestCompose_DoesNotMutateHistory(t *testing.T) {
	history := []Sample{{Date: "2024-01-01", AQI: 10}}
	first := Compose(history, &ForecastPoint{PredictedAQI: 20})
	second := Compose(history, nil)
	assert.Len(t, first.Points, 2)
	assert.Len(t, second.Points, 1)
	assert.Len(t, history, 1)
}

func TestComputeStats_AverageRoundsHalfUp(t *testing.T) {
	series := Compose([]Sample{{AQI: 10}, {AQI: 11}}, nil)
	assertReading(t, 11, ComputeStats(series).Average)
}

func TestCompose_HugeForecastStaysHazardous(t *testing.T) {
	series := Compose(nil, &ForecastPoint{PredictedAQI: 1e20})
	require.Len(t, series.Points, 1)
	assert.Equal(t, 1e20, series.Points[0].Value)
	assert.Equal(t, Hazardous, series.Points[0].Category)
}

func TestComputeStats_HugeAverageDoesNotWrap(t *testing.T) {
	big := math.Ldexp(1, 70)
	series := Compose([]Sample{{AQI: big}, {AQI: 3 * big}}, nil)
	assertReading(t, 2*big, ComputeStats(series).Average)
}

func TestComposeMultiDay_IgnoresServerDates(t *testing.T) {
	preds := []ForecastPoint{
		{PredictedAQI: 30, ForecastDate: "2020-01-01"},
		{PredictedAQI: 120, ForecastDate: "2020-01-01"},
		{PredictedAQI: 240},
	}
	out := fixedComposer().ComposeMultiDay(preds)
	require.Len(t, out, 3)
	assert.Equal(t, "2024-04-01", out[0].Date)
	assert.Equal(t, "2024-04-02", out[1].Date)
	assert.Equal(t, "2024-04-03", out[2].Date)
	assert.Equal(t, UnhealthyForSensitiveGroups, out[1].Category)
	assert.Equal(t, "#8F3F97", out[2].Color)
	assert.Empty(t, ComposeMultiDay(nil))
}

func TestAxisMax(t *testing.T) {
	assert.Equal(t, 200.0, AxisMax(nil))
	assert.Equal(t, 200.0, AxisMax([]float64{10, 200}))
	assert.Equal(t, 300.0, AxisMax([]float64{210}))
	assert.InDelta(t, 480.0, AxisMax([]float64{400}), 1e-9)
}

func TestReading_JSON(t *testing.T) {
	data, err := json.Marshal(Stats{Average: Available(50)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"average":50,"min":null,"max":null,"latest":null}`, string(data))

	var s Stats
	require.NoError(t, json.Unmarshal(data, &s))
	assertReading(t, 50, s.Average)
	assert.False(t, s.Min.Valid())
}

func assertReading(t *testing.T, want float64, r Reading) {
	t.Helper()
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, want, v)
}
