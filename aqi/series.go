package aqi

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateLayout is the calendar-date format used for series labels.
const DateLayout = "2006-01-02"

// Sample is one historical observation.
type Sample struct {
	Date string  `json:"date"`
	AQI  float64 `json:"aqi"`
}

// ForecastPoint is a single predicted value from the model service.
type ForecastPoint struct {
	PredictedAQI      float64            `json:"predicted_aqi"`
	PredictedCategory Category           `json:"predicted_category"`
	ForecastDate      string             `json:"forecast_date,omitempty"`
	Probabilities     map[string]float64 `json:"probabilities,omitempty"`
}

// Point is a plotted value with the color of its category.
type Point struct {
	Date     string   `json:"date"`
	Value    float64  `json:"value"`
	Category Category `json:"category"`
	Color    string   `json:"color"`
	Forecast bool     `json:"forecast"`
}

// CombinedSeries is a historical series with an optional forecast point
// appended at the end.
type CombinedSeries struct {
	Points      []Point `json:"points"`
	HasForecast bool    `json:"hasForecast"`
}

// History returns the historical portion of the series.
func (s CombinedSeries) History() []Point {
	if s.HasForecast && len(s.Points) > 0 {
		return s.Points[:len(s.Points)-1]
	}
	return s.Points
}

// Values returns every plotted value, forecast included.
func (s CombinedSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Reading is a statistic that may be unavailable. The zero value is
// Unavailable.
type Reading struct {
	value float64
	ok    bool
}

// Unavailable marks a statistic that could not be computed.
var Unavailable = Reading{}

// Available wraps a computed value.
func Available(v float64) Reading {
	return Reading{value: v, ok: true}
}

// Value returns the reading and whether it is available.
func (r Reading) Value() (float64, bool) {
	return r.value, r.ok
}

// Valid reports whether the reading holds a value.
func (r Reading) Valid() bool { return r.ok }

// String renders the value or "--".
func (r Reading) String() string {
	if !r.ok {
		return "--"
	}
	return strconv.FormatFloat(r.value, 'f', -1, 64)
}

// MarshalJSON encodes an unavailable reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.ok {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Unavailable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Available(v)
	return nil
}

// Stats summarizes the historical portion of a series.
type Stats struct {
	Average Reading `json:"average"`
	Min     Reading `json:"min"`
	Max     Reading `json:"max"`
	Latest  Reading `json:"latest"`
}

// LabeledPrediction is one element of a multi-day forecast chart.
type LabeledPrediction struct {
	Date     string   `json:"date"`
	Value    float64  `json:"value"`
	Category Category `json:"category"`
	Color    string   `json:"color"`
}

// Composer builds chart series relative to the current date. The zero value
// uses time.Now.
type Composer struct {
	Now func() time.Time
}

func (c Composer) today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Compose appends forecast, when non-nil, to history as a point dated one day
// after today with its value rounded half-up. Any date on the forecast is
// ignored.
func (c Composer) Compose(history []Sample, forecast *ForecastPoint) CombinedSeries {
	points := make([]Point, 0, len(history)+1)
	for _, h := range history {
		points = append(points, newPoint(h.Date, h.AQI, false))
	}

	series := CombinedSeries{Points: points}
	if forecast != nil {
		date := c.today().AddDate(0, 0, 1).Format(DateLayout)
		v := RoundHalfUp(forecast.PredictedAQI)
		series.Points = append(series.Points, newPoint(date, v, true))
		series.HasForecast = true
	}
	return series
}

// ComposeMultiDay labels predictions with consecutive dates starting
// tomorrow, one per element, regardless of their own forecast dates.
func (c Composer) ComposeMultiDay(predictions []ForecastPoint) []LabeledPrediction {
	start := c.today()
	out := make([]LabeledPrediction, 0, len(predictions))
	for i, p := range predictions {
		cat := Classify(p.PredictedAQI)
		out = append(out, LabeledPrediction{
			Date:     start.AddDate(0, 0, i+1).Format(DateLayout),
			Value:    p.PredictedAQI,
			Category: cat,
			Color:    ColorFor(string(cat)),
		})
	}
	return out
}

func newPoint(date string, v float64, forecast bool) Point {
	cat := Classify(v)
	return Point{
		Date:     date,
		Value:    v,
		Category: cat,
		Color:    ColorFor(string(cat)),
		Forecast: forecast,
	}
}

// Compose is Composer{}.Compose.
func Compose(history []Sample, forecast *ForecastPoint) CombinedSeries {
	return Composer{}.Compose(history, forecast)
}

// ComposeMultiDay is Composer{}.ComposeMultiDay.
func ComposeMultiDay(predictions []ForecastPoint) []LabeledPrediction {
	return Composer{}.ComposeMultiDay(predictions)
}

// ComputeStats reports average, min, max and latest over the historical
// points of series. The forecast point never contributes. An empty history
// yields Unavailable for every field.
func ComputeStats(series CombinedSeries) Stats {
	hist := series.History()
	if len(hist) == 0 {
		return Stats{Average: Unavailable, Min: Unavailable, Max: Unavailable, Latest: Unavailable}
	}

	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range hist {
		sum += p.Value
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}

	return Stats{
		Average: Available(RoundHalfUp(sum / float64(len(hist)))),
		Min:     Available(lo),
		Max:     Available(hi),
		Latest:  Available(hist[len(hist)-1].Value),
	}
}

// AxisMax returns the value-axis ceiling for a chart of values: 200 normally,
// or the larger of 300 and 120% of the peak once values exceed 200.
func AxisMax(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak > 200 {
		return math.Max(300, peak*1.2)
	}
	return 200
}
