package aqi

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// ErrNoPredictions is returned by Summarize for an empty prediction list.
var ErrNoPredictions = eris.New("aqi: no predictions to summarize")

// ForecastSummary aggregates a multi-day forecast.
type ForecastSummary struct {
	AverageAQI         float64  `json:"averageAqi"`
	MinAQI             float64  `json:"minAqi"`
	MaxAQI             float64  `json:"maxAqi"`
	MostCommonCategory Category `json:"mostCommonCategory"`
}

// Range renders the rounded min and max as "lo - hi".
func (s ForecastSummary) Range() string {
	return fmt.Sprintf("%.0f - %.0f", RoundHalfUp(s.MinAQI), RoundHalfUp(s.MaxAQI))
}

// Summarize computes the rounded average, the range and the most common
// predicted category. On a tie the category that reached the winning count
// first, scanning in input order, is kept.
func Summarize(predictions []ForecastPoint) (ForecastSummary, error) {
	if len(predictions) == 0 {
		return ForecastSummary{}, ErrNoPredictions
	}

	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	counts := make(map[Category]int, len(categories))
	var common Category
	best := 0
	for _, p := range predictions {
		sum += p.PredictedAQI
		lo = math.Min(lo, p.PredictedAQI)
		hi = math.Max(hi, p.PredictedAQI)

		counts[p.PredictedCategory]++
		if n := counts[p.PredictedCategory]; n > best {
			best = n
			common = p.PredictedCategory
		}
	}

	return ForecastSummary{
		AverageAQI:         RoundHalfUp(sum / float64(len(predictions))),
		MinAQI:             lo,
		MaxAQI:             hi,
		MostCommonCategory: common,
	}, nil
}

// Probability is one entry of a category probability distribution.
type Probability struct {
	Category Category `json:"category"`
	Value    float64  `json:"probability"`
	Percent  string   `json:"percent"`
}

// SortedProbabilities orders a distribution by descending probability. Equal
// probabilities fall back to table order so the output is deterministic.
func SortedProbabilities(probs map[string]float64) []Probability {
	out := make([]Probability, 0, len(probs))
	for name, p := range probs {
		out = append(out, Probability{
			Category: Category(name),
			Value:    p,
			Percent:  fmt.Sprintf("%.1f%%", p*100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		si, sj := out[i].Category.Severity(), out[j].Category.Severity()
		if si != sj {
			return si < sj
		}
		return out[i].Category < out[j].Category
	})
	return out
}
