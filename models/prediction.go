package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"aqi-service/aqi"
)

// ErrInvalidRequest marks a prediction request that fails validation
var ErrInvalidRequest = eris.New("models: invalid prediction request")

// Horizons are the forecast lengths the model service accepts, in days
var Horizons = []int{1, 3, 7, 14}

// ValidHorizon reports whether days is an accepted forecast length
func ValidHorizon(days int) bool {
	for _, h := range Horizons {
		if h == days {
			return true
		}
	}
	return false
}

// PredictionRequest asks the model service for a forecast
type PredictionRequest struct {
	County string `json:"county"`
	State  string `json:"state"`
	Model  string `json:"model,omitempty"`
	Days   int    `json:"days,omitempty"`
}

// Normalize fills defaults for model and days
func (r *PredictionRequest) Normalize(defaultModel string) {
	r.County = strings.TrimSpace(r.County)
	r.State = strings.TrimSpace(r.State)
	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.Days == 0 {
		r.Days = 1
	}
}

// Validate checks required fields and the horizon
func (r PredictionRequest) Validate() error {
	if !ValidHorizon(r.Days) {
		return eris.Wrapf(ErrInvalidRequest, "invalid 'days' value: %d. Must be one of: 1, 3, 7, 14", r.Days)
	}
	if r.County == "" || r.State == "" {
		return eris.Wrap(ErrInvalidRequest, "county and state are required")
	}
	return nil
}

// PredictionResponse is the model service's reply. A one-day forecast
// populates Prediction, longer horizons populate Predictions.
type PredictionResponse struct {
	Success      bool                `json:"success"`
	County       string              `json:"county"`
	State        string              `json:"state"`
	ForecastDate string              `json:"forecast_date,omitempty"`
	ForecastDays int                 `json:"forecast_days,omitempty"`
	Prediction   *aqi.ForecastPoint  `json:"prediction,omitempty"`
	Predictions  []aqi.ForecastPoint `json:"predictions,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Points returns the forecast as a list regardless of shape
func (r PredictionResponse) Points() []aqi.ForecastPoint {
	if len(r.Predictions) > 0 {
		return r.Predictions
	}
	if r.Prediction != nil {
		return []aqi.ForecastPoint{*r.Prediction}
	}
	return nil
}

// Next returns the first forecast point, or nil
func (r PredictionResponse) Next() *aqi.ForecastPoint {
	points := r.Points()
	if len(points) == 0 {
		return nil
	}
	p := points[0]
	return &p
}

// ModelMetrics are the model's evaluation metrics. Any may be absent.
type ModelMetrics struct {
	MSE  *float64 `json:"mse,omitempty"`
	RMSE *float64 `json:"rmse,omitempty"`
	R2   *float64 `json:"r2,omitempty"`
}

// MetricsDisplay is ModelMetrics formatted for display
type MetricsDisplay struct {
	MSE  string `json:"mse"`
	RMSE string `json:"rmse"`
	R2   string `json:"r2"`
}

// Display formats the metrics, rendering absent values as "--"
func (m ModelMetrics) Display() MetricsDisplay {
	d := MetricsDisplay{MSE: "--", RMSE: "--", R2: "--"}
	if usable(m.MSE) {
		d.MSE = fmt.Sprintf("%.2f", *m.MSE)
	}
	if usable(m.RMSE) {
		d.RMSE = fmt.Sprintf("~%.0f AQI units", aqi.RoundHalfUp(*m.RMSE))
	}
	if usable(m.R2) {
		d.R2 = fmt.Sprintf("%.2f", *m.R2)
	}
	return d
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// MetricsResponse is the envelope for model metrics
type MetricsResponse struct {
	Success   bool           `json:"success"`
	ModelType string         `json:"model_type"`
	Metrics   ModelMetrics   `json:"metrics"`
	Display   MetricsDisplay `json:"display"`
	Version   string         `json:"version,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// PredictionRecord is a stored forecast snapshot
type PredictionRecord struct {
	ID                string       `json:"id"`
	County            string       `json:"county"`
	State             string       `json:"state"`
	Model             string       `json:"model"`
	ForecastDate      string       `json:"forecast_date"`
	PredictedAQI      float64      `json:"predicted_aqi"`
	PredictedCategory aqi.Category `json:"predicted_category"`
	HorizonDays       int          `json:"horizon_days"`
	CollectedAt       time.Time    `json:"collected_at"`
}
