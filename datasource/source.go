package datasource

import (
	"context"
	"fmt"

	"aqi-service/models"
)

// PredictionSource is a service that can forecast AQI for a county
type PredictionSource interface {
	// Predict fetches a forecast for req.Days days
	Predict(ctx context.Context, req models.PredictionRequest) (models.PredictionResponse, error)

	// Name returns the source's name
	Name() string
}

// MetricsSource is a service that reports model evaluation metrics
type MetricsSource interface {
	// ModelMetrics fetches metrics for the named model
	ModelMetrics(ctx context.Context, model string) (models.MetricsResponse, error)

	// Name returns the source's name
	Name() string
}

// Source is a model service providing both predictions and metrics
type Source interface {
	PredictionSource
	MetricsSource
}

// StatusError is a non-200 reply from the model service
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model service error (status %d): %s", e.StatusCode, e.Message)
}
