package datasource

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"aqi-service/models"
)

// RateLimitedSource wraps a Source with rate limiting. Predictions and
// metrics go to the same upstream, so they share one limiter.
type RateLimitedSource struct {
	source  Source
	limiter *rate.Limiter
	name    string
}

// NewRateLimitedSource creates a new rate limited source
// rps is the maximum requests per second allowed (can be fractional for less than 1 request per second)
// burst is the maximum burst size allowed
func NewRateLimitedSource(source Source, rps float64, burst int) *RateLimitedSource {
	return &RateLimitedSource{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    fmt.Sprintf("%s [Rate Limited]", source.Name()),
	}
}

// Predict fetches a forecast, respecting rate limits
func (r *RateLimitedSource) Predict(ctx context.Context, req models.PredictionRequest) (models.PredictionResponse, error) {
	// Wait for rate limiter permission or context cancellation
	if err := r.limiter.Wait(ctx); err != nil {
		return models.PredictionResponse{}, eris.Wrap(err, "datasource: rate limit wait canceled")
	}

	return r.source.Predict(ctx, req)
}

// ModelMetrics fetches model metrics, respecting rate limits
func (r *RateLimitedSource) ModelMetrics(ctx context.Context, model string) (models.MetricsResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.MetricsResponse{}, eris.Wrap(err, "datasource: rate limit wait canceled")
	}
	return r.source.ModelMetrics(ctx, model)
}

// Name returns the source name
func (r *RateLimitedSource) Name() string {
	return r.name
}

var _ Source = (*RateLimitedSource)(nil)
