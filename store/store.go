package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"aqi-service/config"
	"aqi-service/models"
)

// DefaultPredictionLimit caps prediction log queries without an explicit limit.
const DefaultPredictionLimit = 50

// PredictionFilter narrows a prediction log query. Empty fields match all.
type PredictionFilter struct {
	County string `json:"county,omitempty"`
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (f PredictionFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultPredictionLimit
	}
	return f.Limit
}

// Store persists daily AQI history and the prediction log.
type Store interface {
	// History
	UpsertSamples(ctx context.Context, samples []models.AqiSample) (int, error)
	ListCounties(ctx context.Context, state string) ([]models.County, error)
	// GetHistory returns the most recent days samples for a county in
	// ascending date order. days <= 0 returns the full history.
	GetHistory(ctx context.Context, county, state string, days int) ([]models.AqiSample, error)

	// Prediction log
	SavePredictions(ctx context.Context, records []models.PredictionRecord) error
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error)
	PrunePredictions(ctx context.Context, before time.Time) (int, error)

	// Lifecycle
	Driver() string
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver. The caller runs Migrate.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// prepareRecords assigns IDs and timestamps to records that lack them.
func prepareRecords(records []models.PredictionRecord) []models.PredictionRecord {
	out := make([]models.PredictionRecord, len(records))
	now := time.Now().UTC()
	for i, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CollectedAt.IsZero() {
			r.CollectedAt = now
		}
		r.CollectedAt = r.CollectedAt.UTC()
		out[i] = r
	}
	return out
}
