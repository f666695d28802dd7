package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"aqi-service/aqi"
	"aqi-service/models"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS aqi_daily (
	county             TEXT NOT NULL,
	state              TEXT NOT NULL,
	date               DATE NOT NULL,
	aqi                DOUBLE PRECISION NOT NULL,
	category           TEXT NOT NULL,
	defining_parameter TEXT NOT NULL DEFAULT 'Unknown',
	PRIMARY KEY (county, state, date)
);

CREATE TABLE IF NOT EXISTS prediction_log (
	id                 TEXT PRIMARY KEY,
	county             TEXT NOT NULL,
	state              TEXT NOT NULL,
	model              TEXT NOT NULL,
	forecast_date      TEXT NOT NULL,
	predicted_aqi      DOUBLE PRECISION NOT NULL,
	predicted_category TEXT NOT NULL,
	horizon_days       INTEGER NOT NULL,
	collected_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_aqi_daily_state ON aqi_daily(state);
CREATE INDEX IF NOT EXISTS idx_prediction_log_county ON prediction_log(county, state);
CREATE INDEX IF NOT EXISTS idx_prediction_log_collected_at ON prediction_log(collected_at);
`

// Driver returns "postgres".
func (s *PostgresStore) Driver() string { return "postgres" }

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const upsertSampleSQL = `INSERT INTO aqi_daily (county, state, date, aqi, category, defining_parameter)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (county, state, date) DO UPDATE SET
	aqi = EXCLUDED.aqi,
	category = EXCLUDED.category,
	defining_parameter = EXCLUDED.defining_parameter`

// UpsertSamples writes samples in a single transaction.
func (s *PostgresStore) UpsertSamples(ctx context.Context, samples []models.AqiSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, sample := range samples {
		date, err := time.Parse(aqi.DateLayout, sample.Date)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: parse date %q", sample.Date)
		}
		if _, err := tx.Exec(ctx, upsertSampleSQL,
			sample.County, sample.State, date, sample.AQI, sample.Category, sample.DefiningParameter,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert sample %s/%s %s", sample.County, sample.State, sample.Date)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return len(samples), nil
}

// ListCounties returns distinct counties ordered by state, then county.
func (s *PostgresStore) ListCounties(ctx context.Context, state string) ([]models.County, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT county, state FROM aqi_daily WHERE ($1 = '' OR state = $1) ORDER BY state, county`,
		state,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list counties")
	}
	defer rows.Close()

	counties := make([]models.County, 0)
	for rows.Next() {
		var county, st string
		if err := rows.Scan(&county, &st); err != nil {
			return nil, eris.Wrap(err, "postgres: scan county")
		}
		counties = append(counties, models.NewCounty(county, st))
	}
	return counties, eris.Wrap(rows.Err(), "postgres: iterate counties")
}

// GetHistory returns the most recent days samples in ascending date order.
func (s *PostgresStore) GetHistory(ctx context.Context, county, state string, days int) ([]models.AqiSample, error) {
	var limit *int
	if days > 0 {
		limit = &days
	}

	rows, err := s.pool.Query(ctx,
		`SELECT date, aqi, category, defining_parameter FROM (
			SELECT date, aqi, category, defining_parameter FROM aqi_daily
			WHERE county = $1 AND state = $2
			ORDER BY date DESC
			LIMIT $3
		) recent ORDER BY date ASC`,
		county, state, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query history")
	}
	defer rows.Close()

	history := make([]models.AqiSample, 0)
	for rows.Next() {
		var (
			date   time.Time
			sample = models.AqiSample{County: county, State: state}
		)
		if err := rows.Scan(&date, &sample.AQI, &sample.Category, &sample.DefiningParameter); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		sample.Date = date.Format(aqi.DateLayout)
		history = append(history, sample)
	}
	return history, eris.Wrap(rows.Err(), "postgres: iterate history")
}

const insertPredictionSQL = `INSERT INTO prediction_log
	(id, county, state, model, forecast_date, predicted_aqi, predicted_category, horizon_days, collected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// SavePredictions appends records to the prediction log.
func (s *PostgresStore) SavePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save predictions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range prepareRecords(records) {
		if _, err := tx.Exec(ctx, insertPredictionSQL,
			r.ID, r.County, r.State, r.Model, r.ForecastDate,
			r.PredictedAQI, string(r.PredictedCategory), r.HorizonDays, r.CollectedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert prediction %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit predictions")
}

// ListPredictions returns matching records, newest first.
func (s *PostgresStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, county, state, model, forecast_date, predicted_aqi, predicted_category, horizon_days, collected_at
		FROM prediction_log
		WHERE ($1 = '' OR county = $1) AND ($2 = '' OR state = $2)
		ORDER BY collected_at DESC
		LIMIT $3`,
		filter.County, filter.State, filter.limit(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	out := make([]models.PredictionRecord, 0)
	for rows.Next() {
		var (
			r        models.PredictionRecord
			category string
		)
		if err := rows.Scan(&r.ID, &r.County, &r.State, &r.Model, &r.ForecastDate,
			&r.PredictedAQI, &category, &r.HorizonDays, &r.CollectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		r.PredictedCategory = aqi.Category(category)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate predictions")
}

// PrunePredictions deletes records collected before the cutoff.
func (s *PostgresStore) PrunePredictions(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prediction_log WHERE collected_at < $1`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune predictions")
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
