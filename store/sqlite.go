package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"aqi-service/aqi"
	"aqi-service/models"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS aqi_daily (
	county             TEXT NOT NULL,
	state              TEXT NOT NULL,
	date               TEXT NOT NULL,
	aqi                REAL NOT NULL,
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
	predicted_aqi      REAL NOT NULL,
	predicted_category TEXT NOT NULL,
	horizon_days       INTEGER NOT NULL,
	collected_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aqi_daily_state ON aqi_daily(state);
CREATE INDEX IF NOT EXISTS idx_prediction_log_county ON prediction_log(county, state);
CREATE INDEX IF NOT EXISTS idx_prediction_log_collected_at ON prediction_log(collected_at);
`

// Driver returns "sqlite".
func (s *SQLiteStore) Driver() string { return "sqlite" }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSamples(ctx context.Context, samples []models.AqiSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO aqi_daily (county, state, date, aqi, category, defining_parameter)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (county, state, date) DO UPDATE SET
			aqi = excluded.aqi,
			category = excluded.category,
			defining_parameter = excluded.defining_parameter`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			sample.County, sample.State, sample.Date, sample.AQI, sample.Category, sample.DefiningParameter,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert sample %s/%s %s", sample.County, sample.State, sample.Date)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(samples), nil
}

func (s *SQLiteStore) ListCounties(ctx context.Context, state string) ([]models.County, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT county, state FROM aqi_daily WHERE (? = '' OR state = ?) ORDER BY state, county`,
		state, state,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list counties")
	}
	defer rows.Close()

	counties := make([]models.County, 0)
	for rows.Next() {
		var county, st string
		if err := rows.Scan(&county, &st); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan county")
		}
		counties = append(counties, models.NewCounty(county, st))
	}
	return counties, eris.Wrap(rows.Err(), "sqlite: iterate counties")
}

func (s *SQLiteStore) GetHistory(ctx context.Context, county, state string, days int) ([]models.AqiSample, error) {
	limit := days
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, aqi, category, defining_parameter FROM (
			SELECT date, aqi, category, defining_parameter FROM aqi_daily
			WHERE county = ? AND state = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC`,
		county, state, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query history")
	}
	defer rows.Close()

	history := make([]models.AqiSample, 0)
	for rows.Next() {
		sample := models.AqiSample{County: county, State: state}
		if err := rows.Scan(&sample.Date, &sample.AQI, &sample.Category, &sample.DefiningParameter); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		history = append(history, sample)
	}
	return history, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) SavePredictions(ctx context.Context, records []models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save predictions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range prepareRecords(records) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prediction_log
				(id, county, state, model, forecast_date, predicted_aqi, predicted_category, horizon_days, collected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.County, r.State, r.Model, r.ForecastDate,
			r.PredictedAQI, string(r.PredictedCategory), r.HorizonDays, r.CollectedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert prediction %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit predictions")
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, county, state, model, forecast_date, predicted_aqi, predicted_category, horizon_days, collected_at
		FROM prediction_log
		WHERE (? = '' OR county = ?) AND (? = '' OR state = ?)
		ORDER BY collected_at DESC
		LIMIT ?`,
		filter.County, filter.County, filter.State, filter.State, filter.limit(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
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
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		r.PredictedCategory = aqi.Category(category)
		r.CollectedAt = r.CollectedAt.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate predictions")
}

func (s *SQLiteStore) PrunePredictions(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prediction_log WHERE collected_at < ?`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune predictions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune rows affected")
	}
	return int(n), nil
}

var _ Store = (*SQLiteStore)(nil)
