package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"aqi-service/aqi"
	"aqi-service/datasource"
	"aqi-service/metrics"
	"aqi-service/models"
)

// Target is a county the collector snapshots predictions for
type Target struct {
	County string
	State  string
}

func (t Target) String() string {
	return t.County + ", " + t.State
}

// ParseTargets parses "County:State" entries. Blank entries are skipped.
func ParseTargets(entries []string) ([]Target, error) {
	targets := make([]Target, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		county, state, ok := strings.Cut(entry, ":")
		county, state = strings.TrimSpace(county), strings.TrimSpace(state)
		if !ok || county == "" || state == "" {
			return nil, eris.Errorf("collector: invalid target %q, want County:State", entry)
		}
		targets = append(targets, Target{County: county, State: state})
	}
	return targets, nil
}

// Snapshot is one collected forecast for a target
type Snapshot struct {
	Target  Target
	Records []models.PredictionRecord
}

// Options tune a PredictionCollector
type Options struct {
	Interval     time.Duration
	HorizonDays  int
	Model        string
	FetchTimeout time.Duration
	Now          func() time.Time
}

// PredictionCollector periodically asks the model service for forecasts and
// emits them as prediction log records
type PredictionCollector struct {
	source     datasource.PredictionSource
	targets    []Target
	opts       Options
	outputChan chan Snapshot
	errorChan  chan error
}

// NewPredictionCollector creates a collector for the given targets
func NewPredictionCollector(source datasource.PredictionSource, targets []Target, opts Options) *PredictionCollector {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if !models.ValidHorizon(opts.HorizonDays) {
		opts.HorizonDays = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PredictionCollector{
		source:     source,
		targets:    targets,
		opts:       opts,
		outputChan: make(chan Snapshot, 100),
		errorChan:  make(chan error, 100),
	}
}

// OutputChannel returns the channel that emits collected snapshots
func (c *PredictionCollector) OutputChannel() <-chan Snapshot {
	return c.outputChan
}

// ErrorChannel returns the channel that emits fetch errors
func (c *PredictionCollector) ErrorChannel() <-chan error {
	return c.errorChan
}

// Start begins collecting for every target. Both channels are closed once
// collection stops. The returned function stops collection and waits.
func (c *PredictionCollector) Start(ctx context.Context) func() {
	collectionCtx, cancelCollection := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for _, target := range c.targets {
		wg.Add(1)
		go c.collectTarget(collectionCtx, &wg, target)
	}

	go func() {
		wg.Wait()
		close(c.outputChan)
		close(c.errorChan)
	}()

	return func() {
		cancelCollection()
		wg.Wait()
	}
}

func (c *PredictionCollector) collectTarget(ctx context.Context, wg *sync.WaitGroup, target Target) {
	defer wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.fetchOnce(ctx, target)

	for {
		select {
		case <-ticker.C:
			c.fetchOnce(ctx, target)
		case <-ctx.Done():
			return
		}
	}
}

func (c *PredictionCollector) fetchOnce(ctx context.Context, target Target) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	snapshot, err := c.Collect(fetchCtx, target)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordSnapshot("error")
		select {
		case c.errorChan <- err:
		default:
			zap.L().Warn("collector error channel full", zap.Error(err))
		}
		return
	}
	metrics.RecordSnapshot("ok")

	select {
	case c.outputChan <- snapshot:
	case <-ctx.Done():
	}
}

// Collect fetches one forecast for target and converts it to records
func (c *PredictionCollector) Collect(ctx context.Context, target Target) (Snapshot, error) {
	req := models.PredictionRequest{
		County: target.County,
		State:  target.State,
		Model:  c.opts.Model,
		Days:   c.opts.HorizonDays,
	}
	resp, err := c.source.Predict(ctx, req)
	if err != nil {
		return Snapshot{}, eris.Wrapf(err, "collector: predict %s from %s", target, c.source.Name())
	}

	points := resp.Points()
	if len(points) == 0 {
		return Snapshot{}, eris.Errorf("collector: empty forecast for %s", target)
	}

	return Snapshot{Target: target, Records: c.records(target, resp, points)}, nil
}

func (c *PredictionCollector) records(target Target, resp models.PredictionResponse, points []aqi.ForecastPoint) []models.PredictionRecord {
	now := c.opts.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := make([]models.PredictionRecord, 0, len(points))
	for i, p := range points {
		date := p.ForecastDate
		if date == "" && len(points) == 1 {
			date = resp.ForecastDate
		}
		if date == "" {
			date = today.AddDate(0, 0, i+1).Format(aqi.DateLayout)
		}

		category := p.PredictedCategory
		if category == "" {
			category = aqi.Classify(p.PredictedAQI)
		}

		out = append(out, models.PredictionRecord{
			County:            target.County,
			State:             target.State,
			Model:             c.opts.Model,
			ForecastDate:      date,
			PredictedAQI:      p.PredictedAQI,
			PredictedCategory: category,
			HorizonDays:       c.opts.HorizonDays,
			CollectedAt:       now.UTC(),
		})
	}
	return out
}
