package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aqi-service/aqi"
	"aqi-service/models"
	"aqi-service/store"
)

// handleHealthCheck reports liveness plus store and upstream status
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	connected := s.store.Ping(ctx) == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"store":               s.store.Driver(),
		"database_connected":  connected,
		"upstream_configured": s.source != nil,
	})
}

type categoryEntry struct {
	aqi.CategoryInfo
	Advisory string `json:"advisory"`
}

// handleCategories returns the ordered severity table
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	table := aqi.Categories()
	entries := make([]categoryEntry, len(table))
	for i, c := range table {
		entries[i] = categoryEntry{CategoryInfo: c, Advisory: aqi.Advisory(c.Name)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"categories": entries,
	})
}

// handleCounties lists counties with data, optionally for one state
func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	counties, err := s.store.ListCounties(r.Context(), strings.TrimSpace(r.URL.Query().Get("state")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	seen := make(map[string]bool)
	states := make([]string, 0)
	for _, c := range counties {
		if !seen[c.State] {
			seen[c.State] = true
			states = append(states, c.State)
		}
	}
	sort.Strings(states)

	zap.L().Info("counties retrieved", zap.String("operation", "ingestion"), zap.Int("count", len(counties)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"counties": counties,
		"states":   states,
		"count":    len(counties),
		"source":   s.store.Driver(),
	})
}

// handleHistorical returns the most recent days of samples for a county
func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	county, state, err := countyParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := queryDays(r, s.opts.HistoryDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.history(r.Context(), county, state, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) history(ctx context.Context, county, state string, days int) (models.HistoricalResponse, error) {
	samples, err := s.store.GetHistory(ctx, county, state, days)
	if err != nil {
		return models.HistoricalResponse{}, eris.Wrap(err, "api: load history")
	}
	for i := range samples {
		if samples[i].Category == "" {
			samples[i].Category = string(aqi.Classify(samples[i].AQI))
		}
	}
	zap.L().Info("historical rows returned",
		zap.String("operation", "ingestion"),
		zap.String("county", county),
		zap.String("state", state),
		zap.Int("rows", len(samples)),
	)
	return models.HistoricalResponse{
		Success: true,
		County:  county,
		State:   state,
		Days:    days,
		Data:    samples,
		Count:   len(samples),
		Source:  s.store.Driver(),
	}, nil
}

type summaryView struct {
	aqi.ForecastSummary
	Range string `json:"range"`
	Color string `json:"color"`
}

type predictionView struct {
	models.PredictionResponse
	Summary       *summaryView            `json:"summary,omitempty"`
	Series        []aqi.LabeledPrediction `json:"series,omitempty"`
	Probabilities []aqi.Probability       `json:"probabilities,omitempty"`
}

// handlePredict forwards a prediction request to the model service
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.predict(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) predict(ctx context.Context, req models.PredictionRequest) (predictionView, error) {
	req.Normalize(s.opts.DefaultModel)
	if err := req.Validate(); err != nil {
		return predictionView{}, err
	}
	if s.source == nil {
		return predictionView{}, ErrUpstreamDisabled
	}

	zap.L().Info("prediction request",
		zap.String("operation", "validation"),
		zap.String("county", req.County),
		zap.String("state", req.State),
		zap.String("model", req.Model),
		zap.Int("days", req.Days),
	)

	resp, err := s.source.Predict(ctx, req)
	if err != nil {
		return predictionView{}, err
	}
	if resp.County == "" {
		resp.County, resp.State = req.County, req.State
	}
	return s.decorate(req, resp), nil
}

// decorate adds the summary, labelled series and sorted probabilities
func (s *Server) decorate(req models.PredictionRequest, resp models.PredictionResponse) predictionView {
	view := predictionView{PredictionResponse: resp}
	points := resp.Points()

	if req.Days > 1 || len(resp.Predictions) > 0 {
		if summary, err := aqi.Summarize(points); err == nil {
			view.Summary = &summaryView{
				ForecastSummary: summary,
				Range:           summary.Range(),
				Color:           aqi.ColorFor(string(summary.MostCommonCategory)),
			}
		}
		view.Series = s.composer.ComposeMultiDay(points)
		return view
	}

	if next := resp.Next(); next != nil && len(next.Probabilities) > 0 {
		view.Probabilities = aqi.SortedProbabilities(next.Probabilities)
	}
	return view
}

type refreshRequest struct {
	models.PredictionRequest
	HistoryDays int `json:"history_days,omitempty"`
}

// handleRefresh loads history and a prediction concurrently and returns both
// with the chart payload
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pred := req.PredictionRequest
	pred.Normalize(s.opts.DefaultModel)
	if err := pred.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	historyDays := req.HistoryDays
	if historyDays <= 0 {
		historyDays = s.opts.HistoryDays
	}

	var (
		hist models.HistoricalResponse
		view predictionView
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		hist, err = s.history(ctx, pred.County, pred.State, historyDays)
		return err
	})
	g.Go(func() error {
		var err error
		view, err = s.predict(ctx, pred)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	series := s.composer.Compose(models.Samples(hist.Data), view.Next())
	s.views.Get(pred.County, pred.State).Update(series)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"county":     pred.County,
		"state":      pred.State,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"historical": hist,
		"prediction": view,
		"chart":      chartPayload(pred.County, pred.State, series, s.opts.ChartWidth, s.opts.ChartHeight),
	})
}

// handleModelMetrics passes model evaluation metrics through
func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, r, ErrUpstreamDisabled)
		return
	}
	model := strings.TrimSpace(r.URL.Query().Get("model"))
	if model == "" {
		model = s.opts.DefaultModel
	}

	resp, err := s.source.ModelMetrics(r.Context(), model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.ModelType == "" {
		resp.ModelType = model
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePredictionLog lists collected prediction snapshots
func (s *Server) handlePredictionLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", store.DefaultPredictionLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	records, err := s.store.ListPredictions(r.Context(), store.PredictionFilter{
		County: strings.TrimSpace(q.Get("county")),
		State:  strings.TrimSpace(q.Get("state")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"predictions": records,
		"count":       len(records),
	})
}

type placeRequest struct {
	Anchor        aqi.Rect `json:"anchor"`
	Tooltip       aqi.Size `json:"tooltip"`
	ViewportWidth float64  `json:"viewportWidth"`
}

// handleTooltipPlace picks the side a tooltip should open on
func (s *Server) handleTooltipPlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ViewportWidth <= 0 || req.Tooltip.Width < 0 || req.Tooltip.Height < 0 {
		writeError(w, r, badRequest("viewportWidth must be positive and tooltip size non-negative"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"side":    aqi.Place(req.Anchor, req.Tooltip, req.ViewportWidth),
	})
}

func countyParams(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	county := strings.TrimSpace(q.Get("county"))
	state := strings.TrimSpace(q.Get("state"))
	if county == "" || state == "" {
		return "", "", badRequest("County and state parameters are required")
	}
	return county, state, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("Invalid '%s' parameter: '%s'. Must be an integer.", name, raw)
	}
	return v, nil
}

// queryDays reads the days parameter, which must be at least 1
func queryDays(r *http.Request, def int) (int, error) {
	days, err := queryInt(r, "days", def)
	if err != nil {
		return 0, err
	}
	if days < 1 {
		return 0, badRequest("Invalid 'days' parameter: '%d'. Must be at least 1.", days)
	}
	return days, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return badRequest("Invalid '%s' parameter. Must be %s.", typeErr.Field, typeErr.Type)
		}
		return badRequest("invalid request body")
	}
	return nil
}
