package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"aqi-service/aqi"
	"aqi-service/metrics"
	"aqi-service/models"
	"aqi-service/render"
)

// Plot margins, in pixels, used for chart payload geometry.
const (
	marginLeft   = 48
	marginRight  = 16
	marginTop    = 16
	marginBottom = 32
)

type chartResponse struct {
	Success    bool               `json:"success"`
	County     string             `json:"county"`
	State      string             `json:"state"`
	Series     aqi.CombinedSeries `json:"series"`
	Stats      aqi.Stats          `json:"stats"`
	AxisMax    float64            `json:"axisMax"`
	Plot       aqi.PlotArea       `json:"plot"`
	Thresholds []aqi.Threshold    `json:"thresholds"`
	Bands      []aqi.DrawCommand  `json:"bands"`
}

func plotArea(width, height int) aqi.PlotArea {
	return aqi.PlotArea{
		Left:   marginLeft,
		Right:  float64(width - marginRight),
		Top:    marginTop,
		Bottom: float64(height - marginBottom),
	}
}

func chartPayload(county, state string, series aqi.CombinedSeries, width, height int) chartResponse {
	axisMax := aqi.AxisMax(series.Values())
	plot := plotArea(width, height)
	geom := aqi.ChartGeometry{
		Plot:         plot,
		ValueToPixel: aqi.LinearScale(0, axisMax, plot.Bottom, plot.Top),
	}
	thresholds := aqi.Thresholds()
	bands := aqi.RenderBands(thresholds, geom)
	metrics.RecordBands(len(bands))

	return chartResponse{
		Success:    true,
		County:     county,
		State:      state,
		Series:     series,
		Stats:      aqi.ComputeStats(series),
		AxisMax:    axisMax,
		Plot:       plot,
		Thresholds: thresholds,
		Bands:      bands,
	}
}

type chartQuery struct {
	county   string
	state    string
	days     int
	width    int
	height   int
	forecast bool
	model    string
}

func (s *Server) parseChartQuery(r *http.Request) (chartQuery, error) {
	county, state, err := countyParams(r)
	if err != nil {
		return chartQuery{}, err
	}
	q := chartQuery{county: county, state: state}

	if q.days, err = queryDays(r, s.opts.HistoryDays); err != nil {
		return chartQuery{}, err
	}
	if q.width, err = queryInt(r, "width", s.opts.ChartWidth); err != nil {
		return chartQuery{}, err
	}
	if q.height, err = queryInt(r, "height", s.opts.ChartHeight); err != nil {
		return chartQuery{}, err
	}
	if q.width < 100 || q.height < 100 || q.width > 4000 || q.height > 4000 {
		return chartQuery{}, badRequest("width and height must be between 100 and 4000")
	}

	if raw := r.URL.Query().Get("forecast"); raw != "" {
		if q.forecast, err = strconv.ParseBool(raw); err != nil {
			return chartQuery{}, badRequest("Invalid 'forecast' parameter: '%s'", raw)
		}
	}
	q.model = strings.TrimSpace(r.URL.Query().Get("model"))
	return q, nil
}

// series loads history and, when asked, the next-day forecast
func (s *Server) series(ctx context.Context, q chartQuery) (aqi.CombinedSeries, error) {
	hist, err := s.history(ctx, q.county, q.state, q.days)
	if err != nil {
		return aqi.CombinedSeries{}, err
	}

	var next *aqi.ForecastPoint
	if q.forecast {
		view, err := s.predict(ctx, models.PredictionRequest{County: q.county, State: q.state, Model: q.model, Days: 1})
		if err != nil {
			return aqi.CombinedSeries{}, err
		}
		next = view.Next()
	}
	return s.composer.Compose(models.Samples(hist.Data), next), nil
}

// handleChart returns the combined series, statistics and band geometry
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseChartQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	series, err := s.series(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chartPayload(q.county, q.state, series, q.width, q.height))
}

// handleChartImage renders the county's chart view as PNG or SVG
func (s *Server) handleChartImage(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseChartQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	format := render.PNG
	if strings.EqualFold(r.URL.Query().Get("format"), string(render.SVG)) {
		format = render.SVG
	}

	series, err := s.series(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view := s.views.Get(q.county, q.state)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	if err := view.Draw(series, q.width, q.height, w, format); err != nil {
		w.Header().Del("Cache-Control")
		writeError(w, r, err)
	}
}
