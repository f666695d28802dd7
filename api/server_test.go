package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqi-service/aqi"
	"aqi-service/datasource"
	"aqi-service/models"
	"aqi-service/store"
)

type fakeSource struct {
	predict func(req models.PredictionRequest) (models.PredictionResponse, error)
	metrics func(model string) (models.MetricsResponse, error)
}

func (f *fakeSource) Predict(_ context.Context, req models.PredictionRequest) (models.PredictionResponse, error) {
	return f.predict(req)
}

func (f *fakeSource) ModelMetrics(_ context.Context, model string) (models.MetricsResponse, error) {
	return f.metrics(model)
}

func (f *fakeSource) Name() string { return "fake" }

func defaultSource() *fakeSource {
	return &fakeSource{
		predict: func(req models.PredictionRequest) (models.PredictionResponse, error) {
			if req.Days == 1 {
				return models.PredictionResponse{
					Success:      true,
					County:       req.County,
					State:        req.State,
					ForecastDate: "2024-04-01",
					Prediction: &aqi.ForecastPoint{
						PredictedAQI:      63.4,
						PredictedCategory: aqi.Moderate,
						Probabilities:     map[string]float64{"Good": 0.2, "Moderate": 0.7, "Unhealthy": 0.1},
					},
				}, nil
			}
			points := make([]aqi.ForecastPoint, req.Days)
			for i := range points {
				points[i] = aqi.ForecastPoint{PredictedAQI: float64(40 + 20*i), PredictedCategory: aqi.Classify(float64(40 + 20*i)), ForecastDate: "ignored"}
			}
			return models.PredictionResponse{Success: true, County: req.County, State: req.State, ForecastDays: req.Days, Predictions: points}, nil
		},
		metrics: func(model string) (models.MetricsResponse, error) {
			mse, r2 := 120.5, 0.71
			m := models.ModelMetrics{MSE: &mse, R2: &r2}
			return models.MetricsResponse{Success: true, ModelType: model, Metrics: m, Display: m.Display()}, nil
		},
	}
}

func newTestServer(t *testing.T, source datasource.Source) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	_, err := st.UpsertSamples(context.Background(), []models.AqiSample{
		{County: "Cook", State: "Illinois", Date: "2024-03-28", AQI: 42, Category: "Good", DefiningParameter: "PM2.5"},
		{County: "Cook", State: "Illinois", Date: "2024-03-29", AQI: 88, Category: "Moderate", DefiningParameter: "Ozone"},
		{County: "Cook", State: "Illinois", Date: "2024-03-30", AQI: 155, DefiningParameter: "PM2.5"},
		{County: "Harris", State: "Texas", Date: "2024-03-30", AQI: 61, Category: "Moderate", DefiningParameter: "Ozone"},
	})
	require.NoError(t, err)

	srv := NewServer(st, source, Options{
		Port:         0,
		DefaultModel: "balanced",
		Now:          func() time.Time { return time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC) },
	})
	return srv, st
}

func doRequest(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["store"])
	assert.Equal(t, true, body["database_connected"])
	assert.Equal(t, true, body["upstream_configured"])
}

func TestCategories(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success    bool `json:"success"`
		Categories []struct {
			Name     string `json:"name"`
			Low      int    `json:"low"`
			High     int    `json:"high"`
			Color    string `json:"color"`
			Advisory string `json:"advisory"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Categories, 6)
	assert.Equal(t, "Good", body.Categories[0].Name)
	assert.Equal(t, 50, body.Categories[0].High)
	assert.Equal(t, "#7E0023", body.Categories[5].Color)
	assert.NotEmpty(t, body.Categories[2].Advisory)
}

func TestCounties(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/counties", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, []any{"Illinois", "Texas"}, body["states"])

	rec = doRequest(t, srv, http.MethodGet, "/api/counties?state=Texas", nil)
	body = decode(t, rec)
	counties := body["counties"].([]any)
	require.Len(t, counties, 1)
	assert.Equal(t, "Harris, Texas", counties[0].(map[string]any)["display_name"])
}

func TestHistorical(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/historical?county=Cook&state=Illinois&days=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.HistoricalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "2024-03-29", body.Data[0].Date)
	assert.Equal(t, "Unhealthy", body.Data[1].Category)
	assert.Equal(t, "memory", body.Source)
}

func TestHistorical_Validation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/historical?county=Cook", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "County and state parameters are required", body["error"])

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/historical?county=Cook&state=Illinois&days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Must be an integer")

	for _, days := range []string{"0", "-3"} {
		rec = doRequest(t, srv, http.MethodGet, "/api/aqi/historical?county=Cook&state=Illinois&days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
		assert.Equal(t, "Invalid 'days' parameter: '"+days+"'. Must be at least 1.", decode(t, rec)["error"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/chart?county=Cook&state=Illinois&days=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict_SingleDay(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success       bool              `json:"success"`
		ForecastDate  string            `json:"forecast_date"`
		Prediction    aqi.ForecastPoint `json:"prediction"`
		Probabilities []aqi.Probability `json:"probabilities"`
		Summary       *summaryView      `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "2024-04-01", body.ForecastDate)
	assert.Equal(t, aqi.Moderate, body.Prediction.PredictedCategory)
	require.Len(t, body.Probabilities, 3)
	assert.Equal(t, aqi.Moderate, body.Probabilities[0].Category)
	assert.Equal(t, "70.0%", body.Probabilities[0].Percent)
	assert.Nil(t, body.Summary)
}

func TestPredict_MultiDay(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois", "days": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ForecastDays int                     `json:"forecast_days"`
		Predictions  []aqi.ForecastPoint     `json:"predictions"`
		Series       []aqi.LabeledPrediction `json:"series"`
		Summary      struct {
			AverageAQI         float64      `json:"averageAqi"`
			MostCommonCategory aqi.Category `json:"mostCommonCategory"`
			Range              string       `json:"range"`
			Color              string       `json:"color"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.ForecastDays)
	require.Len(t, body.Predictions, 3)
	assert.Equal(t, 60.0, body.Summary.AverageAQI)
	assert.Equal(t, "40 - 80", body.Summary.Range)
	assert.Equal(t, aqi.Moderate, body.Summary.MostCommonCategory)
	assert.Equal(t, "#FFFF00", body.Summary.Color)
	require.Len(t, body.Series, 3)
	assert.Equal(t, "2024-04-01", body.Series[0].Date)
	assert.Equal(t, "2024-04-03", body.Series[2].Date)
}

func TestPredict_InvalidDays(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois", "days": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid 'days' value: 5. Must be one of: 1, 3, 7, 14", decode(t, rec)["error"])

	rec = doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois", "days": "three"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "", "state": "Illinois"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "county and state are required", decode(t, rec)["error"])
}

func TestPredict_UpstreamErrors(t *testing.T) {
	source := defaultSource()
	source.predict = func(models.PredictionRequest) (models.PredictionResponse, error) {
		return models.PredictionResponse{}, eris.Wrap(&datasource.StatusError{StatusCode: 503, Message: "Balanced model not loaded"}, "datasource: predict")
	}
	srv, _ := newTestServer(t, source)

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Balanced model not loaded", decode(t, rec)["error"])

	source.predict = func(models.PredictionRequest) (models.PredictionResponse, error) {
		return models.PredictionResponse{}, eris.Wrap(&datasource.StatusError{StatusCode: 500, Message: "boom"}, "datasource: predict")
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPredict_NoUpstream(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/predict", map[string]any{"county": "Cook", "state": "Illinois"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/model/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefresh(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/refresh", map[string]any{"county": "Cook", "state": "Illinois", "history_days": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success    bool                      `json:"success"`
		Historical models.HistoricalResponse `json:"historical"`
		Prediction struct {
			ForecastDate string `json:"forecast_date"`
		} `json:"prediction"`
		Chart struct {
			Series  aqi.CombinedSeries `json:"series"`
			AxisMax float64            `json:"axisMax"`
			Stats   struct {
				Average *float64 `json:"average"`
				Latest  *float64 `json:"latest"`
			} `json:"stats"`
		} `json:"chart"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Historical.Count)
	assert.Equal(t, "2024-04-01", body.Prediction.ForecastDate)
	require.Len(t, body.Chart.Series.Points, 3)
	assert.True(t, body.Chart.Series.HasForecast)
	assert.Equal(t, 63.0, body.Chart.Series.Points[2].Value)
	assert.Equal(t, "2024-04-01", body.Chart.Series.Points[2].Date)
	assert.Equal(t, 200.0, body.Chart.AxisMax)
	require.NotNil(t, body.Chart.Stats.Average)
	assert.Equal(t, 122.0, *body.Chart.Stats.Average)
	assert.Equal(t, 155.0, *body.Chart.Stats.Latest)
	assert.Equal(t, 1, srv.views.Len())
}

func TestRefresh_PropagatesFailure(t *testing.T) {
	source := defaultSource()
	source.predict = func(models.PredictionRequest) (models.PredictionResponse, error) {
		return models.PredictionResponse{}, errors.New("connection refused")
	}
	srv, _ := newTestServer(t, source)

	rec := doRequest(t, srv, http.MethodPost, "/api/aqi/refresh", map[string]any{"county": "Cook", "state": "Illinois"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestChart(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/chart?county=Cook&state=Illinois", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body chartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 200.0, body.AxisMax)
	assert.Equal(t, aqi.PlotArea{Left: 48, Right: 884, Top: 16, Bottom: 348}, body.Plot)
	assert.Len(t, body.Thresholds, 6)
	assert.Len(t, body.Bands, 8)
	assert.False(t, body.Series.HasForecast)
	assert.Equal(t, "#FF0000", body.Series.Points[2].Color)
}

func TestChart_WithForecast(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/chart?county=Cook&state=Illinois&forecast=true&width=600&height=300", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body chartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Series.HasForecast)
	assert.Len(t, body.Series.Points, 4)
	assert.Equal(t, 584.0, body.Plot.Right)

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/chart?county=Cook&state=Illinois&width=10", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/chart?county=Cook&state=Illinois&forecast=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChartImage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/chart.png?county=Cook&state=Illinois&width=600&height=300", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/chart.png?county=Cook&state=Illinois&format=svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "<svg"))

	view := srv.views.Get("Cook", "Illinois")
	assert.Equal(t, uint64(2), view.Version())
	assert.NotEmpty(t, view.Bands())
	assert.Equal(t, 1, srv.views.Len())
}

func TestChartImage_ConcurrentRequestsKeepTheirSize(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	const requests = 24
	codes := make([]int, requests)
	widths := make([]int, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			width := 100 + 100*(i%2)
			target := fmt.Sprintf("/api/aqi/chart.png?county=Cook&state=Illinois&width=%d&height=100&forecast=%t", width, i%2 == 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			codes[i] = rec.Code
			if cfg, err := png.DecodeConfig(rec.Body); err == nil {
				widths[i] = cfg.Width
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		require.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, 100+100*(i%2), widths[i], "request %d got another request's image", i)
	}
	assert.Equal(t, 1, srv.views.Len())
}

func TestChartImage_NoData(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/chart.png?county=Nowhere&state=Nevada", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestModelMetrics(t *testing.T) {
	srv, _ := newTestServer(t, defaultSource())

	rec := doRequest(t, srv, http.MethodGet, "/api/model/metrics?model=enhanced", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.MetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "enhanced", body.ModelType)
	assert.Equal(t, "120.50", body.Display.MSE)
	assert.Equal(t, "--", body.Display.RMSE)
}

func TestPredictionLog(t *testing.T) {
	srv, st := newTestServer(t, nil)
	require.NoError(t, st.SavePredictions(context.Background(), []models.PredictionRecord{
		{County: "Cook", State: "Illinois", Model: "balanced", ForecastDate: "2024-04-01", PredictedAQI: 57, PredictedCategory: aqi.Moderate, HorizonDays: 1},
		{County: "Harris", State: "Texas", Model: "balanced", ForecastDate: "2024-04-01", PredictedAQI: 33, PredictedCategory: aqi.Good, HorizonDays: 1},
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/aqi/predictions/log?county=Cook", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["count"])

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/predictions/log?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTooltipPlace(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/tooltip/place", map[string]any{
		"anchor":        map[string]float64{"left": 700, "top": 10, "right": 900, "bottom": 30},
		"tooltip":       map[string]float64{"width": 200, "height": 80},
		"viewportWidth": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "left", decode(t, rec)["side"])

	rec = doRequest(t, srv, http.MethodPost, "/api/tooltip/place", map[string]any{"viewportWidth": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundAndMethod(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", decode(t, rec)["error"])

	rec = doRequest(t, srv, http.MethodGet, "/api/aqi/predict", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	doRequest(t, srv, http.MethodGet, "/api/health", nil)

	rec := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aqi_http_requests_total")
}

func TestClassify(t *testing.T) {
	status, msg := classify(eris.Wrap(context.DeadlineExceeded, "datasource: predict request"))
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "model service timed out", msg)

	status, _ = classify(eris.Wrap(&datasource.StatusError{StatusCode: 404, Message: "unknown county"}, "datasource: predict"))
	assert.Equal(t, http.StatusNotFound, status)

	status, msg = classify(eris.New("store: broken"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "store: broken", msg)
}
