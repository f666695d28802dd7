package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqi-service/aqi"
	"aqi-service/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ModelServiceClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewModelServiceClient(srv.URL+"/api/", 2*time.Second)
}

func TestModelServiceClient_PredictSingle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/aqi/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.PredictionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Cook", req.County)
		assert.Equal(t, "balanced", req.Model)
		assert.Equal(t, 1, req.Days)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"county":"Cook","state":"Illinois","forecast_date":"2024-04-01",
			"prediction":{"predicted_aqi":57.2,"predicted_category":"Moderate","probabilities":{"Moderate":0.6,"Good":0.4}}}`))
	})

	resp, err := client.Predict(context.Background(), models.PredictionRequest{County: "Cook", State: "Illinois", Model: "balanced", Days: 1})
	require.NoError(t, err)
	require.NotNil(t, resp.Next())
	assert.Equal(t, 57.2, resp.Next().PredictedAQI)
	assert.Equal(t, aqi.Moderate, resp.Next().PredictedCategory)
	assert.Equal(t, "ModelService", client.Name())
}

func TestModelServiceClient_PredictMulti(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"forecast_days":3,"predictions":[
			{"predicted_aqi":30,"predicted_category":"Good"},
			{"predicted_aqi":120,"predicted_category":"Unhealthy for Sensitive Groups"},
			{"predicted_aqi":40,"predicted_category":"Good"}]}`))
	})

	resp, err := client.Predict(context.Background(), models.PredictionRequest{County: "Cook", State: "Illinois", Days: 3})
	require.NoError(t, err)
	assert.Len(t, resp.Points(), 3)
	assert.Equal(t, 3, resp.ForecastDays)
}

func TestModelServiceClient_ErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"error":"Balanced model not loaded. Please train model first."}`))
	})

	_, err := client.Predict(context.Background(), models.PredictionRequest{County: "Cook", State: "Illinois", Days: 1})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "Balanced model not loaded. Please train model first.", statusErr.Message)
}

func TestModelServiceClient_PlainTextError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.ModelMetrics(context.Background(), "balanced")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "boom", statusErr.Message)
}

func TestModelServiceClient_UnsuccessfulEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Insufficient historical data"}`))
	})

	_, err := client.Predict(context.Background(), models.PredictionRequest{County: "Cook", State: "Illinois", Days: 1})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestModelServiceClient_ModelMetrics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/model/metrics", r.URL.Path)
		assert.Equal(t, "balanced", r.URL.Query().Get("model"))
		_, _ = w.Write([]byte(`{"success":true,"model_type":"balanced","metrics":{"mse":100.5,"rmse":10.02,"r2":0.71},"version":"v2"}`))
	})

	resp, err := client.ModelMetrics(context.Background(), "balanced")
	require.NoError(t, err)
	assert.Equal(t, "balanced", resp.ModelType)
	assert.Equal(t, "v2", resp.Version)
	assert.Equal(t, models.MetricsDisplay{MSE: "100.50", RMSE: "~10 AQI units", R2: "0.71"}, resp.Display)
}

func TestModelServiceClient_BadJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := client.ModelMetrics(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse metrics response")
}
