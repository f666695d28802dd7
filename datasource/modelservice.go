package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"aqi-service/metrics"
	"aqi-service/models"
)

// ModelServiceClient talks to the upstream AQI model service over HTTP
type ModelServiceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewModelServiceClient creates a client for the service rooted at baseURL,
// e.g. http://localhost:5001/api
func NewModelServiceClient(baseURL string, timeout time.Duration) *ModelServiceClient {
	return &ModelServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the source name
func (c *ModelServiceClient) Name() string {
	return "ModelService"
}

// Predict requests a forecast for a county
func (c *ModelServiceClient) Predict(ctx context.Context, req models.PredictionRequest) (models.PredictionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.PredictionResponse{}, eris.Wrap(err, "datasource: encode prediction request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/aqi/predict", bytes.NewReader(payload))
	if err != nil {
		return models.PredictionResponse{}, eris.Wrap(err, "datasource: create predict request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp models.PredictionResponse
	if err := c.do(httpReq, "predict", &resp); err != nil {
		return models.PredictionResponse{}, err
	}
	if !resp.Success {
		return models.PredictionResponse{}, eris.Wrap(&StatusError{StatusCode: http.StatusBadGateway, Message: resp.Error}, "datasource: predict")
	}

	zap.L().Debug("prediction fetched",
		zap.String("operation", "prediction"),
		zap.String("county", req.County),
		zap.String("state", req.State),
		zap.Int("days", req.Days),
		zap.Int("points", len(resp.Points())),
	)
	return resp, nil
}

// ModelMetrics fetches evaluation metrics for a model
func (c *ModelServiceClient) ModelMetrics(ctx context.Context, model string) (models.MetricsResponse, error) {
	params := url.Values{}
	if model != "" {
		params.Add("model", model)
	}
	endpoint := c.baseURL + "/model/metrics"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.MetricsResponse{}, eris.Wrap(err, "datasource: create metrics request")
	}

	var resp models.MetricsResponse
	if err := c.do(httpReq, "metrics", &resp); err != nil {
		return models.MetricsResponse{}, err
	}
	resp.Display = resp.Metrics.Display()
	return resp, nil
}

// do executes req and decodes a 200 JSON body into out. Non-200 replies are
// returned as a wrapped *StatusError carrying the service's error message.
func (c *ModelServiceClient) do(req *http.Request, operation string, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordUpstream(operation, status, time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "datasource: %s request", operation)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "datasource: read %s response", operation)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
		status = http.StatusText(resp.StatusCode)
		return eris.Wrapf(&StatusError{StatusCode: resp.StatusCode, Message: msg}, "datasource: %s", operation)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "datasource: parse %s response", operation)
	}
	status = "ok"
	return nil
}

var _ Source = (*ModelServiceClient)(nil)
