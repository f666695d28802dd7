package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"aqi-service/datasource"
	"aqi-service/models"
	"aqi-service/render"
)

// ErrUpstreamDisabled is returned when no model service is configured.
var ErrUpstreamDisabled = eris.New("api: model service not configured")

// errBadRequest marks request parsing failures.
var errBadRequest = eris.New("api: bad request")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeError maps err to a status code and a client-facing message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeMessage(w, status, msg)
}

func classify(err error) (int, string) {
	var statusErr *datasource.StatusError
	switch {
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, outerMessage(err)
	case errors.Is(err, render.ErrNoData):
		return http.StatusNotFound, "no data available for the requested county"
	case errors.Is(err, ErrUpstreamDisabled):
		return http.StatusServiceUnavailable, outerMessage(err)
	case errors.As(err, &statusErr):
		return upstreamStatus(statusErr.StatusCode), statusErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "model service timed out"
	default:
		return http.StatusInternalServerError, outerMessage(err)
	}
}

// upstreamStatus passes client errors and unavailability through and maps
// everything else to 502.
func upstreamStatus(code int) int {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable:
		return code
	default:
		return http.StatusBadGateway
	}
}

// outerMessage returns the outermost message of an eris chain.
func outerMessage(err error) string {
	up := eris.Unpack(err)
	if n := len(up.ErrChain); n > 0 {
		return up.ErrChain[n-1].Msg
	}
	if up.ErrRoot.Msg != "" {
		return up.ErrRoot.Msg
	}
	return err.Error()
}

func badRequest(format string, args ...any) error {
	return eris.Wrapf(errBadRequest, format, args...)
}
