package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"krishimitra/db"
	"krishimitra/market"
	"krishimitra/ml"
	"krishimitra/plant"
	"krishimitra/predict"
	"krishimitra/sensor"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

// requestError 请求本身不合法，消息直接返回给调用方
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

// mapError 将领域错误映射为HTTP错误响应
func mapError(err error) ErrorResponse {
	var (
		reqErr      *requestError
		missing     *ml.MissingFieldError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLarge    *http.MaxBytesError
		upstreamErr *market.UpstreamError
		loadErr     *ml.LoadError
	)

	switch {
	case errors.As(err, &reqErr):
		return ErrorResponse{http.StatusBadRequest, "INVALID_REQUEST", reqErr.msg}
	case errors.As(err, &missing):
		return ErrorResponse{http.StatusBadRequest, "INVALID_REQUEST", missing.Error()}
	case errors.Is(err, predict.ErrInvalidInput),
		errors.Is(err, sensor.ErrInvalidValue),
		errors.Is(err, plant.ErrInvalidImage),
		errors.Is(err, market.ErrMissingParam):
		return ErrorResponse{http.StatusBadRequest, "INVALID_REQUEST", err.Error()}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ErrorResponse{http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: " + err.Error()}
	case errors.As(err, &tooLarge):
		return ErrorResponse{http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body too large"}
	case errors.Is(err, ml.ErrModelUnavailable), errors.As(err, &loadErr):
		return ErrorResponse{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "model not loaded"}
	case errors.Is(err, plant.ErrNotConfigured):
		return ErrorResponse{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error()}
	case errors.Is(err, db.ErrNotFound):
		return ErrorResponse{http.StatusNotFound, "NOT_FOUND", err.Error()}
	case errors.As(err, &upstreamErr):
		status := upstreamErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		return ErrorResponse{status, "UPSTREAM_ERROR", upstreamErr.Error()}
	case errors.Is(err, plant.ErrInference):
		return ErrorResponse{http.StatusBadGateway, "UPSTREAM_ERROR", "plant inference failed"}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse{http.StatusGatewayTimeout, "TIMEOUT", "request timed out"}
	default:
		return ErrorResponse{http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"}
	}
}

// writeError 写出错误响应，5xx 记录完整错误
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	resp := mapError(err)
	if resp.StatusCode >= 500 {
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
	}
	writeJSON(w, resp.StatusCode, errorBody{
		Error:     errorInfo{Code: resp.Code, Message: resp.Message},
		RequestID: GetRequestID(r.Context()),
	})
}

// outcome 预测指标的结果标签
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch mapError(err).StatusCode {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
