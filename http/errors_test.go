package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"krishimitra/db"
	"krishimitra/market"
	"krishimitra/ml"
	"krishimitra/plant"
	"krishimitra/predict"
	"krishimitra/sensor"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing field", &ml.MissingFieldError{Field: "ph"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"non-finite input", fmt.Errorf("%w: %w", predict.ErrInvalidInput, ml.ErrNonFiniteInput), http.StatusBadRequest, "INVALID_REQUEST"},
		{"sensor value", sensor.ErrInvalidValue, http.StatusBadRequest, "INVALID_REQUEST"},
		{"image", plant.ErrInvalidImage, http.StatusBadRequest, "INVALID_REQUEST"},
		{"load error", &ml.LoadError{Kind: ml.NotFound, Path: "crop.json", Err: errors.New("gone")}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unavailable", fmt.Errorf("%w: crop", ml.ErrModelUnavailable), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"plant off", plant.ErrNotConfigured, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"no snapshot", db.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"upstream", &market.UpstreamError{Status: http.StatusTooManyRequests}, http.StatusTooManyRequests, "UPSTREAM_ERROR"},
		{"upstream odd status", &market.UpstreamError{Status: http.StatusNoContent}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{"internal", predict.ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	got := mapError(fmt.Errorf("%w: shape mismatch in /srv/models/x.json", predict.ErrInternal))
	assert.Equal(t, "internal server error", got.Message)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "invalid", outcome(&ml.MissingFieldError{Field: "N"}))
	assert.Equal(t, "unavailable", outcome(ml.ErrModelUnavailable))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
