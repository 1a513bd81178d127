package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"krishimitra/market"
	"krishimitra/monitoring"
	"krishimitra/predict"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)

	if h.deps.Crop != nil {
		mux.HandleFunc("POST /crop/predict", h.handleCropPredict)
		mux.HandleFunc("GET /crop/health", h.handleCropHealth)
	}
	if h.deps.Soil != nil {
		mux.HandleFunc("POST /soil/predict", h.handleSoilPredict(false))
		mux.HandleFunc("POST /soil/predict/detailed", h.handleSoilPredict(true))
		mux.HandleFunc("GET /soil/health", h.handleSoilHealth)
	}
	if h.deps.Plant != nil {
		mux.HandleFunc("POST /plant/predict", h.handlePlantPredict)
		mux.HandleFunc("POST /plant/predict/file", h.handlePlantPredictFile)
	}
	if h.deps.Market != nil {
		mux.HandleFunc("GET /api/market/insights", h.handleMarketInsights)
	}
	if h.deps.Sensor != nil {
		h.registerSensor(mux)
	}
	if h.deps.Guard != nil {
		mux.HandleFunc("POST /admin/models/{id}/reload", h.handleModelReload)
		mux.HandleFunc("GET /admin/models/{id}/health", h.handleModelHealth)
	}
	if h.deps.Predictions != nil {
		mux.HandleFunc("GET /admin/predictions", h.handleRecentPredictions)
	}
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to KrishiMitra API",
		"endpoints": map[string]string{
			"/plant/predict":            "Plant disease detection",
			"/soil/predict":             "Soil health prediction",
			"/soil/predict/detailed":    "Detailed soil health prediction",
			"/crop/predict":             "Crop recommendation",
			"/crop/health":              "Crop recommendation health check",
			"/api/sensor":               "Get sensor data",
			"/api/sensor/update":        "Update sensor threshold",
			"/api/sensor/irrigate":      "Update irrigation status",
			"/api/market/insights":      "Market price insights",
			"/api/sensor/ws":            "Live sensor updates",
			"/admin/models/{id}/reload": "Reload a model from disk",
			"/metrics":                  "Prometheus metrics",
		},
	})
}

func (h *handlers) handleCropPredict(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeFeatures(r, predict.CropFeatureNames)
	var res *predict.CropResult
	if err == nil {
		res, err = h.deps.Crop.Predict(r.Context(), raw)
	}
	monitoring.ObservePrediction(predict.CropModelID, outcome(err))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) handleCropHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Crop.Health(r.Context()))
}

func (h *handlers) handleSoilPredict(detailed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := decodeFeatures(r, predict.SoilFeatureNames)
		var res *predict.SoilHealth
		if err == nil {
			res, err = h.deps.Soil.Predict(r.Context(), raw, detailed)
		}
		monitoring.ObservePrediction(predict.SoilModelID, outcome(err))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handlers) handleSoilHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Soil.Health(r.Context()))
}

func (h *handlers) handleMarketInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := h.deps.Market.Insights(r.Context(), market.Query{
		Commodity: q.Get("commodity"),
		State:     q.Get("state"),
		Market:    q.Get("market"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) handleModelReload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.deps.Guard.Store().Spec(id); !ok {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:     errorInfo{Code: "NOT_FOUND", Message: "unknown model: " + id},
			RequestID: GetRequestID(r.Context()),
		})
		return
	}

	if err := h.deps.Guard.Reload(r.Context(), id); err != nil {
		h.logger.Warn("model reload failed", zap.String("model", id), zap.Error(err))
	} else {
		h.logger.Info("model reloaded", zap.String("model", id))
	}
	writeJSON(w, http.StatusOK, h.deps.Guard.Health(r.Context(), id))
}

func (h *handlers) handleModelHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.deps.Guard.Store().Spec(id); !ok {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:     errorInfo{Code: "NOT_FOUND", Message: "unknown model: " + id},
			RequestID: GetRequestID(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Guard.Health(r.Context(), id))
}

func (h *handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		writeError(w, r, h.logger, badRequest("model is required"))
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeError(w, r, h.logger, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(l, 1000)
	}
	rows, err := h.deps.Predictions.RecentPredictions(r.Context(), model, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success(rows))
}
