package http

import (
	"net/http"

	"krishimitra/db"
)

func (h *handlers) registerSensor(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sensor", h.handleSensorOverview)
	mux.HandleFunc("PUT /api/sensor", h.handleSensorIngest)
	mux.HandleFunc("GET /api/sensor/soil-health", h.handleSensorSoilHealth)
	mux.HandleFunc("GET /api/sensor/weather", h.handleSensorWeather)
	mux.HandleFunc("POST /api/sensor/update", h.handleSensorThreshold)
	mux.HandleFunc("POST /api/sensor/irrigate", h.handleSensorIrrigate)
	mux.HandleFunc("GET /api/sensor/health", h.handleSensorHealth)
	if h.deps.Hub != nil {
		mux.HandleFunc("GET /api/sensor/ws", h.deps.Hub.HandleWebSocket)
	}
}

func device(r *http.Request) string {
	return r.URL.Query().Get("device")
}

func (h *handlers) handleSensorOverview(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Sensor.Overview(r.Context(), device(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success(snap))
}

func (h *handlers) handleSensorIngest(w http.ResponseWriter, r *http.Request) {
	var snap db.Snapshot
	if err := decodeJSON(r, &snap); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.deps.Sensor.Ingest(r.Context(), device(r), snap); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "Sensor data stored successfully"})
}

func (h *handlers) handleSensorSoilHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.deps.Sensor.SoilHealth(r.Context(), device(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success(health))
}

func (h *handlers) handleSensorWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, success(h.deps.Sensor.Weather(r.Context())))
}

type thresholdUpdate struct {
	Threshold *float64 `json:"threshold"`
}

func (h *handlers) handleSensorThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Threshold == nil {
		writeError(w, r, h.logger, badRequest("threshold is required"))
		return
	}
	if err := h.deps.Sensor.SetThreshold(r.Context(), device(r), *req.Threshold); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "Threshold updated successfully"})
}

type irrigationUpdate struct {
	Irrigation *bool `json:"irrigation"`
}

func (h *handlers) handleSensorIrrigate(w http.ResponseWriter, r *http.Request) {
	var req irrigationUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Irrigation == nil {
		writeError(w, r, h.logger, badRequest("irrigation is required"))
		return
	}
	if err := h.deps.Sensor.SetIrrigation(r.Context(), device(r), *req.Irrigation); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "Irrigation status updated successfully"})
}

func (h *handlers) handleSensorHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sensor.Health(r.Context()))
}
