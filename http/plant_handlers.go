package http

import (
	"errors"
	"io"
	"net/http"

	"krishimitra/monitoring"
	"krishimitra/plant"
)

const plantModelID = "plant_disease"

type plantImageRequest struct {
	Image string `json:"image"`
}

func (h *handlers) handlePlantPredict(w http.ResponseWriter, r *http.Request) {
	var req plantImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Image == "" {
		writeError(w, r, h.logger, badRequest("image is required"))
		return
	}
	img, err := plant.DecodeBase64(req.Image)
	h.classify(w, r, img, err)
}

func (h *handlers) handlePlantPredictFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, err)
			return
		}
		writeError(w, r, h.logger, badRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	img, err := plant.Validate(data, header.Header.Get("Content-Type"))
	h.classify(w, r, img, err)
}

func (h *handlers) classify(w http.ResponseWriter, r *http.Request, img *plant.Image, err error) {
	var pred *plant.Prediction
	if err == nil {
		pred, err = h.deps.Plant.Predict(r.Context(), img, GetRequestID(r.Context()))
	}
	monitoring.ObservePrediction(plantModelID, outcome(err))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success(pred))
}
