package predict

import (
	"context"
	"time"

	"go.uber.org/zap"

	"krishimitra/ml"
)

// Record is one served prediction, kept for auditing.
type Record struct {
	Model    string
	Features map[string]float64
	Output   any
	At       time.Time
}

// Recorder persists served predictions.
type Recorder interface {
	RecordPrediction(ctx context.Context, rec Record) error
}

// record never fails the request; audit errors are only logged.
func record(ctx context.Context, r Recorder, logger *zap.Logger, model string, vec ml.FeatureVector, out any) {
	if r == nil {
		return
	}
	features := make(map[string]float64, vec.Len())
	for i, name := range vec.Names {
		features[name] = vec.Values[i]
	}
	rec := Record{Model: model, Features: features, Output: out, At: time.Now()}
	if err := r.RecordPrediction(ctx, rec); err != nil {
		logger.Warn("record prediction", zap.String("model", model), zap.Error(err))
	}
}
