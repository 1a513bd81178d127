package predict

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"krishimitra/ml"
)

// SoilModelID identifies the soil health model in the store.
const SoilModelID = "soil_health"

// IssueThreshold is the probability above which an issue counts as active.
const IssueThreshold = 0.5

// SoilFeatureNames is the training order of the soil model inputs.
var SoilFeatureNames = []string{
	"pH",
	"Nitrogen_ppm",
	"Phosphorus_ppm",
	"Potassium_ppm",
	"Organic_Carbon_percent",
	"Salinity_dS_m",
	"Temperature_C",
	"Rainfall_mm",
	"Clay_Content_percent",
	"Soil_Moisture_percent",
}

// SoilIssueNames is the output column order of the issue classifier.
var SoilIssueNames = []string{
	"Acidic_pH",
	"Alkaline_pH",
	"Low_Nitrogen",
	"High_Nitrogen",
	"Low_Phosphorus",
	"High_Phosphorus",
	"Low_Potassium",
	"High_Potassium",
	"Low_Organic_Carbon",
	"High_Organic_Carbon",
	"High_Salinity",
	"Poor_Texture",
	"Low_Soil_Moisture",
	"High_Soil_Moisture",
}

// SoilSpec returns the store spec for the soil model. The scaler is
// optional and skipped when scalerPath is empty.
func SoilSpec(healthPath, issuesPath, scalerPath string) ml.Spec {
	artifacts := []ml.ArtifactSpec{
		{Role: ml.RoleRegressor, Path: healthPath},
		{Role: ml.RoleMultiLabel, Path: issuesPath},
	}
	if scalerPath != "" {
		artifacts = append(artifacts, ml.ArtifactSpec{Role: ml.RoleScaler, Path: scalerPath})
	}
	return ml.Spec{ID: SoilModelID, Artifacts: artifacts}
}

// Category buckets a health index using inclusive lower bounds.
func Category(index float64) string {
	switch {
	case index >= 80:
		return "Excellent"
	case index >= 60:
		return "Good"
	case index >= 40:
		return "Moderate"
	case index >= 20:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// IssueFlag is either a boolean verdict or a positive-class probability.
type IssueFlag struct {
	Set         bool
	Probability float64
	Detailed    bool
}

// Active reports whether the flag marks an issue.
func (f IssueFlag) Active() bool {
	if f.Detailed {
		return f.Probability > IssueThreshold
	}
	return f.Set
}

func (f IssueFlag) MarshalJSON() ([]byte, error) {
	if f.Detailed {
		return json.Marshal(f.Probability)
	}
	return json.Marshal(f.Set)
}

// SoilHealth is the scored-with-flags prediction.
type SoilHealth struct {
	HealthIndex    float64              `json:"health_index"`
	HealthCategory string               `json:"health_category"`
	Issues         map[string]IssueFlag `json:"issues"`
	ActiveIssues   []string             `json:"active_issues"`
}

// SoilScorer runs the soil sub-models over one shared, scaled input.
type SoilScorer struct{}

// Score computes the health index, its category and the issue flags.
func (SoilScorer) Score(h *ml.Handle, vec ml.FeatureVector, detailed bool) (*SoilHealth, error) {
	if h.Regressor == nil || h.MultiLabel == nil {
		return nil, classify(errors.New("soil model is missing a sub-model"))
	}
	if h.MultiLabel.Outputs() != len(SoilIssueNames) {
		return nil, classify(ml.ErrShapeMismatch)
	}

	input := vec.Values
	if h.Scaler != nil {
		scaled, err := h.Scaler.Transform(input)
		if err != nil {
			return nil, classify(err)
		}
		input = scaled
	}

	index, err := h.Regressor.Predict(input)
	if err != nil {
		return nil, classify(err)
	}

	flags := make([]IssueFlag, len(SoilIssueNames))
	if detailed {
		proba, err := h.MultiLabel.PredictProba(input)
		if err != nil {
			return nil, classify(err)
		}
		for i, p := range proba {
			flags[i] = IssueFlag{Probability: p, Detailed: true}
		}
	} else {
		set, err := h.MultiLabel.Predict(input)
		if err != nil {
			return nil, classify(err)
		}
		for i, v := range set {
			flags[i] = IssueFlag{Set: v}
		}
	}

	out := &SoilHealth{
		HealthIndex:    index,
		HealthCategory: Category(index),
		Issues:         make(map[string]IssueFlag, len(SoilIssueNames)),
		ActiveIssues:   []string{},
	}
	for i, name := range SoilIssueNames {
		out.Issues[name] = flags[i]
		if flags[i].Active() {
			out.ActiveIssues = append(out.ActiveIssues, strings.ReplaceAll(name, "_", " "))
		}
	}
	return out, nil
}

// SoilService serves soil health predictions end to end.
type SoilService struct {
	guard    *ml.Guard
	scorer   SoilScorer
	recorder Recorder
	logger   *zap.Logger
}

// NewSoilService creates a soil service backed by guard. recorder may be nil.
func NewSoilService(guard *ml.Guard, recorder Recorder, logger *zap.Logger) *SoilService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SoilService{guard: guard, recorder: recorder, logger: logger.Named("soil")}
}

// Predict scores raw soil readings. With detailed set, issues are reported
// as probabilities instead of booleans.
func (s *SoilService) Predict(ctx context.Context, raw map[string]float64, detailed bool) (*SoilHealth, error) {
	avail := s.guard.EnsureLoaded(ctx, SoilModelID)
	if avail.Status != ml.Ready {
		return nil, avail.Error(SoilModelID)
	}

	vec, err := ml.Assemble(raw, SoilFeatureNames)
	if err != nil {
		return nil, err
	}

	res, err := s.scorer.Score(avail.Handle, vec, detailed)
	if err != nil {
		if errors.Is(err, ErrInternal) {
			s.logger.Error("soil prediction failed", zap.Error(err))
		}
		return nil, err
	}
	record(ctx, s.recorder, s.logger, SoilModelID, vec, res)
	return res, nil
}

// Health reports the soil model state.
func (s *SoilService) Health(ctx context.Context) ml.Health {
	return s.guard.Health(ctx, SoilModelID)
}
