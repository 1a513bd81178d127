package predict

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"krishimitra/ml"
)

// CropModelID identifies the crop recommendation model in the store.
const CropModelID = "crop_recommendation"

// TopK is the maximum number of crops returned for one request.
const TopK = 5

// CropFeatureNames is the training order of the crop classifier inputs.
var CropFeatureNames = []string{"N", "P", "K", "temperature", "humidity", "ph", "rainfall"}

// CropSpec returns the store spec for the crop model.
func CropSpec(classifierPath string) ml.Spec {
	return ml.Spec{
		ID:        CropModelID,
		Artifacts: []ml.ArtifactSpec{{Role: ml.RoleClassifier, Path: classifierPath}},
	}
}

// Recommendation is one ranked crop.
type Recommendation struct {
	Crop       string  `json:"crop"`
	Confidence float64 `json:"confidence_score"`
}

// CropResult is the response body of a crop prediction.
type CropResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Timestamp       string           `json:"timestamp"`
}

// CropRanker ranks the labels of a classifier by probability.
type CropRanker struct {
	K int
}

// Rank scores vec and returns at most K labels, highest probability first.
// Equal probabilities keep the classifier's label order.
func (r CropRanker) Rank(clf ml.Classifier, vec ml.FeatureVector) ([]Recommendation, error) {
	if clf == nil {
		return nil, classify(errors.New("crop model has no classifier"))
	}
	proba, err := clf.PredictProba(vec.Values)
	if err != nil {
		return nil, classify(err)
	}
	labels := clf.Labels()
	if len(labels) != len(proba) {
		return nil, classify(ml.ErrShapeMismatch)
	}

	ranked := make([]Recommendation, len(labels))
	for i, label := range labels {
		ranked[i] = Recommendation{Crop: label, Confidence: proba[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	k := r.K
	if k <= 0 {
		k = TopK
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// CropService serves crop recommendations end to end.
type CropService struct {
	guard    *ml.Guard
	ranker   CropRanker
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewCropService creates a crop service backed by guard. recorder may be nil.
func NewCropService(guard *ml.Guard, recorder Recorder, logger *zap.Logger) *CropService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CropService{
		guard:    guard,
		ranker:   CropRanker{K: TopK},
		recorder: recorder,
		logger:   logger.Named("crop"),
		now:      time.Now,
	}
}

// Predict ensures the model is loaded, assembles raw into the training
// order and ranks the crops.
func (s *CropService) Predict(ctx context.Context, raw map[string]float64) (*CropResult, error) {
	avail := s.guard.EnsureLoaded(ctx, CropModelID)
	if avail.Status != ml.Ready {
		return nil, avail.Error(CropModelID)
	}

	vec, err := ml.Assemble(raw, CropFeatureNames)
	if err != nil {
		return nil, err
	}

	recs, err := s.ranker.Rank(avail.Handle.Classifier, vec)
	if err != nil {
		if errors.Is(err, ErrInternal) {
			s.logger.Error("crop prediction failed", zap.Error(err))
		}
		return nil, err
	}

	res := &CropResult{
		Recommendations: recs,
		Timestamp:       s.now().UTC().Format(time.RFC3339),
	}
	record(ctx, s.recorder, s.logger, CropModelID, vec, res)
	return res, nil
}

// Health reports the crop model state.
func (s *CropService) Health(ctx context.Context) ml.Health {
	return s.guard.Health(ctx, CropModelID)
}
