package ml

import "errors"

var (
	// ErrShapeMismatch is returned when a feature vector does not match the
	// width an artifact was trained on.
	ErrShapeMismatch = errors.New("feature shape mismatch")
	// ErrNonFiniteInput is returned when a feature value is NaN or infinite.
	ErrNonFiniteInput = errors.New("non-finite feature value")
	// ErrUnknownModel is returned for identifiers the store has no spec for.
	ErrUnknownModel = errors.New("unknown model")
)

// Classifier returns a probability distribution over a fixed label set.
// The distribution is aligned with Labels().
type Classifier interface {
	Labels() []string
	PredictProba(features []float64) ([]float64, error)
}

// Regressor returns a single scalar prediction.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

// MultiLabelClassifier scores several independent binary outputs from the
// same input.
type MultiLabelClassifier interface {
	Outputs() int
	Predict(features []float64) ([]bool, error)
	PredictProba(features []float64) ([]float64, error)
}

// Transformer rescales a feature vector before it reaches a model.
type Transformer interface {
	Transform(features []float64) ([]float64, error)
}
