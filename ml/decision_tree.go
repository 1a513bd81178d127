package ml

import (
	"errors"
	"fmt"
	"math"
)

type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Value      []float64 `json:"value,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
}

// leaf walks the tree and returns the value stored at the reached leaf.
func (dt *DecisionTree) leaf(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("empty tree")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
	return nil, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) validate(nFeatures, valueWidth int) error {
	if len(dt.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Value) != valueWidth {
				return fmt.Errorf("node %d: leaf value width %d, want %d", i, len(node.Value), valueWidth)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) ||
			node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// ForestClassifier averages per-tree class distributions.
type ForestClassifier struct {
	Classes   []string       `json:"classes"`
	NFeatures int            `json:"n_features"`
	Trees     []DecisionTree `json:"trees"`
}

func (f *ForestClassifier) Labels() []string {
	return f.Classes
}

func (f *ForestClassifier) PredictProba(features []float64) ([]float64, error) {
	if err := checkInput(features, f.NFeatures); err != nil {
		return nil, err
	}
	proba := make([]float64, len(f.Classes))
	for i := range f.Trees {
		value, err := f.Trees[i].leaf(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if len(value) != len(proba) {
			return nil, fmt.Errorf("tree %d: %w: leaf width %d", i, ErrShapeMismatch, len(value))
		}
		total := 0.0
		for _, v := range value {
			total += v
		}
		if total <= 0 {
			continue
		}
		for j, v := range value {
			proba[j] += v / total
		}
	}
	for j := range proba {
		proba[j] /= float64(len(f.Trees))
	}
	return proba, nil
}

func (f *ForestClassifier) validate() error {
	if len(f.Classes) == 0 {
		return errors.New("classifier has no classes")
	}
	if f.NFeatures <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(f.Trees) == 0 {
		return errors.New("classifier has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.NFeatures, len(f.Classes)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// ForestRegressor averages the scalar leaf values of its trees.
type ForestRegressor struct {
	NFeatures int            `json:"n_features"`
	Trees     []DecisionTree `json:"trees"`
}

func (f *ForestRegressor) Predict(features []float64) (float64, error) {
	if err := checkInput(features, f.NFeatures); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range f.Trees {
		value, err := f.Trees[i].leaf(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		if len(value) != 1 {
			return 0, fmt.Errorf("tree %d: %w: leaf width %d", i, ErrShapeMismatch, len(value))
		}
		sum += value[0]
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *ForestRegressor) validate() error {
	if f.NFeatures <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(f.Trees) == 0 {
		return errors.New("regressor has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.NFeatures, 1); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// MultiOutputClassifier holds one binary forest per output. The positive
// class of each output is the last entry of its Classes.
type MultiOutputClassifier struct {
	NFeatures  int                `json:"n_features"`
	Estimators []ForestClassifier `json:"estimators"`
}

func (m *MultiOutputClassifier) Outputs() int {
	return len(m.Estimators)
}

// PredictProba returns the positive-class probability of every output.
func (m *MultiOutputClassifier) PredictProba(features []float64) ([]float64, error) {
	if err := checkInput(features, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(m.Estimators))
	for i := range m.Estimators {
		proba, err := m.Estimators[i].PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out[i] = proba[len(proba)-1]
	}
	return out, nil
}

// Predict returns true for an output when its positive class strictly wins
// the argmax; ties go to the first class.
func (m *MultiOutputClassifier) Predict(features []float64) ([]bool, error) {
	if err := checkInput(features, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]bool, len(m.Estimators))
	for i := range m.Estimators {
		proba, err := m.Estimators[i].PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out[i] = argmax(proba) == len(proba)-1
	}
	return out, nil
}

func (m *MultiOutputClassifier) validate() error {
	if m.NFeatures <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(m.Estimators) == 0 {
		return errors.New("multi-output classifier has no estimators")
	}
	for i := range m.Estimators {
		est := &m.Estimators[i]
		if est.NFeatures == 0 {
			est.NFeatures = m.NFeatures
		}
		if est.NFeatures != m.NFeatures {
			return fmt.Errorf("estimator %d: n_features %d, want %d", i, est.NFeatures, m.NFeatures)
		}
		if len(est.Classes) < 2 {
			return fmt.Errorf("estimator %d: need at least two classes", i)
		}
		if err := est.validate(); err != nil {
			return fmt.Errorf("estimator %d: %w", i, err)
		}
	}
	return nil
}

func checkInput(features []float64, want int) error {
	if len(features) != want {
		return fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(features), want)
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at position %d", ErrNonFiniteInput, i)
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
