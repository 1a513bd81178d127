// Package mltest writes small, deterministic model artifacts for tests.
package mltest

import (
	"os"
	"path/filepath"
	"testing"

	"krishimitra/ml"
)

// Leaf returns a leaf node holding value.
func Leaf(value ...float64) ml.TreeNode {
	return ml.TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: value, IsLeaf: true}
}

// Stump is a depth-one tree: feature <= threshold goes left.
func Stump(feature int, threshold float64, left, right []float64) ml.DecisionTree {
	return ml.DecisionTree{Nodes: []ml.TreeNode{
		{FeatureIdx: feature, Threshold: threshold, LeftChild: 1, RightChild: 2},
		Leaf(left...),
		Leaf(right...),
	}}
}

// Constant is a single-leaf tree.
func Constant(value ...float64) ml.DecisionTree {
	return ml.DecisionTree{Nodes: []ml.TreeNode{Leaf(value...)}}
}

// Write saves model under dir/rel, creating parent directories.
func Write(tb testing.TB, dir, rel, kind string, model any) string {
	tb.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := ml.SaveModel(path, kind, model); err != nil {
		tb.Fatalf("save model: %v", err)
	}
	return path
}

// CropClassifier splits on the first feature at 50. Below the split the
// first class dominates, above it the last one does.
func CropClassifier(classes []string, nFeatures int) *ml.ForestClassifier {
	left := make([]float64, len(classes))
	right := make([]float64, len(classes))
	for i := range classes {
		left[i] = float64(len(classes) - i)
		right[i] = float64(i + 1)
	}
	return &ml.ForestClassifier{
		Classes:   classes,
		NFeatures: nFeatures,
		Trees:     []ml.DecisionTree{Stump(0, 50, left, right)},
	}
}

// SoilRegressor returns high when the first scaled feature is <= threshold,
// low otherwise.
func SoilRegressor(nFeatures int, threshold, high, low float64) *ml.ForestRegressor {
	return &ml.ForestRegressor{
		NFeatures: nFeatures,
		Trees:     []ml.DecisionTree{Stump(0, threshold, []float64{high}, []float64{low})},
	}
}

// SoilIssues builds one constant binary estimator per probability given;
// each estimator reports that positive-class probability.
func SoilIssues(nFeatures int, positive []float64) *ml.MultiOutputClassifier {
	est := make([]ml.ForestClassifier, len(positive))
	for i, p := range positive {
		est[i] = ml.ForestClassifier{
			Classes:   []string{"0", "1"},
			NFeatures: nFeatures,
			Trees:     []ml.DecisionTree{Constant(1-p, p)},
		}
	}
	return &ml.MultiOutputClassifier{NFeatures: nFeatures, Estimators: est}
}

// IdentityScaler leaves features unchanged.
func IdentityScaler(nFeatures int) *ml.StandardScaler {
	return &ml.StandardScaler{
		Mean:  make([]float64, nFeatures),
		Scale: ones(nFeatures),
	}
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
