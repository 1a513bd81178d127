package ml_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishimitra/ml"
	"krishimitra/ml/mltest"
)

func TestForestClassifierAveragesTrees(t *testing.T) {
	clf := &ml.ForestClassifier{
		Classes:   []string{"rice", "maize"},
		NFeatures: 1,
		Trees: []ml.DecisionTree{
			mltest.Stump(0, 10, []float64{3, 1}, []float64{0, 4}),
			mltest.Constant(1, 1),
		},
	}

	proba, err := clf.PredictProba([]float64{5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.625, 0.375}, proba, 1e-9)

	proba, err = clf.PredictProba([]float64{20})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, proba, 1e-9)
}

func TestForestRegressorMean(t *testing.T) {
	reg := &ml.ForestRegressor{
		NFeatures: 2,
		Trees: []ml.DecisionTree{
			mltest.Stump(1, 0, []float64{90}, []float64{30}),
			mltest.Constant(50),
		},
	}

	v, err := reg.Predict([]float64{0, -1})
	require.NoError(t, err)
	assert.InDelta(t, 70.0, v, 1e-9)

	v, err = reg.Predict([]float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, v, 1e-9)
}

func TestCheckInputRejectsBadVectors(t *testing.T) {
	reg := &ml.ForestRegressor{NFeatures: 2, Trees: []ml.DecisionTree{mltest.Constant(1)}}

	_, err := reg.Predict([]float64{1})
	assert.ErrorIs(t, err, ml.ErrShapeMismatch)

	_, err = reg.Predict([]float64{1, math.NaN()})
	assert.ErrorIs(t, err, ml.ErrNonFiniteInput)

	_, err = reg.Predict([]float64{math.Inf(1), 1})
	assert.ErrorIs(t, err, ml.ErrNonFiniteInput)
}

func TestMultiOutputPredictTiesGoNegative(t *testing.T) {
	m := mltest.SoilIssues(1, []float64{0.9, 0.5, 0.1})

	flags, err := m.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, flags)

	proba, err := m.PredictProba([]float64{0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9, 0.5, 0.1}, proba, 1e-9)
}

func TestStandardScalerTransform(t *testing.T) {
	s := &ml.StandardScaler{Mean: []float64{10, 0}, Scale: []float64{2, 0}}
	out, err := s.Transform([]float64{14, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, out)
}

func TestLoadModelRoundTripsEachKind(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		kind  string
		model any
	}{
		{ml.KindForestClassifier, mltest.CropClassifier([]string{"a", "b"}, 7)},
		{ml.KindForestRegressor, mltest.SoilRegressor(10, 0, 80, 20)},
		{ml.KindMultiOutputClassifier, mltest.SoilIssues(10, []float64{0.2, 0.8})},
		{ml.KindStandardScaler, mltest.IdentityScaler(10)},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			path := mltest.Write(t, dir, tc.kind+".json", tc.kind, tc.model)
			got, err := ml.LoadModel(path)
			require.NoError(t, err)
			assert.IsType(t, tc.model, got)
		})
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ml.LoadModel(filepath.Join(dir, "absent.json"))
	require.Error(t, err)
	assert.True(t, ml.IsNotFound(err))

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o600))
	_, err = ml.LoadModel(garbage)
	var le *ml.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ml.Corrupt, le.Kind)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"kind":"svm"}`), 0o600))
	_, err = ml.LoadModel(unknown)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ml.Corrupt, le.Kind)

	// child pointing backwards
	bad := &ml.ForestRegressor{NFeatures: 1, Trees: []ml.DecisionTree{{Nodes: []ml.TreeNode{
		{FeatureIdx: 0, LeftChild: 0, RightChild: 1},
		mltest.Leaf(1),
	}}}}
	path := mltest.Write(t, dir, "cycle.json", ml.KindForestRegressor, bad)
	_, err = ml.LoadModel(path)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ml.Corrupt, le.Kind)
}
