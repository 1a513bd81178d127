package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishimitra/ml"
	"krishimitra/ml/mltest"
	"krishimitra/predict"
)

const testConfig = `
models:
  crop:
    classifier: crop.json
  soil:
    health: health.json
    issues: issues.json
    scaler: ""
`

func setup(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	n := len(predict.SoilFeatureNames)
	mltest.Write(t, dir, "crop.json", ml.KindForestClassifier, mltest.CropClassifier([]string{"rice", "maize"}, len(predict.CropFeatureNames)))
	mltest.Write(t, dir, "health.json", ml.KindForestRegressor, mltest.SoilRegressor(n, 6.0, 85, 35))
	mltest.Write(t, dir, "issues.json", ml.KindMultiOutputClassifier, mltest.SoilIssues(n, make([]float64, len(predict.SoilIssueNames))))
	return cfgPath, dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckHealthy(t *testing.T) {
	cfgPath, dir := setup(t)

	out, err := execute(t, "", "check", "--config", cfgPath, "--models-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "MODEL")
	assert.Regexp(t, `crop_recommendation\s+healthy`, out)
	assert.Regexp(t, `soil_health\s+healthy`, out)
}

func TestCheckReportsMissingArtifact(t *testing.T) {
	cfgPath, dir := setup(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "issues.json")))

	out, err := execute(t, "", "check", "--config", cfgPath, "--models-dir", dir)
	assert.ErrorIs(t, err, errUnhealthy)
	assert.Regexp(t, `soil_health\s+unhealthy`, out)
	assert.Contains(t, out, "not found")
}

func TestPredictCrop(t *testing.T) {
	cfgPath, dir := setup(t)
	in := `{"N":10,"P":42,"K":43,"temperature":20.8,"humidity":82,"ph":6.5,"rainfall":202.9}`

	out, err := execute(t, in, "predict", predict.CropModelID, "--config", cfgPath, "--models-dir", dir)
	require.NoError(t, err)

	var res predict.CropResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, "rice", res.Recommendations[0].Crop)
}

func TestPredictSoilFromFile(t *testing.T) {
	cfgPath, dir := setup(t)
	input := filepath.Join(dir, "soil.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"pH":5,"Nitrogen_ppm":1500,"Phosphorus_ppm":15,"Potassium_ppm":200,
"Organic_Carbon_percent":1.5,"Salinity_dS_m":0.8,"Temperature_C":25,"Rainfall_mm":750,
"Clay_Content_percent":25,"Soil_Moisture_percent":50}`), 0o600))

	out, err := execute(t, "", "predict", predict.SoilModelID, "-i", input, "--detailed", "--config", cfgPath, "--models-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"health_category": "Excellent"`)
}

func TestPredictErrors(t *testing.T) {
	cfgPath, dir := setup(t)

	_, err := execute(t, `{"N":1}`, "predict", predict.CropModelID, "--config", cfgPath, "--models-dir", dir)
	var missing *ml.MissingFieldError
	assert.ErrorAs(t, err, &missing)

	_, err = execute(t, `{}`, "predict", "weather", "--config", cfgPath, "--models-dir", dir)
	assert.ErrorContains(t, err, "unknown model")

	_, err = execute(t, `not json`, "predict", predict.CropModelID, "--config", cfgPath)
	assert.ErrorContains(t, err, "parse input")
}
