package ml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishimitra/ml"
)

func TestAssembleFollowsOrder(t *testing.T) {
	raw := map[string]float64{"c": 3, "a": 1, "b": 2, "extra": 99}

	vec, err := ml.Assemble(raw, []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, vec.Names)
	assert.Equal(t, []float64{2, 3, 1}, vec.Values)
	assert.Equal(t, 3, vec.Len())
}

func TestAssembleMissingField(t *testing.T) {
	order := []string{"N", "P", "K"}
	cases := map[string]map[string]float64{
		"no extras":   {"N": 1, "K": 3},
		"with extras": {"N": 1, "K": 3, "p": 2, "Phosphorus": 2, "other": 0},
		"empty":       {},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ml.Assemble(raw, order)
			var mf *ml.MissingFieldError
			require.ErrorAs(t, err, &mf)
			if name == "empty" {
				assert.Equal(t, "N", mf.Field)
			} else {
				assert.Equal(t, "P", mf.Field)
			}
		})
	}
}

func TestAssembleZeroIsPresent(t *testing.T) {
	vec, err := ml.Assemble(map[string]float64{"x": 0}, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, vec.Values)
}
