package ml

import "fmt"

// FeatureVector is an ordered set of numeric inputs in the order a model
// was trained on.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features.
func (v FeatureVector) Len() int {
	return len(v.Values)
}

// MissingFieldError is returned by Assemble for the first required field
// absent from the raw input.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required feature: %s", e.Field)
}

// Assemble builds a vector following order exactly. Extra raw fields are
// ignored and no values are defaulted or rescaled.
func Assemble(raw map[string]float64, order []string) (FeatureVector, error) {
	values := make([]float64, len(order))
	for i, name := range order {
		v, ok := raw[name]
		if !ok {
			return FeatureVector{}, &MissingFieldError{Field: name}
		}
		values[i] = v
	}
	names := make([]string, len(order))
	copy(names, order)
	return FeatureVector{Names: names, Values: values}, nil
}
